package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/gradeengine/internal/adapter/persistence/postgres"
	"github.com/fairyhunter13/gradeengine/internal/domain"
)

type fakeExec struct {
	calls []string
	args  [][]any
	err   error
}

func (f *fakeExec) Exec(ctx domain.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 1"), f.err
}

func TestAdapter_SaveJob_ReturnsNonEmptyID(t *testing.T) {
	pool := &fakeExec{}
	adapter := postgres.New(pool)

	id, err := adapter.SaveJob(context.Background(), domain.GradeRequest{RepoURL: "https://github.com/a/b"}, "curr1", "task1")

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, pool.calls, 1)
	assert.Contains(t, pool.calls[0], "INSERT INTO grade_jobs")
}

func TestAdapter_UpdateJob_SendsReportAndStatus(t *testing.T) {
	pool := &fakeExec{}
	adapter := postgres.New(pool)

	report := domain.GradeReport{ID: "job1", Status: domain.JobCompleted, Percentage: 80}
	err := adapter.UpdateJob(context.Background(), "job1", report)

	require.NoError(t, err)
	require.Len(t, pool.calls, 1)
	assert.Contains(t, pool.calls[0], "UPDATE grade_jobs")
	assert.Equal(t, "job1", pool.args[0][0])
	assert.Equal(t, string(domain.JobCompleted), pool.args[0][1])
}

func TestAdapter_UpdateTask_MapsOverallScoreToExternalStatus(t *testing.T) {
	cases := []struct {
		score    float64
		expected string
	}{
		{0.95, "passed"},
		{0.9, "passed"},
		{0.6, "partial"},
		{0.4, "partial"},
		{0.1, "failed"},
	}

	for _, tc := range cases {
		pool := &fakeExec{}
		adapter := postgres.New(pool)

		err := adapter.UpdateTask(context.Background(), "curr1", "task1", domain.GradeReport{OverallScore: tc.score})

		require.NoError(t, err)
		require.Len(t, pool.calls, 1)
		assert.Equal(t, tc.expected, pool.args[0][2])
	}
}

func TestAdapter_UpdateJob_PropagatesPoolError(t *testing.T) {
	pool := &fakeExec{err: assert.AnError}
	adapter := postgres.New(pool)

	err := adapter.UpdateJob(context.Background(), "job1", domain.GradeReport{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=persistence.update_job")
}
