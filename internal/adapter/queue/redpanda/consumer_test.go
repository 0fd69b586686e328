package redpanda

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/gradeengine/internal/domain"
)

func TestNewConsumer_EmptyBrokers(t *testing.T) {
	_, err := NewConsumer(nil, "gradeengine-workers", "grading-jobs", 4, func(context.Context, domain.GradeRequest) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no seed brokers")
}

func TestNewConsumer_ZeroWorkersDefaultsToOne(t *testing.T) {
	c, err := NewConsumer([]string{"localhost:9092"}, "gradeengine-workers-test", "grading-jobs", 0, func(context.Context, domain.GradeRequest) {})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.True(t, c.sem.TryAcquire(1))
	assert.False(t, c.sem.TryAcquire(1), "maxWorkers<=0 should default to a single permit")
}

func TestConsumer_ProcessRecord_InvalidJSONDoesNotInvokeHandler(t *testing.T) {
	c, err := NewConsumer([]string{"localhost:9092"}, "gradeengine-workers-test2", "grading-jobs", 2, nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	called := false
	c.handler = func(context.Context, domain.GradeRequest) { called = true }

	c.processRecord(context.Background(), &kgo.Record{Value: []byte("not json")})

	assert.False(t, called)
}

func TestConsumer_ProcessRecord_ValidPayloadInvokesHandlerWithDecodedRequest(t *testing.T) {
	c, err := NewConsumer([]string{"localhost:9092"}, "gradeengine-workers-test3", "grading-jobs", 2, nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	var received domain.GradeRequest
	c.handler = func(_ context.Context, req domain.GradeRequest) { received = req }

	payload := []byte(`{"repo_url":"https://github.com/a/b","tasks":[]}`)
	c.processRecord(context.Background(), &kgo.Record{Value: payload})

	assert.Equal(t, "https://github.com/a/b", received.RepoURL)
}
