package scoring

import (
	"strings"
	"testing"

	"github.com/fairyhunter13/gradeengine/internal/domain"
)

func TestTask_AllPassed(t *testing.T) {
	results := []domain.CriterionResult{
		{Passed: true, Weight: 1},
		{Passed: true, Weight: 2},
	}
	got := Task("Build a CLI", results)
	if got.Score != 1 {
		t.Fatalf("expected score 1, got %v", got.Score)
	}
	if got.Status != domain.TaskPassed {
		t.Fatalf("expected Passed, got %v", got.Status)
	}
	if got.PassedCount != 2 || got.TotalCount != 2 {
		t.Fatalf("expected 2/2 passed, got %d/%d", got.PassedCount, got.TotalCount)
	}
}

func TestTask_PartialScore(t *testing.T) {
	results := []domain.CriterionResult{
		{Passed: true, Weight: 1},
		{Passed: false, Weight: 1},
	}
	got := Task("t", results)
	if got.Score != 0.5 {
		t.Fatalf("expected score 0.5, got %v", got.Score)
	}
	if got.Status != domain.TaskPartial {
		t.Fatalf("expected Partial, got %v", got.Status)
	}
}

func TestTask_AllFailed(t *testing.T) {
	results := []domain.CriterionResult{
		{Passed: false, Weight: 1},
		{Passed: false, Weight: 3},
	}
	got := Task("t", results)
	if got.Score != 0 {
		t.Fatalf("expected score 0, got %v", got.Score)
	}
	if got.Status != domain.TaskFailed {
		t.Fatalf("expected Failed, got %v", got.Status)
	}
}

func TestTask_ZeroTotalWeightScoresZero(t *testing.T) {
	results := []domain.CriterionResult{{Passed: true, Weight: 0}}
	got := Task("t", results)
	if got.Score != 0 {
		t.Fatalf("expected score 0 when total weight is 0, got %v", got.Score)
	}
	if got.Status != domain.TaskFailed {
		t.Fatalf("expected Failed, got %v", got.Status)
	}
}

func TestTask_NoResults(t *testing.T) {
	got := Task("t", nil)
	if got.Score != 0 || got.TotalCount != 0 || got.Status != domain.TaskFailed {
		t.Fatalf("expected zero-value Failed result for no criteria, got %+v", got)
	}
}

func TestLabel_BucketBoundaries(t *testing.T) {
	cases := []struct {
		pct  int
		want string
	}{
		{100, "우수"}, {90, "우수"},
		{89, "양호"}, {75, "양호"},
		{74, "보통"}, {60, "보통"},
		{59, "미흡"}, {40, "미흡"},
		{39, "불합격"}, {0, "불합격"},
	}
	for _, tc := range cases {
		if got := Label(tc.pct); got != tc.want {
			t.Errorf("Label(%d) = %q, want %q", tc.pct, got, tc.want)
		}
	}
}

func TestOverall_ArithmeticMeanAcrossTasks(t *testing.T) {
	tasks := []domain.TaskGradeResult{
		{Score: 1.0, Status: domain.TaskPassed, PassedCount: 2, TotalCount: 2},
		{Score: 0.5, Status: domain.TaskPartial, PassedCount: 1, TotalCount: 2},
	}
	score, pct, grade, summary := Overall(tasks)
	if score != 0.75 {
		t.Fatalf("expected overall score 0.75, got %v", score)
	}
	if pct != 75 {
		t.Fatalf("expected percentage 75, got %d", pct)
	}
	if grade != "양호" {
		t.Fatalf("expected grade 양호, got %q", grade)
	}
	if !strings.Contains(summary, "75") || !strings.Contains(summary, "1/2") || !strings.Contains(summary, "3/4") {
		t.Fatalf("expected summary to reference 75%%, 1/2 tasks, 3/4 criteria, got %q", summary)
	}
}

func TestOverall_NoTasks(t *testing.T) {
	score, pct, grade, summary := Overall(nil)
	if score != 0 || pct != 0 {
		t.Fatalf("expected zero score/percentage, got %v/%d", score, pct)
	}
	if grade != "N/A" {
		t.Fatalf("expected grade N/A, got %q", grade)
	}
	if summary != "No tasks to grade" {
		t.Fatalf("expected fixed no-tasks summary, got %q", summary)
	}
}

func TestOverall_RoundsPercentageHalfUp(t *testing.T) {
	tasks := []domain.TaskGradeResult{
		{Score: 0.625},
	}
	_, pct, _, _ := Overall(tasks)
	if pct != 63 {
		t.Fatalf("expected rounded percentage 63, got %d", pct)
	}
}
