// Package scoring implements the deterministic reduction from criterion
// verdicts to task status, overall percentage, and a categorical grade
// label (spec.md §4.7).
package scoring

import (
	"fmt"
	"math"

	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// Task reduces one task's criterion results into a TaskGradeResult.
//
// score = Σ(weight·passed) / Σ(weight), or 0 if Σ(weight) == 0.
// status is Passed iff score >= 1.0, Failed iff score <= 0, else Partial.
func Task(title string, results []domain.CriterionResult) domain.TaskGradeResult {
	var totalWeight, passedWeight float64
	passedCount := 0
	for _, r := range results {
		totalWeight += r.Weight
		if r.Passed {
			passedWeight += r.Weight
			passedCount++
		}
	}

	score := 0.0
	if totalWeight > 0 {
		score = passedWeight / totalWeight
	}

	// Open question (spec.md §9): score <= 0 is preserved literally even
	// though it is unreachable under this formula (score is always >= 0).
	status := domain.TaskPartial
	switch {
	case score >= 1.0:
		status = domain.TaskPassed
	case score <= 0:
		status = domain.TaskFailed
	}

	return domain.TaskGradeResult{
		Title:            title,
		Score:            score,
		Status:           status,
		CriterionResults: results,
		PassedCount:      passedCount,
		TotalCount:       len(results),
	}
}

// gradeLabels is the closed-bucket-boundary table of spec.md §4.7, checked
// from the top down so overlapping boundaries resolve to the higher bucket.
var gradeLabels = []struct {
	min   int
	label string
}{
	{90, "우수"},
	{75, "양호"},
	{60, "보통"},
	{40, "미흡"},
	{0, "불합격"},
}

// Label maps a percentage in [0,100] to its five-bucket Korean grade label.
func Label(percentage int) string {
	for _, b := range gradeLabels {
		if percentage >= b.min {
			return b.label
		}
	}
	return "불합격"
}

// Overall reduces all task results into the job's aggregate score fields.
//
// overall_score is the plain arithmetic mean of task scores (task-level
// weights are not supported); percentage = round(overall_score * 100).
func Overall(tasks []domain.TaskGradeResult) (overallScore float64, percentage int, grade string, summary string) {
	if len(tasks) == 0 {
		return 0, 0, "N/A", "No tasks to grade"
	}

	var sum float64
	for _, t := range tasks {
		sum += t.Score
	}
	overallScore = sum / float64(len(tasks))
	percentage = int(math.Round(overallScore * 100))
	grade = Label(percentage)

	passedTasks, totalTasks := 0, len(tasks)
	passedCriteria, totalCriteria := 0, 0
	for _, t := range tasks {
		if t.Status == domain.TaskPassed {
			passedTasks++
		}
		passedCriteria += t.PassedCount
		totalCriteria += t.TotalCount
	}

	summary = fmt.Sprintf(
		"전체 점수: %d점 (%s) - 과제 %d/%d 완료, 기준 %d/%d 충족",
		percentage, grade, passedTasks, totalTasks, passedCriteria, totalCriteria,
	)

	return overallScore, percentage, grade, summary
}
