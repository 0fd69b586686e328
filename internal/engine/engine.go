// Package engine implements the job engine of spec.md §4.6: the four-phase
// grading pipeline (clone, analyze, grade, aggregate) driven by a two-level
// bounded scheduler. Grounded on
// original_source/src/grade_orchestrator.rs::run_job/process_tasks_parallel
// for phase order and event emission, with the concurrency primitives
// themselves (golang.org/x/sync/semaphore + errgroup) following the pack's
// own direct dependency on them for bounded fan-out.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fairyhunter13/gradeengine/internal/adapter/observability"
	"github.com/fairyhunter13/gradeengine/internal/domain"
	"github.com/fairyhunter13/gradeengine/internal/scoring"
)

// Engine runs the grading pipeline for a single job. It holds only its
// collaborators and no mutable state of its own (the task and criterion
// semaphores are created per job in gradePhase), so one Engine can be
// shared across concurrently running jobs.
type Engine struct {
	cloner    domain.Cloner
	corpus    domain.CorpusReader
	grader    domain.Grader
	llmClient domain.LLMClient
	persist   domain.PersistenceAdapter
}

// New builds an Engine. persist may be nil (spec.md §6's persistence
// adapter is optional).
func New(cloner domain.Cloner, corpus domain.CorpusReader, grader domain.Grader, llmClient domain.LLMClient, persist domain.PersistenceAdapter) *Engine {
	return &Engine{cloner: cloner, corpus: corpus, grader: grader, llmClient: llmClient, persist: persist}
}

// Run executes the full pipeline against state, mutating it in place and
// publishing progress events on state.Broadcaster. jobstore.Store.Run calls
// it synchronously; it returns once the job reaches a terminal status.
func (e *Engine) Run(ctx context.Context, state *domain.JobState) {
	start := time.Now()
	state.SetStarted(start)
	observability.StartJob()

	cfg := state.Request.Config.WithDefaults()
	hub := state.Broadcaster

	repoPath, err := e.clonePhase(ctx, state, hub)
	if err != nil {
		e.fail(state, hub, start, err, false)
		return
	}
	defer func() {
		if repoPath != "" {
			_ = os.RemoveAll(repoPath)
		}
	}()

	corpus := e.analyzePhase(ctx, state, hub, repoPath, cfg)

	if e.llmClient == nil {
		e.fail(state, hub, start, errNoProvider, true)
		return
	}

	state.SetStatus(domain.JobGrading)
	taskResults := e.gradePhase(ctx, state, hub, corpus, cfg)

	e.aggregatePhase(ctx, state, hub, start, taskResults)
}

var errNoProvider = &configError{"No LLM provider configured"}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }

func (e *Engine) clonePhase(ctx context.Context, state *domain.JobState, hub domain.Broadcaster) (string, error) {
	state.SetStatus(domain.JobCloning)
	hub.Publish(domain.GradeEvent{Type: domain.EventCloningStarted})

	cloneStart := time.Now()
	path, err := e.cloner.Clone(ctx, state.Request.RepoURL, state.Request.Branch)
	if err != nil {
		return "", err
	}

	if owner, repo, ok := domain.ExtractGitHubInfo(state.Request.RepoURL); ok {
		state.SetRepoKey(owner + "/" + repo)
	}

	hub.Publish(domain.GradeEvent{
		Type:       domain.EventCloningCompleted,
		DurationMS: time.Since(cloneStart).Milliseconds(),
	})
	return path, nil
}

func (e *Engine) analyzePhase(ctx context.Context, state *domain.JobState, hub domain.Broadcaster, repoPath string, cfg domain.GradeConfig) []domain.CorpusFile {
	state.SetStatus(domain.JobAnalyzing)
	hub.Publish(domain.GradeEvent{Type: domain.EventAnalysisStarted})

	files, err := e.corpus.Read(ctx, repoPath, cfg.MaxFiles)
	if err != nil {
		slog.Warn("corpus read failed, continuing with empty corpus", slog.String("error", err.Error()))
		files = nil
	}

	totalLines := 0
	for _, f := range files {
		totalLines += countLines(f.Contents)
	}

	hub.Publish(domain.GradeEvent{
		Type:       domain.EventAnalysisComplete,
		FileCount:  len(files),
		TotalLines: totalLines,
	})
	return files
}

// gradePhase runs the two-level bounded scheduler of spec.md §4.6: an outer
// semaphore bounds concurrently running tasks, an inner semaphore shared
// across all tasks bounds total concurrent LLM calls for the job.
func (e *Engine) gradePhase(ctx context.Context, state *domain.JobState, hub domain.Broadcaster, corpus []domain.CorpusFile, cfg domain.GradeConfig) []domain.TaskGradeResult {
	tasks := state.Request.Tasks
	results := make([]domain.TaskGradeResult, len(tasks))

	taskSem := semaphore.NewWeighted(int64(cfg.MaxParallelTasks))
	criterionSem := semaphore.NewWeighted(int64(cfg.MaxParallelCriteria))

	g, gCtx := errgroup.WithContext(ctx)

	for taskIndex, task := range tasks {
		taskIndex, task := taskIndex, task
		if err := taskSem.Acquire(gCtx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer taskSem.Release(1)
			results[taskIndex] = e.runTask(gCtx, state, hub, taskIndex, task, corpus, cfg, criterionSem)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (e *Engine) runTask(ctx context.Context, state *domain.JobState, hub domain.Broadcaster, taskIndex int, task domain.Task, corpus []domain.CorpusFile, cfg domain.GradeConfig, criterionSem *semaphore.Weighted) domain.TaskGradeResult {
	hub.Publish(domain.GradeEvent{
		Type:          domain.EventTaskStarted,
		TaskIndex:     taskIndex,
		TaskTitle:     task.Title,
		CriteriaCount: len(task.Criteria),
	})

	criterionResults := make([]domain.CriterionResult, len(task.Criteria))

	g, gCtx := errgroup.WithContext(ctx)
	for criterionIndex, criterion := range task.Criteria {
		criterionIndex, criterion := criterionIndex, criterion
		if err := criterionSem.Acquire(gCtx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer criterionSem.Release(1)
			criterionResults[criterionIndex] = e.checkCriterion(gCtx, state, hub, taskIndex, criterionIndex, task, criterion, corpus, cfg)
			return nil
		})
	}
	_ = g.Wait()

	result := scoring.Task(task.Title, criterionResults)

	hub.Publish(domain.GradeEvent{
		Type:        domain.EventTaskCompleted,
		TaskIndex:   taskIndex,
		TaskTitle:   task.Title,
		Score:       result.Score,
		Status:      result.Status,
		PassedCount: result.PassedCount,
		TotalCount:  result.TotalCount,
	})

	return result
}

func (e *Engine) checkCriterion(ctx context.Context, state *domain.JobState, hub domain.Broadcaster, taskIndex, criterionIndex int, task domain.Task, criterion domain.Criterion, corpus []domain.CorpusFile, cfg domain.GradeConfig) domain.CriterionResult {
	timeout := time.Duration(cfg.CriterionTimeoutSecs) * time.Second
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := e.grader.Check(cctx, state.Request.RepoURL, task, criterion, corpus, cfg)

	observability.RecordCriterionCheck(result.Passed)
	hub.Publish(domain.GradeEvent{
		Type:           domain.EventCriterionChecked,
		TaskIndex:      taskIndex,
		CriterionIndex: criterionIndex,
		Criterion:      result.Criterion,
		Passed:         result.Passed,
		Confidence:     result.Confidence,
	})

	return result
}

func (e *Engine) aggregatePhase(ctx context.Context, state *domain.JobState, hub domain.Broadcaster, start time.Time, taskResults []domain.TaskGradeResult) {
	overallScore, percentage, grade, summary := scoring.Overall(taskResults)
	duration := time.Since(start)
	state.Complete(taskResults, overallScore, percentage, grade, summary, duration)

	hub.Publish(domain.GradeEvent{
		Type:         domain.EventGradeCompleted,
		OverallScore: overallScore,
		Percentage:   percentage,
		Grade:        grade,
		Summary:      summary,
		DurationMS:   duration.Milliseconds(),
	})

	observability.CompleteJob(duration.Seconds(), percentage)

	if e.persist != nil {
		e.persistReport(ctx, state)
	}
}

func (e *Engine) persistReport(ctx context.Context, state *domain.JobState) {
	var curriculumID, taskID string
	if state.Request.Metadata != nil {
		curriculumID = state.Request.Metadata.Curriculum
		taskID = state.Request.Metadata.TaskID
	}
	report := state.Snapshot()
	recordID, err := e.persist.SaveJob(ctx, state.Request, curriculumID, taskID)
	if err != nil {
		slog.Warn("persistence SaveJob failed", slog.String("job_id", state.ID), slog.String("error", err.Error()))
		return
	}
	if err := e.persist.UpdateJob(ctx, recordID, report); err != nil {
		slog.Warn("persistence UpdateJob failed", slog.String("job_id", state.ID), slog.String("error", err.Error()))
	}
	if curriculumID != "" && taskID != "" {
		if err := e.persist.UpdateTask(ctx, curriculumID, taskID, report); err != nil {
			slog.Warn("persistence UpdateTask failed", slog.String("job_id", state.ID), slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) fail(state *domain.JobState, hub domain.Broadcaster, start time.Time, err error, recoverable bool) {
	duration := time.Since(start)
	state.Fail(err, duration)

	hub.Publish(domain.GradeEvent{
		Type:        domain.EventGradeFailed,
		Error:       err.Error(),
		Recoverable: recoverable,
	})

	observability.FailJob(duration.Seconds(), failureCode(err))
}

func failureCode(err error) string {
	if errors.Is(err, errNoProvider) {
		return "no_provider"
	}
	return "clone_failed"
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
