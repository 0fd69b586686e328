package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fairyhunter13/gradeengine/internal/broadcast"
	"github.com/fairyhunter13/gradeengine/internal/domain"
)

type fakeCloner struct {
	path string
	err  error
}

func (f *fakeCloner) Clone(ctx domain.Context, repoURL, branch string) (string, error) {
	return f.path, f.err
}

type fakeCorpusReader struct {
	files []domain.CorpusFile
	err   error
}

func (f *fakeCorpusReader) Read(ctx domain.Context, rootDir string, maxFiles int) ([]domain.CorpusFile, error) {
	return f.files, f.err
}

type countingGrader struct {
	mu          sync.Mutex
	current     int
	maxObserved int
	passAll     bool
}

func (g *countingGrader) Check(ctx domain.Context, repoURL string, task domain.Task, criterion domain.Criterion, corpus []domain.CorpusFile, cfg domain.GradeConfig) domain.CriterionResult {
	g.mu.Lock()
	g.current++
	if g.current > g.maxObserved {
		g.maxObserved = g.current
	}
	g.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	g.mu.Lock()
	g.current--
	g.mu.Unlock()

	return domain.CriterionResult{Criterion: criterion.Description, Passed: g.passAll, Confidence: 1, Weight: criterion.Weight}
}

type fakePersistence struct {
	saved     bool
	jobUpdate bool
}

func (p *fakePersistence) SaveJob(ctx domain.Context, req domain.GradeRequest, curriculumID, taskID string) (string, error) {
	p.saved = true
	return "record-1", nil
}

func (p *fakePersistence) UpdateJob(ctx domain.Context, recordID string, report domain.GradeReport) error {
	p.jobUpdate = true
	return nil
}

func (p *fakePersistence) UpdateTask(ctx domain.Context, curriculumID, taskID string, report domain.GradeReport) error {
	return nil
}

func buildTasks(taskCount, criteriaPerTask int) []domain.Task {
	tasks := make([]domain.Task, taskCount)
	for i := range tasks {
		criteria := make([]domain.Criterion, criteriaPerTask)
		for j := range criteria {
			criteria[j] = domain.Criterion{Description: "criterion", Weight: 1}
		}
		tasks[i] = domain.Task{Title: "task", Criteria: criteria}
	}
	return tasks
}

func newState(req domain.GradeRequest) *domain.JobState {
	return &domain.JobState{ID: "job-1", Status: domain.JobPending, Request: req, Broadcaster: broadcast.New()}
}

func TestRun_HappyPathReachesCompleted(t *testing.T) {
	grader := &countingGrader{passAll: true}
	e := New(
		&fakeCloner{path: "/tmp/repo"},
		&fakeCorpusReader{files: []domain.CorpusFile{{Path: "main.go", Contents: "package main\n"}}},
		grader,
		&stubLLMClient{},
		nil,
	)

	state := newState(domain.GradeRequest{RepoURL: "https://github.com/a/b", Tasks: buildTasks(2, 2)})
	e.Run(context.Background(), state)

	if state.Status != domain.JobCompleted {
		t.Fatalf("expected Completed, got %v", state.Status)
	}
	if state.OverallScore != 1 {
		t.Fatalf("expected overall score 1, got %v", state.OverallScore)
	}
	if len(state.TaskResults) != 2 {
		t.Fatalf("expected 2 task results, got %d", len(state.TaskResults))
	}
}

func TestRun_CloneFailureMarksJobFailed(t *testing.T) {
	e := New(
		&fakeCloner{err: errors.New("clone exploded")},
		&fakeCorpusReader{},
		&countingGrader{},
		&stubLLMClient{},
		nil,
	)

	state := newState(domain.GradeRequest{RepoURL: "https://github.com/a/b", Tasks: buildTasks(1, 1)})
	e.Run(context.Background(), state)

	if state.Status != domain.JobFailed {
		t.Fatalf("expected Failed, got %v", state.Status)
	}
	if state.Err == nil {
		t.Fatal("expected a recorded error")
	}
}

func TestRun_NoLLMClientFailsJobWithConfigurationError(t *testing.T) {
	e := New(
		&fakeCloner{path: "/tmp/repo"},
		&fakeCorpusReader{},
		&countingGrader{},
		nil,
		nil,
	)

	state := newState(domain.GradeRequest{RepoURL: "https://github.com/a/b", Tasks: buildTasks(1, 1)})
	e.Run(context.Background(), state)

	if state.Status != domain.JobFailed {
		t.Fatalf("expected Failed, got %v", state.Status)
	}
	if state.Err == nil || state.Err.Error() != "No LLM provider configured" {
		t.Fatalf("expected the configured-provider error, got %v", state.Err)
	}
}

func TestGradePhase_RespectsCriterionConcurrencyCap(t *testing.T) {
	grader := &countingGrader{passAll: true}
	e := New(&fakeCloner{path: "/tmp/repo"}, &fakeCorpusReader{}, grader, &stubLLMClient{}, nil)

	cfg := domain.GradeConfig{MaxParallelTasks: 5, MaxParallelCriteria: 2, CriterionTimeoutSecs: 5, MaxFiles: 10, MaxCharsPerFile: 100}
	state := newState(domain.GradeRequest{RepoURL: "x", Tasks: buildTasks(4, 4), Config: cfg})

	e.gradePhase(context.Background(), state, state.Broadcaster, nil, cfg)

	grader.mu.Lock()
	defer grader.mu.Unlock()
	if grader.maxObserved > cfg.MaxParallelCriteria {
		t.Fatalf("expected at most %d concurrent criterion checks, observed %d", cfg.MaxParallelCriteria, grader.maxObserved)
	}
}

func TestAggregatePhase_PersistsWhenAdapterConfigured(t *testing.T) {
	persist := &fakePersistence{}
	e := New(&fakeCloner{}, &fakeCorpusReader{}, &countingGrader{}, &stubLLMClient{}, persist)

	state := newState(domain.GradeRequest{RepoURL: "x", Metadata: &domain.Metadata{Curriculum: "c1", TaskID: "t1"}})
	e.aggregatePhase(context.Background(), state, state.Broadcaster, time.Now(), []domain.TaskGradeResult{{Score: 1, Status: domain.TaskPassed, PassedCount: 1, TotalCount: 1}})

	if !persist.saved || !persist.jobUpdate {
		t.Fatal("expected SaveJob and UpdateJob to be invoked")
	}
	if state.Status != domain.JobCompleted {
		t.Fatalf("expected Completed, got %v", state.Status)
	}
}

func TestRun_PublishesEventsInOrder(t *testing.T) {
	e := New(&fakeCloner{path: "/tmp/repo"}, &fakeCorpusReader{}, &countingGrader{passAll: true}, &stubLLMClient{}, nil)

	state := newState(domain.GradeRequest{RepoURL: "x", Tasks: buildTasks(1, 1)})
	sub := state.Broadcaster.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	var types []domain.EventType
	go func() {
		for evt := range sub.Events() {
			types = append(types, evt.Type)
		}
		close(done)
	}()

	e.Run(context.Background(), state)
	sub.Close()
	<-done

	if len(types) == 0 {
		t.Fatal("expected at least one event")
	}
	if types[0] != domain.EventCloningStarted {
		t.Fatalf("expected first event CloningStarted, got %v", types[0])
	}
	if types[len(types)-1] != domain.EventGradeCompleted {
		t.Fatalf("expected last event GradeCompleted, got %v", types[len(types)-1])
	}
}

type stubLLMClient struct {
	calls int64
}

func (s *stubLLMClient) Name() string { return "stub" }

func (s *stubLLMClient) Chat(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	atomic.AddInt64(&s.calls, 1)
	return `{"passed":true,"confidence":1,"evidence":"ok"}`, nil
}
