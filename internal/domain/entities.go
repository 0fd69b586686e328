// Package domain defines core entities, ports, and domain-specific errors.
package domain

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Context is a type alias to stdlib context.Context for convenience across layers.
type Context = context.Context

// Criterion is a natural-language assertion the submitted code must satisfy.
// Immutable once constructed.
type Criterion struct {
	// ID is an optional stable identifier for the criterion.
	ID string `json:"id,omitempty"`
	// Description is the prompt-bearing assertion text.
	Description string `json:"description"`
	// Weight is a non-negative real weight; defaults to 1.0 when unset.
	Weight float64 `json:"weight"`
}

// Task is a named rubric section containing an ordered sequence of criteria.
// Immutable once constructed.
type Task struct {
	// Title is the task's display name.
	Title string `json:"title"`
	// Description is optional free-form context for the task.
	Description string `json:"description,omitempty"`
	// Criteria is the ordered list of acceptance criteria for this task.
	Criteria []Criterion `json:"criteria"`
	// EstimatedMinutes is an optional estimate of time the task should take.
	EstimatedMinutes *int `json:"estimated_minutes,omitempty"`
}

// GradeConfig holds per-request scheduler and corpus overrides (spec.md §6).
type GradeConfig struct {
	// MaxParallelTasks bounds concurrently running tasks.
	MaxParallelTasks int `json:"max_parallel_tasks,omitempty"`
	// MaxParallelCriteria bounds total concurrent LLM calls across all tasks.
	MaxParallelCriteria int `json:"max_parallel_criteria,omitempty"`
	// CriterionTimeoutSecs bounds a single criterion check.
	CriterionTimeoutSecs int `json:"criterion_timeout_secs,omitempty"`
	// MaxFiles bounds the number of corpus files read.
	MaxFiles int `json:"max_files,omitempty"`
	// MaxCharsPerFile bounds per-file truncation in the grader's corpus block.
	MaxCharsPerFile int `json:"max_chars_per_file,omitempty"`
}

// DefaultGradeConfig returns spec.md §6's documented defaults.
func DefaultGradeConfig() GradeConfig {
	return GradeConfig{
		MaxParallelTasks:     5,
		MaxParallelCriteria:  10,
		CriterionTimeoutSecs: 60,
		MaxFiles:             30,
		MaxCharsPerFile:      5000,
	}
}

// WithDefaults fills any zero-valued fields of c with DefaultGradeConfig's values.
func (c GradeConfig) WithDefaults() GradeConfig {
	d := DefaultGradeConfig()
	if c.MaxParallelTasks <= 0 {
		c.MaxParallelTasks = d.MaxParallelTasks
	}
	if c.MaxParallelCriteria <= 0 {
		c.MaxParallelCriteria = d.MaxParallelCriteria
	}
	if c.CriterionTimeoutSecs <= 0 {
		c.CriterionTimeoutSecs = d.CriterionTimeoutSecs
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = d.MaxFiles
	}
	if c.MaxCharsPerFile <= 0 {
		c.MaxCharsPerFile = d.MaxCharsPerFile
	}
	return c
}

// Metadata carries optional identifying information for persistence keying.
type Metadata struct {
	Session    string `json:"session,omitempty"`
	Course     string `json:"course,omitempty"`
	Student    string `json:"student,omitempty"`
	Curriculum string `json:"curriculum,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
}

// ExtractGitHubInfo returns the (owner, repo) pair encoded in a GitHub URL,
// or false if url is not a recognizable GitHub repository URL. Supplemented
// feature (SPEC_FULL.md §C.1) ported from
// original_source/src/git.rs::extract_github_info; lives here (pure URL
// parsing, no git/filesystem dependency) so internal/engine can derive
// GradeReport.RepoKey without importing the concrete internal/cloner
// adapter.
func ExtractGitHubInfo(url string) (owner, repo string, ok bool) {
	trimmed := strings.TrimSuffix(url, ".git")
	if !strings.Contains(trimmed, "github.com") {
		return "", "", false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	r := parts[len(parts)-1]
	o := parts[len(parts)-2]
	if o == "" || r == "" || o == "github.com" {
		return "", "", false
	}
	return o, r, true
}

// GradeRequest is the input envelope accepted by CreateJob.
type GradeRequest struct {
	// RepoURL is the repository to clone.
	RepoURL string `json:"repo_url"`
	// Branch is an optional branch name; empty selects the default branch.
	Branch string `json:"branch,omitempty"`
	// Tasks is the ordered rubric.
	Tasks []Task `json:"tasks"`
	// Config holds optional scheduler/corpus overrides.
	Config GradeConfig `json:"config,omitempty"`
	// Metadata carries optional identifying information.
	Metadata *Metadata `json:"metadata,omitempty"`
}

// CodeReference points at a location in the corpus an LLM verdict cites.
type CodeReference struct {
	File      string `json:"file"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Snippet   string `json:"snippet,omitempty"`
}

// CriterionResult is an LLM verdict on one criterion.
type CriterionResult struct {
	// Criterion is the echoed criterion description.
	Criterion string `json:"criterion"`
	// Passed reports whether the criterion was satisfied.
	Passed bool `json:"passed"`
	// Confidence is clamped to [0,1] on ingestion.
	Confidence float64 `json:"confidence"`
	// Evidence is free-text justification.
	Evidence string `json:"evidence"`
	// CodeReferences cites supporting locations in the corpus.
	CodeReferences []CodeReference `json:"code_references,omitempty"`
	// Weight is copied from the source Criterion.
	Weight float64 `json:"weight"`
}

// TaskStatus is the reduction of a task's criterion results.
type TaskStatus string

const (
	// TaskPassed means the task's score is >= 1.0.
	TaskPassed TaskStatus = "Passed"
	// TaskPartial means the task's score is strictly between 0 and 1.0.
	TaskPartial TaskStatus = "Partial"
	// TaskFailed means the task's score is <= 0.
	TaskFailed TaskStatus = "Failed"
)

// TaskGradeResult is the reduction over one Task's criterion results.
type TaskGradeResult struct {
	Title            string            `json:"title"`
	Score            float64           `json:"score"`
	Status           TaskStatus        `json:"status"`
	CriterionResults []CriterionResult `json:"criterion_results"`
	PassedCount      int               `json:"passed_count"`
	TotalCount       int               `json:"total_count"`
}

// JobStatus captures the lifecycle state of a grading job.
type JobStatus string

// Job status values, monotone except Failed (spec.md §3 invariants).
const (
	JobPending   JobStatus = "Pending"
	JobCloning   JobStatus = "Cloning"
	JobAnalyzing JobStatus = "Analyzing"
	JobGrading   JobStatus = "Grading"
	JobCompleted JobStatus = "Completed"
	JobFailed    JobStatus = "Failed"
)

// GradeReport is the job's authoritative state projection, returned by GET.
type GradeReport struct {
	ID           string            `json:"grade_id"`
	RepoURL      string            `json:"repo_url"`
	Status       JobStatus         `json:"status"`
	OverallScore float64           `json:"overall_score"`
	Percentage   int               `json:"percentage"`
	Grade        string            `json:"grade"`
	TaskResults  []TaskGradeResult `json:"task_results"`
	Summary      string            `json:"summary"`
	DurationMS   int64             `json:"duration_ms"`
	Error        string            `json:"error,omitempty"`
	Metadata     *Metadata         `json:"metadata,omitempty"`
	// RepoKey is the engine-derived "owner/repo" pair (SPEC_FULL.md §C.1),
	// set once clonePhase resolves a GitHub-style RepoURL; empty for
	// non-GitHub URLs or before cloning completes. Carried for persistence
	// keying by internal/adapter/persistence/postgres.
	RepoKey string `json:"repo_key,omitempty"`
}

// JobState is the engine's internal, mutable job record. Owned by the Job
// Store for its TTL; the Engine borrows mutable access under the store's
// lock for phase transitions and result writes, releasing between I/O. The
// lock is held per-JobState (mu below) rather than on the Store's map lock,
// since phase transitions never touch the map itself — only the fields of
// one job. ID, Request, CreatedAt, and Broadcaster are fixed at construction
// and read without locking; every field an in-flight Engine.Run can mutate
// is read and written only through the methods below.
type JobState struct {
	ID        string
	Request   GradeRequest
	CreatedAt time.Time

	Broadcaster Broadcaster

	mu          sync.RWMutex
	Status      JobStatus
	TaskResults []TaskGradeResult

	OverallScore float64
	Percentage   int
	Grade        string
	Summary      string

	StartedAt time.Time
	Duration  time.Duration
	Err       error
	RepoKey   string
}

// SetStatus atomically updates the job's phase (spec.md §3: Pending →
// Cloning → Analyzing → Grading → Completed, Failed from any non-terminal
// state).
func (j *JobState) SetStatus(status JobStatus) {
	j.mu.Lock()
	j.Status = status
	j.mu.Unlock()
}

// SetStarted records the pipeline's start time, used to compute Duration.
func (j *JobState) SetStarted(t time.Time) {
	j.mu.Lock()
	j.StartedAt = t
	j.mu.Unlock()
}

// SetRepoKey records the "owner/repo" pair derived from RepoURL once
// clonePhase resolves it (SPEC_FULL.md §C.1).
func (j *JobState) SetRepoKey(key string) {
	j.mu.Lock()
	j.RepoKey = key
	j.mu.Unlock()
}

// Complete records the aggregated result of a successful run and marks the
// job Completed, all under one write lock so Snapshot never observes a
// partially-written result.
func (j *JobState) Complete(taskResults []TaskGradeResult, overallScore float64, percentage int, grade, summary string, duration time.Duration) {
	j.mu.Lock()
	j.TaskResults = taskResults
	j.OverallScore = overallScore
	j.Percentage = percentage
	j.Grade = grade
	j.Summary = summary
	j.Status = JobCompleted
	j.Duration = duration
	j.mu.Unlock()
}

// Fail marks the job Failed with err, recording how long it ran before
// failing.
func (j *JobState) Fail(err error, duration time.Duration) {
	j.mu.Lock()
	j.Status = JobFailed
	j.Err = err
	j.Duration = duration
	j.mu.Unlock()
}

// Snapshot projects a JobState into its externally visible GradeReport.
// Safe to call concurrently with an in-flight Engine.Run.
func (j *JobState) Snapshot() GradeReport {
	j.mu.RLock()
	defer j.mu.RUnlock()

	r := GradeReport{
		ID:           j.ID,
		RepoURL:      j.Request.RepoURL,
		Status:       j.Status,
		OverallScore: j.OverallScore,
		Percentage:   j.Percentage,
		Grade:        j.Grade,
		TaskResults:  j.TaskResults,
		Summary:      j.Summary,
		DurationMS:   j.Duration.Milliseconds(),
		Metadata:     j.Request.Metadata,
		RepoKey:      j.RepoKey,
	}
	if j.Err != nil {
		r.Error = j.Err.Error()
	}
	return r
}

// Ports

// Cloner clones a repository into a local, ephemeral workspace and returns
// its filesystem path. An out-of-scope collaborator per spec.md §1/§6.
type Cloner interface {
	Clone(ctx Context, repoURL, branch string) (localPath string, err error)
}

// CorpusFile is one (relative_path, contents) pair from the Corpus Reader.
type CorpusFile struct {
	Path     string
	Contents string
}

// CorpusReader walks a cloned repository and selects a bounded file corpus.
type CorpusReader interface {
	Read(ctx Context, rootDir string, maxFiles int) ([]CorpusFile, error)
}

// LLMClient is a provider-agnostic capability: given an ordered message list
// and an optional system prompt, return a text completion or a classified
// error (spec.md §4.1).
type LLMClient interface {
	// Name identifies the concrete provider, used for logging and metrics.
	Name() string
	// Chat sends systemPrompt (may be empty) and userPrompt and returns the
	// raw text completion.
	Chat(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Grader formats a prompt for one criterion against a corpus and parses the
// LLM's structured verdict. Stateless, safe for concurrent use.
type Grader interface {
	Check(ctx Context, repoURL string, task Task, criterion Criterion, corpus []CorpusFile, cfg GradeConfig) CriterionResult
}

// Broadcaster is the per-job event fan-out (spec.md §4.4).
type Broadcaster interface {
	// Publish sends an event to all current subscribers; never blocks, never fails.
	Publish(evt GradeEvent)
	// Subscribe attaches a new receiver that sees events published after this call.
	Subscribe() Subscription
}

// Subscription is a single subscriber's lossy, bounded event stream.
type Subscription interface {
	// Events returns the channel events are delivered on. It is closed only
	// by Close; reaping the job does not close it.
	Events() <-chan GradeEvent
	// Close detaches the subscriber and releases its buffer.
	Close()
}

// JobStore is the process-wide id→JobState mapping (spec.md §4.5).
type JobStore interface {
	Create(req GradeRequest) string
	Get(id string) (GradeReport, bool)
	Subscribe(id string) (Subscription, bool)
	Run(ctx Context, id string)
}

// PersistenceAdapter is the optional document-store collaborator (spec.md §6).
type PersistenceAdapter interface {
	SaveJob(ctx Context, req GradeRequest, curriculumID, taskID string) (string, error)
	UpdateJob(ctx Context, recordID string, report GradeReport) error
	UpdateTask(ctx Context, curriculumID, taskID string, report GradeReport) error
}
