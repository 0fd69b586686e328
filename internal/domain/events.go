package domain

// EventType is the snake_case discriminator serialized in GradeEvent's
// "type" field (spec.md §6: `{"type":"<snake_case_variant>", …}`).
type EventType string

const (
	EventGradeStarted     EventType = "grade_started"
	EventCloningStarted   EventType = "cloning_started"
	EventCloningCompleted EventType = "cloning_completed"
	EventAnalysisStarted  EventType = "analysis_started"
	EventAnalysisComplete EventType = "analysis_completed"
	EventTaskStarted      EventType = "task_started"
	EventCriterionChecked EventType = "criterion_checked"
	EventTaskCompleted    EventType = "task_completed"
	EventGradeCompleted   EventType = "grade_completed"
	EventGradeFailed      EventType = "grade_failed"
	EventPing             EventType = "ping"
)

// GradeEvent is one of the eleven progress-stream variants of spec.md §4.4.
// Only the fields relevant to Type are populated; every field except "type"
// is omitempty, so a serialized event carries "type" plus those of its own
// fields whose value is non-zero. A zero-valued field of the event's own
// variant (task_index 0, passed false, recoverable false, a score of 0) is
// omitted as well.
type GradeEvent struct {
	Type EventType `json:"type"`

	// GradeStarted
	GradeID       string `json:"grade_id,omitempty"`
	RepoURL       string `json:"repo_url,omitempty"`
	TaskCount     int    `json:"task_count,omitempty"`
	TotalCriteria int    `json:"total_criteria,omitempty"`

	// CloningCompleted / GradeCompleted
	DurationMS int64 `json:"duration_ms,omitempty"`

	// AnalysisCompleted
	FileCount  int `json:"file_count,omitempty"`
	TotalLines int `json:"total_lines,omitempty"`

	// TaskStarted / TaskCompleted
	TaskIndex     int        `json:"task_index,omitempty"`
	TaskTitle     string     `json:"title,omitempty"`
	CriteriaCount int        `json:"criteria_count,omitempty"`
	Score         float64    `json:"score,omitempty"`
	Status        TaskStatus `json:"status,omitempty"`
	PassedCount   int        `json:"passed_count,omitempty"`
	TotalCount    int        `json:"total_count,omitempty"`

	// CriterionChecked
	CriterionIndex int     `json:"criterion_index,omitempty"`
	Criterion      string  `json:"criterion,omitempty"`
	Passed         bool    `json:"passed,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`

	// GradeCompleted
	OverallScore float64 `json:"overall_score,omitempty"`
	Percentage   int     `json:"percentage,omitempty"`
	Grade        string  `json:"grade,omitempty"`
	Summary      string  `json:"summary,omitempty"`

	// GradeFailed
	Error       string `json:"error,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}
