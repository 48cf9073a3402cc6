package db

import "time"

// Pipeline status constants. Status is the single source of truth for where a
// pipeline sits in its lifecycle.
const (
	StatusPending          = "pending"
	StatusRunning          = "running"
	StatusSuccess          = "success"
	StatusFailed           = "failed"
	StatusRepaired         = "repaired"
	StatusCommitInProgress = "commit_in_progress"
	StatusCommitted        = "committed"
	StatusCommitFailed     = "commit_failed"
	StatusRolledBack       = "rolled_back"
)

// Step kind constants
const (
	KindShell = "shell"
	KindQuery = "query"
)

// Pipeline represents a generated pipeline and its lifecycle state
type Pipeline struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	OriginalRequest string     `json:"original_request"`
	Status          string     `json:"status"`
	CommittedAt     *time.Time `json:"committed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// PipelineStep is a single executable step within a pipeline. Content is
// mutated in place by the repair module and frozen once the pipeline commits.
type PipelineStep struct {
	ID          int64     `json:"id"`
	PipelineID  int64     `json:"pipeline_id"`
	StepNumber  int       `json:"step_number"`
	Kind        string    `json:"kind"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExecutionLog is an immutable record of one step execution attempt,
// sandbox or production. Rows are only ever inserted.
type ExecutionLog struct {
	ID         int64     `json:"id"`
	PipelineID int64     `json:"pipeline_id"`
	StepID     int64     `json:"step_id"`
	RunTime    time.Time `json:"run_time"`
	Succeeded  bool      `json:"succeeded"`
	Stdout     string    `json:"stdout,omitempty"`
	Stderr     string    `json:"stderr,omitempty"`
	ExitCode   int       `json:"exit_code"`
	DurationMs int64     `json:"duration_ms"`

	// Populated from the joined step row so diagnostics are self-contained.
	StepNumber  int    `json:"step_number"`
	StepKind    string `json:"step_kind"`
	StepContent string `json:"step_content"`
}

// RepairLog is an immutable record of one oracle-assisted repair attempt.
// Attempt numbers are monotonic per pipeline and bounded by configuration.
type RepairLog struct {
	ID             int64     `json:"id"`
	PipelineID     int64     `json:"pipeline_id"`
	AttemptNumber  int       `json:"attempt_number"`
	OriginalError  string    `json:"original_error"`
	FixRationale   string    `json:"fix_rationale"`
	PatchedContent string    `json:"patched_content"`
	ContentHash    string    `json:"content_hash"`
	Succeeded      bool      `json:"succeeded"`
	RepairedAt     time.Time `json:"repaired_at"`
}

// ResourceSnapshot is a point-in-time copy of the external resource context,
// taken before generation and again before commit.
type ResourceSnapshot struct {
	ID           int64     `json:"id"`
	PipelineID   int64     `json:"pipeline_id"`
	SchemaJSON   string    `json:"schema_json"`
	FileListJSON string    `json:"file_list_json"`
	TakenAt      time.Time `json:"taken_at"`
}

// StepInput is the payload for creating a pipeline step
type StepInput struct {
	StepNumber  int
	Kind        string
	Content     string
	Description string
}

// ExecutionLogInput is the payload for recording a step execution attempt
type ExecutionLogInput struct {
	PipelineID int64
	StepID     int64
	Succeeded  bool
	Stdout     string
	Stderr     string
	ExitCode   int
	DurationMs int64
}

// RepairLogInput is the payload for recording a repair attempt
type RepairLogInput struct {
	PipelineID     int64
	AttemptNumber  int
	OriginalError  string
	FixRationale   string
	PatchedContent string
	ContentHash    string
	Succeeded      bool
}
