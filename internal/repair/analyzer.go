// Package repair detects, classifies, and patches pipeline execution
// failures with oracle assistance.
package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/resources"
)

// Error categories assigned during failure analysis.
const (
	CategoryTableMissing     = "table_missing"
	CategoryFileNotFound     = "file_not_found"
	CategorySyntaxError      = "syntax_error"
	CategoryPermissionDenied = "permission_denied"
	CategoryTimeout          = "timeout"
	CategoryDataValidation   = "data_validation"
	CategorySchemaMismatch   = "schema_mismatch"
	CategoryUnknown          = "unknown"
)

// categoryPatterns associates each category with the substrings that signal
// it. Order matters: table errors come before file errors because both can
// phrase themselves as "does not exist".
var categoryPatterns = []struct {
	category string
	markers  []string
}{
	{CategoryTableMissing, []string{"table does not exist", "no such table", "unknown table"}},
	{CategoryFileNotFound, []string{"no such file", "cannot open", "file not found", "does not exist"}},
	{CategorySyntaxError, []string{"syntax error", "unexpected token", "parse error", "invalid syntax"}},
	{CategoryPermissionDenied, []string{"permission denied", "access denied", "forbidden"}},
	{CategoryTimeout, []string{"timeout", "timed out", "time limit exceeded"}},
	{CategoryDataValidation, []string{"constraint violation", "null value", "integrity constraint", "foreign key constraint"}},
	{CategorySchemaMismatch, []string{"column", "field", "mismatch", "incompatible"}},
}

// Classify maps an error message onto one of the repair categories.
func Classify(errorMessage string) string {
	lower := strings.ToLower(errorMessage)
	for _, cp := range categoryPatterns {
		for _, marker := range cp.markers {
			if strings.Contains(lower, marker) {
				return cp.category
			}
		}
	}
	return CategoryUnknown
}

// ErrorReport describes one classified execution failure.
type ErrorReport struct {
	ExecutionLogID  int64  `json:"execution_log_id"`
	PipelineID      int64  `json:"pipeline_id"`
	StepID          int64  `json:"step_id"`
	StepNumber      int    `json:"step_number"`
	StepKind        string `json:"step_kind"`
	OriginalContent string `json:"original_content"`
	ErrorMessage    string `json:"error_message"`
	ExitCode        int    `json:"exit_code"`
	Category        string `json:"category"`
}

// ContextSnapshot carries the resource and pipeline context the oracle needs
// to propose a fix. Schema and files come from the pipeline's stored
// snapshot, not the live environment, so repair sees what generation saw.
type ContextSnapshot struct {
	Request       string
	PreviousSteps []db.PipelineStep
	Schema        resources.DatabaseSchema
	Files         resources.Filesystem
}

// Analyzer turns failed execution logs into classified error reports.
type Analyzer struct {
	store *db.DB
}

// NewAnalyzer creates an Analyzer backed by the given store.
func NewAnalyzer(store *db.DB) *Analyzer {
	return &Analyzer{store: store}
}

// AnalyzeFailure loads a failed execution log and classifies its error.
func (a *Analyzer) AnalyzeFailure(ctx context.Context, logID int64) (*ErrorReport, error) {
	log, err := a.store.GetExecutionLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, fmt.Errorf("execution log not found: %d", logID)
	}
	if log.Succeeded {
		return nil, fmt.Errorf("execution log %d did not fail", logID)
	}

	message := log.Stderr
	if message == "" {
		message = "Unknown error"
	}

	return &ErrorReport{
		ExecutionLogID:  log.ID,
		PipelineID:      log.PipelineID,
		StepID:          log.StepID,
		StepNumber:      log.StepNumber,
		StepKind:        log.StepKind,
		OriginalContent: log.StepContent,
		ErrorMessage:    message,
		ExitCode:        log.ExitCode,
		Category:        Classify(message),
	}, nil
}

// GatherContext assembles the repair context for a failed step: the original
// request, every step preceding it, and the resource snapshot taken at
// generation time. A missing snapshot yields empty resources rather than an
// error.
func (a *Analyzer) GatherContext(ctx context.Context, pipelineID int64, failedStepNumber int) (*ContextSnapshot, error) {
	pipeline, err := a.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline not found: %d", pipelineID)
	}

	steps, err := a.store.ListSteps(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	var previous []db.PipelineStep
	for _, s := range steps {
		if s.StepNumber < failedStepNumber {
			previous = append(previous, s)
		}
	}

	snap := &ContextSnapshot{
		Request:       pipeline.OriginalRequest,
		PreviousSteps: previous,
	}

	stored, err := a.store.LatestSnapshot(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		if err := json.Unmarshal([]byte(stored.SchemaJSON), &snap.Schema); err != nil {
			return nil, fmt.Errorf("failed to decode schema snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(stored.FileListJSON), &snap.Files); err != nil {
			return nil, fmt.Errorf("failed to decode file snapshot: %w", err)
		}
	}
	return snap, nil
}
