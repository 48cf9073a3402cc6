package repair

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/llm"
	"github.com/jonathan/queryforge/internal/resources"
	"github.com/jonathan/queryforge/internal/validation"
)

// DefaultMaxAttempts bounds oracle-assisted repairs per pipeline.
const DefaultMaxAttempts = 3

// Result describes one completed repair attempt.
type Result struct {
	Attempt        int    `json:"attempt"`
	StepNumber     int    `json:"step_number"`
	Category       string `json:"category"`
	FixReason      string `json:"fix_reason"`
	PatchedContent string `json:"patched_content"`
}

// Loop orchestrates failure analysis, fix generation, and fix application.
type Loop struct {
	store           *db.DB
	oracle          llm.Client
	provider        *resources.Provider
	analyzer        *Analyzer
	allowedCommands []string
	maxAttempts     int
}

// NewLoop creates a repair loop. A non-positive maxAttempts falls back to
// DefaultMaxAttempts; nil allowedCommands falls back to the validation
// defaults.
func NewLoop(store *db.DB, oracle llm.Client, provider *resources.Provider, allowedCommands []string, maxAttempts int) *Loop {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if allowedCommands == nil {
		allowedCommands = validation.DefaultAllowedCommands
	}
	return &Loop{
		store:           store,
		oracle:          oracle,
		provider:        provider,
		analyzer:        NewAnalyzer(store),
		allowedCommands: allowedCommands,
		maxAttempts:     maxAttempts,
	}
}

// Run executes one repair attempt against the pipeline's latest failure.
// Every attempt is recorded, including ones that produce no usable fix, so
// the attempt budget always advances. A successful attempt patches the step
// in place and moves the pipeline to repaired; the caller re-runs the
// sandbox to verify.
func (l *Loop) Run(ctx context.Context, pipelineID int64) (*Result, error) {
	used, err := l.store.CountRepairAttempts(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if used >= l.maxAttempts {
		if err := l.store.UpdatePipelineStatus(ctx, pipelineID, db.StatusFailed); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("maximum repair attempts (%d) exceeded for pipeline %d", l.maxAttempts, pipelineID)
	}
	attempt := used + 1

	failure, err := l.store.LatestFailure(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if failure == nil {
		return nil, fmt.Errorf("pipeline %d has no failed execution to repair", pipelineID)
	}

	report, err := l.analyzer.AnalyzeFailure(ctx, failure.ID)
	if err != nil {
		return nil, err
	}
	snap, err := l.analyzer.GatherContext(ctx, pipelineID, report.StepNumber)
	if err != nil {
		return nil, err
	}

	prompt := BuildRepairPrompt(report, snap, l.allowedCommands)
	raw, err := l.oracle.GenerateJSON(ctx, prompt)
	if err != nil {
		l.recordAttempt(ctx, pipelineID, attempt, report.ErrorMessage, "Failed to generate fix", "", false)
		return nil, fmt.Errorf("failed to generate fix: %w", err)
	}

	fix, err := llm.ParseRepairResponse(raw)
	if err != nil {
		l.recordAttempt(ctx, pipelineID, attempt, report.ErrorMessage, "Failed to parse fix", "", false)
		return nil, fmt.Errorf("failed to parse fix: %w", err)
	}

	hash := ContentHash(fix.PatchedCode)
	seen, err := l.store.HasRepairHash(ctx, pipelineID, hash)
	if err != nil {
		return nil, err
	}
	if seen {
		l.recordAttempt(ctx, pipelineID, attempt, report.ErrorMessage, fix.FixReason, fix.PatchedCode, false)
		return nil, fmt.Errorf("oracle produced an identical fix to a previous attempt")
	}

	if err := l.validateFix(ctx, report, fix.PatchedCode); err != nil {
		l.recordAttempt(ctx, pipelineID, attempt, report.ErrorMessage, fix.FixReason, fix.PatchedCode, false)
		return nil, fmt.Errorf("fix rejected: %w", err)
	}

	if err := l.store.UpdateStepContent(ctx, report.StepID, fix.PatchedCode); err != nil {
		l.recordAttempt(ctx, pipelineID, attempt, report.ErrorMessage, fix.FixReason, fix.PatchedCode, false)
		return nil, err
	}

	// Recorded as succeeded optimistically; the verdict is the next sandbox run.
	if _, err := l.store.InsertRepairLog(ctx, db.RepairLogInput{
		PipelineID:     pipelineID,
		AttemptNumber:  attempt,
		OriginalError:  report.ErrorMessage,
		FixRationale:   fix.FixReason,
		PatchedContent: fix.PatchedCode,
		ContentHash:    hash,
		Succeeded:      true,
	}); err != nil {
		return nil, err
	}
	if err := l.store.UpdatePipelineStatus(ctx, pipelineID, db.StatusRepaired); err != nil {
		return nil, err
	}

	return &Result{
		Attempt:        attempt,
		StepNumber:     report.StepNumber,
		Category:       report.Category,
		FixReason:      fix.FixReason,
		PatchedContent: fix.PatchedCode,
	}, nil
}

// validateFix re-runs step validation on the patched content against the
// live resource context. Validation errors reject the fix without consuming
// another oracle call.
func (l *Loop) validateFix(ctx context.Context, report *ErrorReport, patched string) error {
	if strings.TrimSpace(patched) == "" {
		return fmt.Errorf("patched content is empty")
	}

	rc, err := l.provider.Context(ctx)
	if err != nil {
		return err
	}

	steps, err := l.store.ListSteps(ctx, report.PipelineID)
	if err != nil {
		return err
	}
	var prior []db.PipelineStep
	for _, s := range steps {
		if s.StepNumber < report.StepNumber {
			prior = append(prior, s)
		}
	}

	patchedStep := db.PipelineStep{
		ID:         report.StepID,
		PipelineID: report.PipelineID,
		StepNumber: report.StepNumber,
		Kind:       report.StepKind,
		Content:    patched,
	}
	rep := validation.New(rc, l.allowedCommands).ValidateStep(patchedStep, prior)
	if !rep.IsValid {
		msgs := make([]string, 0, len(rep.Errors))
		for _, issue := range rep.Errors {
			msgs = append(msgs, issue.Message)
		}
		return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func (l *Loop) recordAttempt(ctx context.Context, pipelineID int64, attempt int, originalError, reason, patched string, succeeded bool) {
	_, _ = l.store.InsertRepairLog(ctx, db.RepairLogInput{
		PipelineID:     pipelineID,
		AttemptNumber:  attempt,
		OriginalError:  originalError,
		FixRationale:   reason,
		PatchedContent: patched,
		ContentHash:    ContentHash(patched),
		Succeeded:      succeeded,
	})
}

// ContentHash fingerprints patched content for duplicate-fix detection.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
