package commit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/resources"
	"github.com/jonathan/queryforge/internal/sandbox"
	"github.com/jonathan/queryforge/internal/validation"
)

// ErrManualRollback marks rollbacks that need operator follow-up: SQL changes
// are final once committed and filesystem changes are only reversible by hand.
var ErrManualRollback = errors.New("production changes cannot be automatically reversed; manual intervention required")

// Result describes a commit attempt. On failure Status records where the
// pipeline landed and RollbackAvailable whether production data survived
// untouched.
type Result struct {
	PipelineID        int64      `json:"pipeline_id"`
	Status            string     `json:"status"`
	SnapshotID        int64      `json:"snapshot_id,omitempty"`
	SQLOperations     int        `json:"sql_operations"`
	FileOperations    int        `json:"file_operations"`
	CommittedAt       *time.Time `json:"committed_at,omitempty"`
	RollbackAvailable bool       `json:"rollback_available"`
}

// Committer applies verified pipelines to the production store and data
// directory.
type Committer struct {
	store       *db.DB
	provider    *resources.Provider
	dataDir     string
	stepTimeout time.Duration
}

// NewCommitter creates a Committer. A non-positive stepTimeout falls back to
// the sandbox default.
func NewCommitter(store *db.DB, provider *resources.Provider, dataDir string, stepTimeout time.Duration) *Committer {
	if stepTimeout <= 0 {
		stepTimeout = sandbox.DefaultStepTimeout
	}
	return &Committer{store: store, provider: provider, dataDir: dataDir, stepTimeout: stepTimeout}
}

// Commit validates and applies a pipeline to production. Query steps run in
// one transaction against the live store; shell steps then run sequentially
// against the live data directory. High-risk pipelines are refused unless
// force is set. Any failure moves the pipeline to commit_failed. The result
// accompanies the error on commit failures so callers can see how far the
// commit got.
func (c *Committer) Commit(ctx context.Context, pipelineID int64, force bool) (*Result, error) {
	report, err := c.Validate(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if !report.OK {
		return nil, fmt.Errorf("pre-commit validation failed: %v", report.Errors)
	}
	if report.RiskLevel == validation.RiskHigh && !force {
		return nil, fmt.Errorf("high-risk pipeline (score %d) refused; re-run with force to proceed", report.RiskScore)
	}

	if err := c.store.UpdatePipelineStatus(ctx, pipelineID, db.StatusCommitInProgress); err != nil {
		return nil, err
	}

	result := &Result{PipelineID: pipelineID, RollbackAvailable: true}

	snapshotID, err := c.takeSnapshot(ctx, pipelineID)
	if err != nil {
		return nil, c.fail(ctx, pipelineID, result, err)
	}
	result.SnapshotID = snapshotID

	steps, err := c.store.ListSteps(ctx, pipelineID)
	if err != nil {
		return nil, c.fail(ctx, pipelineID, result, err)
	}
	var queries, shells []db.PipelineStep
	for _, s := range steps {
		if s.Kind == db.KindQuery {
			queries = append(queries, s)
		} else {
			shells = append(shells, s)
		}
	}
	result.SQLOperations = len(queries)
	result.FileOperations = len(shells)

	if err := c.applyQuerySteps(ctx, pipelineID, queries); err != nil {
		// The transaction rolled back, so the store is intact.
		return result, c.fail(ctx, pipelineID, result, err)
	}

	if err := c.applyShellSteps(ctx, pipelineID, shells); err != nil {
		// Filesystem changes already applied cannot be unwound.
		result.RollbackAvailable = false
		return result, c.fail(ctx, pipelineID, result, err)
	}

	now := time.Now().UTC()
	if err := c.store.MarkCommitted(ctx, pipelineID); err != nil {
		return result, err
	}
	result.Status = db.StatusCommitted
	result.CommittedAt = &now
	return result, nil
}

// Rollback marks a committed pipeline as rolled back. Store mutations are
// permanent once committed, so this records intent and always returns
// ErrManualRollback alongside the status change.
func (c *Committer) Rollback(ctx context.Context, pipelineID int64) error {
	pipeline, err := c.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return err
	}
	if pipeline == nil {
		return fmt.Errorf("pipeline not found: %d", pipelineID)
	}
	if pipeline.Status != db.StatusCommitted {
		return fmt.Errorf("pipeline %d is not committed (status %q)", pipelineID, pipeline.Status)
	}
	if err := c.store.UpdatePipelineStatus(ctx, pipelineID, db.StatusRolledBack); err != nil {
		return err
	}
	return ErrManualRollback
}

// fail moves the pipeline to commit_failed, combining the status-update error
// with the original cause when both occur.
func (c *Committer) fail(ctx context.Context, pipelineID int64, result *Result, cause error) error {
	result.Status = db.StatusCommitFailed
	if err := c.store.UpdatePipelineStatus(ctx, pipelineID, db.StatusCommitFailed); err != nil {
		return multierror.Append(cause, err)
	}
	return cause
}

// takeSnapshot records the production resource state immediately before any
// change is applied.
func (c *Committer) takeSnapshot(ctx context.Context, pipelineID int64) (int64, error) {
	rc, err := c.provider.Refresh(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to snapshot resources: %w", err)
	}
	schemaJSON, fileListJSON, err := resources.Snapshot(rc)
	if err != nil {
		return 0, err
	}
	return c.store.InsertSnapshot(ctx, pipelineID, schemaJSON, fileListJSON)
}

// applyQuerySteps executes every query step inside a single transaction on
// the production store. Execution logs are buffered and written after the
// transaction ends; the store runs on one connection, so inserting while the
// transaction holds it would deadlock.
func (c *Committer) applyQuerySteps(ctx context.Context, pipelineID int64, steps []db.PipelineStep) error {
	if len(steps) == 0 {
		return nil
	}

	var logs []db.ExecutionLogInput
	applyErr := func() error {
		tx, err := c.store.Conn().BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin commit transaction: %w", err)
		}
		defer tx.Rollback()

		for _, step := range steps {
			cleaned := sandbox.StripTransactionControl(step.Content)
			if cleaned == "" {
				continue
			}

			start := time.Now()
			if _, err := tx.ExecContext(ctx, cleaned); err != nil {
				logs = append(logs, db.ExecutionLogInput{
					PipelineID: pipelineID,
					StepID:     step.ID,
					Stderr:     err.Error(),
					ExitCode:   1,
				})
				return fmt.Errorf("step %d failed: %w", step.StepNumber, err)
			}
			logs = append(logs, db.ExecutionLogInput{
				PipelineID: pipelineID,
				StepID:     step.ID,
				Succeeded:  true,
				Stdout:     "SQL executed successfully",
				DurationMs: time.Since(start).Milliseconds(),
			})
		}
		return tx.Commit()
	}()

	var logErrs error
	for _, in := range logs {
		if _, err := c.store.InsertExecutionLog(ctx, in); err != nil {
			logErrs = multierror.Append(logErrs, err)
		}
	}
	if applyErr != nil {
		if logErrs != nil {
			return multierror.Append(applyErr, logErrs)
		}
		return applyErr
	}
	return logErrs
}

// applyShellSteps runs shell steps sequentially against the production data
// directory, halting at the first failure. Each step gets a synthesized
// script and an execution log row.
func (c *Committer) applyShellSteps(ctx context.Context, pipelineID int64, steps []db.PipelineStep) error {
	for _, step := range steps {
		script := sandbox.SynthesizeShellScript(step.StepNumber, step.Content, step.Description)
		scriptPath := filepath.Join(c.dataDir, fmt.Sprintf(".commit_step_%d_%d.sh", pipelineID, step.StepNumber))
		if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
			return fmt.Errorf("failed to write commit script: %w", err)
		}

		start := time.Now()
		stdout, stderr, exitCode := sandbox.RunShellScript(ctx, scriptPath, c.dataDir, c.stepTimeout)
		_ = os.Remove(scriptPath)

		if _, err := c.store.InsertExecutionLog(ctx, db.ExecutionLogInput{
			PipelineID: pipelineID,
			StepID:     step.ID,
			Succeeded:  exitCode == 0,
			Stdout:     stdout,
			Stderr:     stderr,
			ExitCode:   exitCode,
			DurationMs: time.Since(start).Milliseconds(),
		}); err != nil {
			return err
		}
		if exitCode != 0 {
			return fmt.Errorf("step %d failed with exit code %d: %s", step.StepNumber, exitCode, stderr)
		}
	}
	return nil
}
