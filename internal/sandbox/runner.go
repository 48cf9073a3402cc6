// Package sandbox executes pipeline steps against isolated copies of the data
// directory and the relational store.
package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jonathan/queryforge/internal/db"
)

// DefaultStepTimeout is the wall-clock budget for one shell step.
const DefaultStepTimeout = 10 * time.Second

// timeoutExitCode mirrors the conventional exit status of timed-out commands.
const timeoutExitCode = 124

// StepResult is the outcome of one executed step.
type StepResult struct {
	StepNumber int    `json:"step_number"`
	StepID     int64  `json:"step_id"`
	Kind       string `json:"kind"`
	Succeeded  bool   `json:"succeeded"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	LogID      int64  `json:"log_id"`
}

// Report summarizes one sandbox run.
type Report struct {
	PipelineID     int64        `json:"pipeline_id"`
	SandboxDir     string       `json:"sandbox_dir,omitempty"`
	Results        []StepResult `json:"results"`
	OverallSuccess bool         `json:"overall_success"`
}

// FailedLogID returns the execution log ID of the first failed step, or 0.
func (r *Report) FailedLogID() int64 {
	for _, res := range r.Results {
		if !res.Succeeded {
			return res.LogID
		}
	}
	return 0
}

// Runner executes pipelines in isolated sandbox directories.
type Runner struct {
	store       *db.DB
	dataDir     string
	baseDir     string
	stepTimeout time.Duration
}

// NewRunner creates a Runner. A non-positive stepTimeout falls back to
// DefaultStepTimeout.
func NewRunner(store *db.DB, dataDir, baseDir string, stepTimeout time.Duration) *Runner {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Runner{store: store, dataDir: dataDir, baseDir: baseDir, stepTimeout: stepTimeout}
}

// Run executes every step of a pipeline in order inside a fresh sandbox.
// Execution stops at the first failure; the sandbox directory is removed only
// on overall success and kept for inspection otherwise. One ExecutionLog row
// is written per attempted step, and the pipeline status is updated at run end.
func (r *Runner) Run(ctx context.Context, pipelineID int64) (*Report, error) {
	pipeline, err := r.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline not found: %d", pipelineID)
	}

	steps, err := r.store.ListSteps(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline %d has no steps", pipelineID)
	}

	sandboxDir, err := r.createEnvironment(pipelineID)
	if err != nil {
		return nil, err
	}

	if err := WriteScripts(ctx, sandboxDir, pipelineID, steps); err != nil {
		return nil, err
	}

	if err := r.store.UpdatePipelineStatus(ctx, pipelineID, db.StatusRunning); err != nil {
		return nil, err
	}

	report := &Report{PipelineID: pipelineID, SandboxDir: sandboxDir}
	allSucceeded := true

	for _, step := range steps {
		result := r.executeStep(ctx, sandboxDir, step)

		logID, logErr := r.store.InsertExecutionLog(ctx, db.ExecutionLogInput{
			PipelineID: pipelineID,
			StepID:     step.ID,
			Succeeded:  result.Succeeded,
			Stdout:     result.Stdout,
			Stderr:     result.Stderr,
			ExitCode:   result.ExitCode,
			DurationMs: result.DurationMs,
		})
		if logErr != nil {
			return nil, logErr
		}
		result.LogID = logID
		report.Results = append(report.Results, result)

		if !result.Succeeded {
			allSucceeded = false
			break
		}
	}
	report.OverallSuccess = allSucceeded

	status := db.StatusFailed
	if allSucceeded {
		status = db.StatusSuccess
	}
	if err := r.store.UpdatePipelineStatus(ctx, pipelineID, status); err != nil {
		return nil, err
	}

	// Keep the sandbox on failure so the repair loop can inspect it.
	if allSucceeded {
		_ = os.RemoveAll(sandboxDir)
		report.SandboxDir = ""
	}
	return report, nil
}

// createEnvironment builds the sandbox directory tree and copies input files.
func (r *Runner) createEnvironment(pipelineID int64) (string, error) {
	name := fmt.Sprintf("pipeline_%d_%s", pipelineID, uuid.New().String()[:8])
	sandboxDir := filepath.Join(r.baseDir, name)

	for _, sub := range []string{"data", "tmp", "scripts", "logs"} {
		if err := os.MkdirAll(filepath.Join(sandboxDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("failed to create sandbox directory: %w", err)
		}
	}

	if err := copyDataFiles(r.dataDir, filepath.Join(sandboxDir, "data")); err != nil {
		return "", err
	}
	return sandboxDir, nil
}

func (r *Runner) executeStep(ctx context.Context, sandboxDir string, step db.PipelineStep) StepResult {
	result := StepResult{
		StepNumber: step.StepNumber,
		StepID:     step.ID,
		Kind:       step.Kind,
	}
	start := time.Now()

	var stdout, stderr string
	var exitCode int
	if step.Kind == db.KindQuery {
		scriptPath := filepath.Join(sandboxDir, "scripts", fmt.Sprintf("step_%d_query.sql", step.StepNumber))
		stdout, stderr, exitCode = r.executeQueryStep(ctx, sandboxDir, scriptPath)
	} else {
		scriptPath := filepath.Join(sandboxDir, "scripts", fmt.Sprintf("step_%d_shell.sh", step.StepNumber))
		stdout, stderr, exitCode = r.executeShellStep(ctx, sandboxDir, scriptPath)
	}

	result.Stdout = stdout
	result.Stderr = stderr
	result.ExitCode = exitCode
	result.Succeeded = exitCode == 0
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// executeShellStep runs a shell script with the sandbox data directory as its
// working directory and a wall-clock timeout.
func (r *Runner) executeShellStep(ctx context.Context, sandboxDir, scriptPath string) (stdout, stderr string, exitCode int) {
	return RunShellScript(ctx, scriptPath, filepath.Join(sandboxDir, "data"), r.stepTimeout)
}

// RunShellScript executes a script through bash with capped output capture
// and a wall-clock timeout. A timed-out run reports the conventional exit
// status 124.
func RunShellScript(ctx context.Context, scriptPath, workDir string, timeout time.Duration) (stdout, stderr string, exitCode int) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, "bash", scriptPath)
	cmd.Dir = workDir

	var outBuf, errBuf limitedBuffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Sprintf("Execution timeout after %s", timeout), timeoutExitCode
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return outBuf.String(), errBuf.String(), exitErr.ExitCode()
		}
		return outBuf.String(), err.Error(), 1
	}
	return outBuf.String(), errBuf.String(), 0
}

// executeQueryStep runs a SQL script inside one transaction against the
// sandbox's private store copy. The copy is created lazily on the first query
// step so every step in the run shares one store instance.
func (r *Runner) executeQueryStep(ctx context.Context, sandboxDir, scriptPath string) (stdout, stderr string, exitCode int) {
	sandboxStore := filepath.Join(sandboxDir, "sandbox.db")
	if _, err := os.Stat(sandboxStore); os.IsNotExist(err) {
		if err := copyFile(r.store.Path(), sandboxStore); err != nil {
			return "", fmt.Sprintf("failed to copy store into sandbox: %v", err), 1
		}
	}

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return "", err.Error(), 1
	}

	conn, err := sql.Open("sqlite3", sandboxStore+"?_foreign_keys=on")
	if err != nil {
		return "", err.Error(), 1
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return "", err.Error(), 1
	}

	cleaned := StripTransactionControl(string(script))
	if _, err := tx.ExecContext(ctx, cleaned); err != nil {
		_ = tx.Rollback()
		return "", err.Error(), 1
	}
	if err := tx.Commit(); err != nil {
		return "", err.Error(), 1
	}
	return "SQL script executed successfully", "", 0
}

// limitedBuffer caps captured output so a runaway step cannot exhaust memory.
type limitedBuffer struct {
	buf []byte
}

const outputCap = 1 << 20

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := outputCap - len(b.buf)
	if remaining > 0 {
		if len(p) > remaining {
			b.buf = append(b.buf, p[:remaining]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}

func copyDataFiles(srcDir, destDir string) error {
	entries, err := os.ReadDir(srcDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(srcDir, entry.Name())
		dest := filepath.Join(destDir, entry.Name())
		if err := copyFile(src, dest); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
