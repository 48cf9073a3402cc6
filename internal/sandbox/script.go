package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jonathan/queryforge/internal/db"
)

// SynthesizeShellScript wraps a shell step's content in an executable script
// with strict error handling and step logging.
func SynthesizeShellScript(stepNumber int, content, description string) string {
	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	sb.WriteString("set -e\n")
	sb.WriteString("set -u\n")
	sb.WriteString("set -o pipefail\n\n")
	fmt.Fprintf(&sb, "STEP_NUMBER=%d\n", stepNumber)
	sb.WriteString(`
log_info() {
    echo "[INFO] [Step $STEP_NUMBER] $1"
}

log_error() {
    echo "[ERROR] [Step $STEP_NUMBER] $1" >&2
}

log_info "Starting execution"
`)
	if description != "" {
		fmt.Fprintf(&sb, "\n# Description: %s\n", description)
	}
	sb.WriteString("\n")
	sb.WriteString(content)
	sb.WriteString("\n\nlog_info \"Completed\"\nexit 0\n")
	return sb.String()
}

// SynthesizeSQLScript wraps a query step's content in a SQL script with
// provenance comments. Transaction control is stripped at execution time; the
// engine owns transaction boundaries.
func SynthesizeSQLScript(stepNumber int, content, description string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- Pipeline step %d\n", stepNumber)
	fmt.Fprintf(&sb, "-- Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	if description != "" {
		fmt.Fprintf(&sb, "-- Description: %s\n", description)
	}
	sb.WriteString("\n")
	sb.WriteString(content)
	sb.WriteString("\n")
	return sb.String()
}

var (
	beginTxPattern  = regexp.MustCompile(`(?im)^\s*BEGIN(\s+TRANSACTION)?\s*;?\s*$`)
	commitPattern   = regexp.MustCompile(`(?im)^\s*(COMMIT|END)(\s+TRANSACTION)?\s*;?\s*$`)
	rollbackPattern = regexp.MustCompile(`(?im)^\s*ROLLBACK\s*;?\s*$`)
)

// StripTransactionControl removes embedded BEGIN/COMMIT/ROLLBACK statements
// from generated SQL. The executor owns the transaction, not the script.
func StripTransactionControl(script string) string {
	script = beginTxPattern.ReplaceAllString(script, "")
	script = commitPattern.ReplaceAllString(script, "")
	script = rollbackPattern.ReplaceAllString(script, "")
	return strings.TrimSpace(script)
}

// ValidateShellSyntax runs `bash -n` on a script file. Best effort: a missing
// bash binary never fails synthesis.
func ValidateShellSyntax(ctx context.Context, scriptPath string) error {
	if _, err := exec.LookPath("bash"); err != nil {
		return nil
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(checkCtx, "bash", "-n", scriptPath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("shell syntax check failed: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

type manifestEntry struct {
	StepNumber int    `json:"step_number"`
	Type       string `json:"type"`
	Filename   string `json:"filename"`
}

type manifest struct {
	PipelineID  int64           `json:"pipeline_id"`
	GeneratedAt string          `json:"generated_at"`
	Scripts     []manifestEntry `json:"scripts"`
}

// WriteScripts materializes every step as a script file under the sandbox's
// scripts directory, validates shell syntax, and writes a manifest.
func WriteScripts(ctx context.Context, sandboxDir string, pipelineID int64, steps []db.PipelineStep) error {
	scriptsDir := filepath.Join(sandboxDir, "scripts")
	m := manifest{
		PipelineID:  pipelineID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	for _, step := range steps {
		var content, filename string
		if step.Kind == db.KindQuery {
			filename = fmt.Sprintf("step_%d_query.sql", step.StepNumber)
			content = SynthesizeSQLScript(step.StepNumber, step.Content, step.Description)
		} else {
			filename = fmt.Sprintf("step_%d_shell.sh", step.StepNumber)
			content = SynthesizeShellScript(step.StepNumber, step.Content, step.Description)
		}

		path := filepath.Join(scriptsDir, filename)
		if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
			return fmt.Errorf("failed to write script for step %d: %w", step.StepNumber, err)
		}
		if step.Kind == db.KindShell {
			if err := ValidateShellSyntax(ctx, path); err != nil {
				return fmt.Errorf("step %d: %w", step.StepNumber, err)
			}
		}
		m.Scripts = append(m.Scripts, manifestEntry{
			StepNumber: step.StepNumber,
			Type:       step.Kind,
			Filename:   filename,
		})
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sandboxDir, "manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
