// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/sandbox"
	"github.com/jonathan/queryforge/internal/validation"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintPipeline outputs a human-readable summary of a pipeline and its steps.
func (p *Printer) PrintPipeline(pipeline *db.Pipeline, steps []db.PipelineStep) {
	if pipeline == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Request:  %s\n", pipeline.OriginalRequest))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", pipeline.Status))
	sb.WriteString(fmt.Sprintf("Steps:    %d\n", len(steps)))
	sb.WriteString("\n")

	for _, step := range steps {
		content := step.Content
		if idx := strings.IndexByte(content, '\n'); idx >= 0 {
			content = content[:idx] + " ..."
		}
		sb.WriteString(fmt.Sprintf("  %d. [%s] %s\n", step.StepNumber, step.Kind, content))
	}

	p.printBox(fmt.Sprintf("Pipeline %d", pipeline.ID), sb.String())
}

// PrintValidationReport outputs validation errors, warnings, and the risk
// assessment.
func (p *Printer) PrintValidationReport(report *validation.Report) {
	if report == nil {
		return
	}

	var sb strings.Builder
	verdict := "PASS"
	if !report.IsValid {
		verdict = "FAIL"
	}
	sb.WriteString(fmt.Sprintf("Verdict:  %s\n", verdict))
	sb.WriteString(fmt.Sprintf("Risk:     %s (score %d)\n", report.RiskLevel, report.RiskScore))

	if len(report.Errors) > 0 {
		sb.WriteString("\nErrors:\n")
		count := min(len(report.Errors), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", report.Errors[i].String()))
		}
		if len(report.Errors) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(report.Errors)-maxItemsToShow))
		}
	}

	if len(report.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		count := min(len(report.Warnings), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", report.Warnings[i].String()))
		}
		if len(report.Warnings) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(report.Warnings)-maxItemsToShow))
		}
	}

	p.printBox("Validation Report", sb.String())
}

// PrintRunReport outputs per-step sandbox execution results.
func (p *Printer) PrintRunReport(report *sandbox.Report) {
	if report == nil {
		return
	}

	var sb strings.Builder
	for _, r := range report.Results {
		mark := "ok"
		if !r.Succeeded {
			mark = fmt.Sprintf("exit %d", r.ExitCode)
		}
		sb.WriteString(fmt.Sprintf("  %d. [%s] %s (%dms)\n", r.StepNumber, r.Kind, mark, r.DurationMs))
		if !r.Succeeded && r.Stderr != "" {
			sb.WriteString(fmt.Sprintf("     %s\n", firstLine(r.Stderr)))
		}
	}
	if report.OverallSuccess {
		sb.WriteString("\nResult: all steps succeeded\n")
	} else {
		sb.WriteString("\nResult: run failed\n")
		if report.SandboxDir != "" {
			sb.WriteString(fmt.Sprintf("Sandbox kept at %s\n", report.SandboxDir))
		}
	}

	p.printBox(fmt.Sprintf("Sandbox Run: Pipeline %d", report.PipelineID), sb.String())
}

// PrintExecutionLogs outputs stored execution logs, most useful after a
// failed run.
func (p *Printer) PrintExecutionLogs(logs []db.ExecutionLog) {
	var sb strings.Builder
	for _, l := range logs {
		mark := "ok"
		if !l.Succeeded {
			mark = fmt.Sprintf("exit %d", l.ExitCode)
		}
		sb.WriteString(fmt.Sprintf("  #%d step %d [%s] %s\n", l.ID, l.StepNumber, l.StepKind, mark))
		if !l.Succeeded && l.Stderr != "" {
			sb.WriteString(fmt.Sprintf("     %s\n", firstLine(l.Stderr)))
		}
	}
	if len(logs) == 0 {
		sb.WriteString("  no executions recorded\n")
	}

	p.printBox("Execution Logs", sb.String())
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
