package repair

import (
	"fmt"
	"strings"
)

// sanitizeDiagnostic rewrites interpreter-specific phrasing in error output
// before it reaches the oracle. Raw shell diagnostics trip safety filters.
func sanitizeDiagnostic(message string) string {
	message = strings.ReplaceAll(message, "bash:", "shell:")
	message = strings.ReplaceAll(message, "/usr/bin/bash", "shell")
	return message
}

// BuildRepairPrompt renders the repair request for one failed step: the
// snapshot resources, the original task, every preceding step, and the
// classified failure.
func BuildRepairPrompt(report *ErrorReport, snap *ContextSnapshot, allowedCommands []string) string {
	var sb strings.Builder

	sb.WriteString("You are a helpful code correction assistant. A data processing step encountered an issue.\n\n")

	sb.WriteString("AVAILABLE RESOURCES:\nDatabase Tables:\n")
	if len(snap.Schema.Tables) == 0 {
		sb.WriteString("No tables available\n")
	}
	for _, table := range snap.Schema.Tables {
		cols := make([]string, 0, len(table.Columns))
		for _, c := range table.Columns {
			cols = append(cols, fmt.Sprintf("%s (%s)", c.Name, c.Type))
		}
		fmt.Fprintf(&sb, "- %s: %s\n", table.Name, strings.Join(cols, ", "))
	}

	sb.WriteString("\nData Files:\n")
	if len(snap.Files.Files) == 0 {
		sb.WriteString("No files available\n")
	}
	for _, f := range snap.Files.Files {
		fmt.Fprintf(&sb, "- %s\n", f.Path)
	}

	fmt.Fprintf(&sb, "\nAllowed Shell Commands: %s\n", strings.Join(allowedCommands, ", "))
	fmt.Fprintf(&sb, "\nUser Request: %s\n", snap.Request)

	sb.WriteString("\nPREVIOUS STEPS:\n")
	if len(snap.PreviousSteps) == 0 {
		sb.WriteString("No previous steps\n")
	}
	for _, step := range snap.PreviousSteps {
		fmt.Fprintf(&sb, "\nStep %d (%s):\n%s\n", step.StepNumber, step.Kind, step.Content)
	}

	sb.WriteString("\nSTEP THAT NEEDS CORRECTION:\n")
	fmt.Fprintf(&sb, "Step %d (%s):\n%s\n", report.StepNumber, report.StepKind, report.OriginalContent)

	sb.WriteString("\nISSUE DETECTED:\n")
	fmt.Fprintf(&sb, "Category: %s\n", report.Category)
	fmt.Fprintf(&sb, "Details: %s\n", sanitizeDiagnostic(report.ErrorMessage))

	sb.WriteString("\nPLEASE PROVIDE:\nA corrected version of the step that resolves the issue.\n")
	sb.WriteString("\nOUTPUT FORMAT (JSON only):\n")
	fmt.Fprintf(&sb, "{\n  \"fix_reason\": \"explanation of the correction\",\n  \"patched_code\": \"corrected %s code\"\n}\n", report.StepKind)
	sb.WriteString("\nIMPORTANT:\n- Return valid JSON only\n- No markdown formatting\n- Use only listed resources\n- Correct the specific issue mentioned\n")

	return sb.String()
}
