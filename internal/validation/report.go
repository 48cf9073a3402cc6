// Package validation checks generated pipeline steps against the command
// allow-list and the live resource context, and scores commit risk.
package validation

import "fmt"

// Risk levels derived from the numeric risk score.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Issue types reported by the validator.
const (
	IssueEmptyStep            = "empty_step"
	IssueTableNotFound        = "table_not_found"
	IssueDangerousCommand     = "dangerous_command"
	IssueUnknownCommand       = "unknown_command"
	IssueFileNotFound         = "file_not_found"
	IssueDestructiveOperation = "destructive_operation"
	IssueSchemaMismatch       = "schema_mismatch"
	IssueSchemaUnknown        = "schema_unknown"
	IssueIncompleteData       = "incomplete_data"
)

// Issue is one validation finding, attributed to a step.
type Issue struct {
	StepNumber int      `json:"step_number"`
	Type       string   `json:"type"`
	Message    string   `json:"message"`
	Available  []string `json:"available,omitempty"`
	Extra      []string `json:"extra,omitempty"`
	Missing    []string `json:"missing,omitempty"`
}

func (i Issue) String() string {
	return fmt.Sprintf("step %d [%s]: %s", i.StepNumber, i.Type, i.Message)
}

// Report is the outcome of validating a pipeline. It is transient and never
// persisted; callers re-validate whenever they need a current view.
type Report struct {
	IsValid   bool    `json:"is_valid"`
	Errors    []Issue `json:"errors"`
	Warnings  []Issue `json:"warnings"`
	RiskScore int     `json:"risk_score"`
	RiskLevel string  `json:"risk_level"`
}

// RiskLevelFor buckets a numeric risk score.
func RiskLevelFor(score int) string {
	switch {
	case score <= 10:
		return RiskLow
	case score <= 30:
		return RiskMedium
	default:
		return RiskHigh
	}
}
