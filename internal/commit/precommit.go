// Package commit promotes sandbox-verified pipelines to production with
// pre-commit validation, snapshots, and transactional SQL application.
package commit

import (
	"context"
	"fmt"

	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/validation"
)

// Report is the pre-commit validation verdict for one pipeline.
type Report struct {
	OK        bool     `json:"ok"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	RiskScore int      `json:"risk_score"`
	RiskLevel string   `json:"risk_level"`
}

// Validate checks that a pipeline is fit to commit: it must exist, sit in a
// verified status, and have a successful latest execution. Destructive
// operations and prior failed repairs surface as warnings and feed the risk
// score.
func (c *Committer) Validate(ctx context.Context, pipelineID int64) (*Report, error) {
	report := &Report{}

	pipeline, err := c.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline not found: %d", pipelineID)
	}

	if pipeline.Status != db.StatusSuccess && pipeline.Status != db.StatusRepaired {
		report.Errors = append(report.Errors,
			fmt.Sprintf("pipeline status is %q; a verified sandbox run is required before commit", pipeline.Status))
	}

	logs, err := c.store.ListExecutionLogs(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 || !logs[len(logs)-1].Succeeded {
		report.Errors = append(report.Errors, "latest execution was not successful")
	}

	repairs, err := c.store.ListRepairLogs(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	failedRepairs := 0
	for _, r := range repairs {
		if !r.Succeeded {
			failedRepairs++
		}
	}
	if failedRepairs > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d unsuccessful repair attempts exist", failedRepairs))
	}

	steps, err := c.store.ListSteps(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		switch step.Kind {
		case db.KindQuery:
			if n := validation.CountDestructiveOperations(step.Content); n > 0 {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("step %d contains %d destructive SQL operation(s)", step.StepNumber, n))
			}
		default:
			if validation.HasFileDeletion(step.Content) {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("step %d deletes files", step.StepNumber))
			}
		}
	}

	report.RiskScore = validation.RiskScore(steps)
	report.RiskLevel = validation.RiskLevelFor(report.RiskScore)
	if report.RiskLevel == validation.RiskHigh {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("high risk score: %d", report.RiskScore))
	}

	report.OK = len(report.Errors) == 0
	return report, nil
}
