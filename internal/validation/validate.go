package validation

import (
	"sort"
	"strings"

	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/resources"
)

// Validator checks pipeline steps against the command allow-list and a
// point-in-time resource context.
type Validator struct {
	resources   *resources.Context
	allowed     map[string]bool
	knownTables map[string]bool
}

// New creates a Validator. A nil allowedCommands falls back to
// DefaultAllowedCommands.
func New(rc *resources.Context, allowedCommands []string) *Validator {
	if allowedCommands == nil {
		allowedCommands = DefaultAllowedCommands
	}
	allowed := make(map[string]bool, len(allowedCommands))
	for _, cmd := range allowedCommands {
		allowed[cmd] = true
	}

	knownTables := map[string]bool{}
	if rc != nil {
		for _, name := range rc.TableNames() {
			knownTables[strings.ToLower(name)] = true
		}
	}
	return &Validator{resources: rc, allowed: allowed, knownTables: knownTables}
}

// ValidatePipeline validates an ordered step list and scores its risk.
// Tables created by earlier steps satisfy later references.
func (v *Validator) ValidatePipeline(steps []db.PipelineStep) *Report {
	report := &Report{Errors: []Issue{}, Warnings: []Issue{}}
	createdTables := map[string]bool{}

	for _, step := range steps {
		var errs, warns []Issue
		switch step.Kind {
		case db.KindQuery:
			errs, warns = v.validateQueryStep(step.StepNumber, step.Content, createdTables)
		default:
			errs, warns = v.validateShellStep(step.StepNumber, step.Content)
		}
		report.Errors = append(report.Errors, errs...)
		report.Warnings = append(report.Warnings, warns...)
	}

	report.IsValid = len(report.Errors) == 0
	report.RiskScore = RiskScore(steps)
	report.RiskLevel = RiskLevelFor(report.RiskScore)
	return report
}

// ValidateStep validates a single step, seeding the created-table set from the
// steps that precede it. Used to re-check a repaired step in isolation.
func (v *Validator) ValidateStep(step db.PipelineStep, priorSteps []db.PipelineStep) *Report {
	createdTables := map[string]bool{}
	for _, prior := range priorSteps {
		if prior.Kind != db.KindQuery {
			continue
		}
		for _, m := range createTablePattern.FindAllStringSubmatch(prior.Content, -1) {
			createdTables[strings.ToLower(m[1])] = true
		}
	}

	report := &Report{Errors: []Issue{}, Warnings: []Issue{}}
	switch step.Kind {
	case db.KindQuery:
		report.Errors, report.Warnings = v.validateQueryStep(step.StepNumber, step.Content, createdTables)
	default:
		report.Errors, report.Warnings = v.validateShellStep(step.StepNumber, step.Content)
	}
	report.IsValid = len(report.Errors) == 0
	report.RiskScore = RiskScore([]db.PipelineStep{step})
	report.RiskLevel = RiskLevelFor(report.RiskScore)
	return report
}

func (v *Validator) knownTableList() []string {
	names := make([]string, 0, len(v.knownTables))
	for name := range v.knownTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *Validator) knownFiles() []string {
	if v.resources == nil {
		return nil
	}
	var paths []string
	for _, f := range v.resources.Filesystem.Files {
		paths = append(paths, f.Path)
		if len(paths) == 5 {
			break
		}
	}
	return paths
}
