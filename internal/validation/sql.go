package validation

import (
	"regexp"
	"sort"
	"strings"
)

var tableRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bFROM\s+(\w+)`),
	regexp.MustCompile(`(?i)\bJOIN\s+(\w+)`),
	regexp.MustCompile(`(?i)\bINSERT\s+INTO\s+(\w+)`),
	regexp.MustCompile(`(?i)\bCREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(\w+)`),
	regexp.MustCompile(`(?i)\bUPDATE\s+(\w+)`),
	regexp.MustCompile(`(?i)\bDROP\s+TABLE\s+(?:IF\s+EXISTS\s+)?(\w+)`),
}

var createTablePattern = regexp.MustCompile(`(?i)\bCREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(\w+)`)

// destructivePatterns are flagged as warnings so the pipeline can still reach
// the sandbox; they feed risk scoring instead of blocking validation.
var destructivePatterns = []struct {
	re        *regexp.Regexp
	operation string
}{
	{regexp.MustCompile(`(?i)\bDROP\s+TABLE\b`), "DROP TABLE"},
	{regexp.MustCompile(`(?i)\bDROP\s+DATABASE\b`), "DROP DATABASE"},
	{regexp.MustCompile(`(?i)\bTRUNCATE\b`), "TRUNCATE"},
	{regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+\w+\s*;?\s*$`), "DELETE without WHERE"},
}

// sqlNoiseWords are capture-group matches that are SQL keywords or function
// calls rather than table names.
var sqlNoiseWords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true,
	"not": true, "in": true, "is": true, "as": true, "on": true, "by": true,
	"order": true, "group": true, "having": true, "limit": true, "offset": true,
	"the": true, "a": true, "an": true, "to": true, "of": true, "for": true,
	"with": true, "into": true, "table": true, "values": true, "set": true,
	"if": true, "exists": true, "null": true, "true": true, "false": true,
	"read_json": true, "read_csv": true, "read_parquet": true, "generate_series": true,
}

var (
	insertTargetPattern = regexp.MustCompile(`(?i)\bINSERT\s+INTO\s+(\w+)`)
	updateTargetPattern = regexp.MustCompile(`(?i)\bUPDATE\s+(\w+)`)
)

// validateQueryStep checks one query step's table references, destructive
// patterns, and JSON-source schema compatibility. createdTables accumulates
// tables created by earlier steps of the same pipeline, lowercased.
func (v *Validator) validateQueryStep(stepNumber int, content string, createdTables map[string]bool) (errors, warnings []Issue) {
	if strings.TrimSpace(content) == "" {
		errors = append(errors, Issue{
			StepNumber: stepNumber,
			Type:       IssueEmptyStep,
			Message:    "query step has empty content",
		})
		return errors, warnings
	}

	// Tables created by this step are visible to its own references and to
	// later steps.
	for _, m := range createTablePattern.FindAllStringSubmatch(content, -1) {
		createdTables[strings.ToLower(m[1])] = true
	}

	for _, ref := range ExtractTableReferences(content) {
		if v.knownTables[ref] || createdTables[ref] {
			continue
		}
		errors = append(errors, Issue{
			StepNumber: stepNumber,
			Type:       IssueTableNotFound,
			Message:    "table '" + ref + "' not found in database schema",
			Available:  v.knownTableList(),
		})
	}

	for _, dp := range destructivePatterns {
		if dp.re.MatchString(content) {
			warnings = append(warnings, Issue{
				StepNumber: stepNumber,
				Type:       IssueDestructiveOperation,
				Message:    "destructive operation detected: " + dp.operation,
			})
		}
	}

	schemaErrors, schemaWarnings := v.validateSchemaCompatibility(stepNumber, content)
	errors = append(errors, schemaErrors...)
	warnings = append(warnings, schemaWarnings...)

	return errors, warnings
}

// validateSchemaCompatibility cross-checks JSON-file sources of INSERT and
// UPDATE statements against the target table's columns.
func (v *Validator) validateSchemaCompatibility(stepNumber int, content string) (errors, warnings []Issue) {
	target := ""
	if m := insertTargetPattern.FindStringSubmatch(content); m != nil {
		target = strings.ToLower(m[1])
	} else if m := updateTargetPattern.FindStringSubmatch(content); m != nil {
		target = strings.ToLower(m[1])
	}
	if target == "" || v.resources == nil {
		return nil, nil
	}

	table := v.resources.Table(target)
	if table == nil {
		return nil, nil // missing target already reported as table_not_found
	}
	tableColumns := map[string]bool{}
	for _, col := range table.Columns {
		tableColumns[strings.ToLower(col.Name)] = true
	}

	for _, ref := range ExtractFileReferences(content) {
		if !strings.HasSuffix(ref, ".json") {
			continue
		}
		file := v.resources.File(ref)
		if file == nil {
			file = v.resources.File(strings.TrimPrefix(ref, "data/"))
		}
		if file == nil || file.Structure == nil {
			warnings = append(warnings, Issue{
				StepNumber: stepNumber,
				Type:       IssueSchemaUnknown,
				Message:    "cannot validate schema for '" + ref + "': file structure unknown",
			})
			continue
		}

		fields := file.Structure.ElementKeys
		if len(fields) == 0 {
			fields = file.Structure.Keys
		}
		if len(fields) == 0 {
			continue
		}

		var extraInSource, missingFromSource []string
		fieldSet := map[string]bool{}
		for _, f := range fields {
			fieldSet[strings.ToLower(f)] = true
			if !tableColumns[strings.ToLower(f)] {
				extraInSource = append(extraInSource, f)
			}
		}
		for _, col := range table.Columns {
			if !fieldSet[strings.ToLower(col.Name)] {
				missingFromSource = append(missingFromSource, col.Name)
			}
		}

		if len(extraInSource) > 0 {
			errors = append(errors, Issue{
				StepNumber: stepNumber,
				Type:       IssueSchemaMismatch,
				Message:    "JSON file '" + ref + "' has fields that do not exist in table '" + target + "'",
				Extra:      extraInSource,
				Missing:    missingFromSource,
			})
		} else if len(missingFromSource) > 0 {
			warnings = append(warnings, Issue{
				StepNumber: stepNumber,
				Type:       IssueIncompleteData,
				Message:    "JSON file '" + ref + "' is missing columns of table '" + target + "'",
				Missing:    missingFromSource,
			})
		}
	}
	return errors, warnings
}

// ExtractTableReferences finds table names referenced by a SQL fragment,
// lowercased and deduplicated.
func ExtractTableReferences(content string) []string {
	seen := map[string]bool{}
	var refs []string
	for _, pattern := range tableRefPatterns {
		for _, m := range pattern.FindAllStringSubmatch(content, -1) {
			ref := strings.ToLower(m[1])
			if sqlNoiseWords[ref] || seen[ref] {
				continue
			}
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs
}

// CountDestructiveOperations reports how many destructive SQL patterns appear
// in a query step. Used by risk scoring.
func CountDestructiveOperations(content string) int {
	count := 0
	for _, dp := range destructivePatterns {
		if dp.re.MatchString(content) {
			count++
		}
	}
	return count
}
