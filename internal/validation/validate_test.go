package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/resources"
)

func testContext() *resources.Context {
	return &resources.Context{
		Database: resources.DatabaseSchema{Tables: []resources.Table{
			{Name: "orders", Columns: []resources.Column{
				{Name: "id"}, {Name: "customer"}, {Name: "total"},
			}},
			{Name: "customers", Columns: []resources.Column{
				{Name: "id"}, {Name: "name"},
			}},
		}},
		Filesystem: resources.Filesystem{Files: []resources.FileInfo{
			{Path: "orders.csv", Type: "csv", Headers: []string{"id", "customer", "total"}},
			{Path: "updates.json", Type: "json", Structure: &resources.JSONStructure{
				RootType:    "array",
				ElementKeys: []string{"id", "customer", "total"},
			}},
			{Path: "extra.json", Type: "json", Structure: &resources.JSONStructure{
				RootType:    "array",
				ElementKeys: []string{"id", "customer", "total", "region"},
			}},
		}},
	}
}

func TestValidatePipeline_Clean(t *testing.T) {
	v := New(testContext(), nil)
	report := v.ValidatePipeline([]db.PipelineStep{
		{StepNumber: 1, Kind: db.KindShell, Content: "cp orders.csv tmp/orders.csv"},
		{StepNumber: 2, Kind: db.KindQuery, Content: "SELECT customer, SUM(total) FROM orders GROUP BY customer"},
	})
	assert.True(t, report.IsValid)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, RiskLow, report.RiskLevel)
}

func TestValidatePipeline_TableNotFound(t *testing.T) {
	v := New(testContext(), nil)
	report := v.ValidatePipeline([]db.PipelineStep{
		{StepNumber: 1, Kind: db.KindQuery, Content: "SELECT * FROM shipments"},
	})
	assert.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, IssueTableNotFound, report.Errors[0].Type)
	assert.Contains(t, report.Errors[0].Available, "orders")
}

func TestValidatePipeline_CreatedTableSatisfiesLaterReference(t *testing.T) {
	v := New(testContext(), nil)
	report := v.ValidatePipeline([]db.PipelineStep{
		{StepNumber: 1, Kind: db.KindQuery, Content: "CREATE TABLE summary (customer TEXT, total REAL)"},
		{StepNumber: 2, Kind: db.KindQuery, Content: "INSERT INTO Summary SELECT customer, SUM(total) FROM orders GROUP BY customer"},
	})
	assert.True(t, report.IsValid, "case-insensitive created-table reference should validate: %v", report.Errors)
}

func TestValidatePipeline_DangerousCommand(t *testing.T) {
	v := New(testContext(), nil)
	report := v.ValidatePipeline([]db.PipelineStep{
		{StepNumber: 1, Kind: db.KindShell, Content: "kill -9 $(cat pid.txt)"},
	})
	assert.False(t, report.IsValid)
	require.NotEmpty(t, report.Errors)
	assert.Equal(t, IssueDangerousCommand, report.Errors[0].Type)
}

func TestValidatePipeline_UnknownCommandIsWarning(t *testing.T) {
	v := New(testContext(), nil)
	report := v.ValidatePipeline([]db.PipelineStep{
		{StepNumber: 1, Kind: db.KindShell, Content: "jq '.total' orders.csv"},
	})
	assert.True(t, report.IsValid)
	require.NotEmpty(t, report.Warnings)
	assert.Equal(t, IssueUnknownCommand, report.Warnings[0].Type)
}

func TestValidatePipeline_MissingFileIsWarning(t *testing.T) {
	v := New(testContext(), nil)
	report := v.ValidatePipeline([]db.PipelineStep{
		{StepNumber: 1, Kind: db.KindShell, Content: "cat missing.csv"},
	})
	assert.True(t, report.IsValid)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, IssueFileNotFound, report.Warnings[0].Type)
}

func TestValidatePipeline_DestructiveIsWarningNotError(t *testing.T) {
	v := New(testContext(), nil)
	report := v.ValidatePipeline([]db.PipelineStep{
		{StepNumber: 1, Kind: db.KindQuery, Content: "DROP TABLE orders"},
	})
	assert.True(t, report.IsValid, "destructive SQL must stay a warning")
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, IssueDestructiveOperation, report.Warnings[0].Type)
	assert.GreaterOrEqual(t, report.RiskScore, 10)
	assert.NotEqual(t, RiskLow, report.RiskLevel)
}

func TestValidatePipeline_SchemaMismatch(t *testing.T) {
	v := New(testContext(), nil)

	t.Run("matching fields pass", func(t *testing.T) {
		report := v.ValidatePipeline([]db.PipelineStep{
			{StepNumber: 1, Kind: db.KindQuery, Content: "INSERT INTO orders SELECT * FROM read_json('updates.json')"},
		})
		assert.True(t, report.IsValid, "errors: %v", report.Errors)
	})

	t.Run("extra source field is an error", func(t *testing.T) {
		report := v.ValidatePipeline([]db.PipelineStep{
			{StepNumber: 1, Kind: db.KindQuery, Content: "INSERT INTO orders SELECT * FROM read_json('extra.json')"},
		})
		assert.False(t, report.IsValid)
		require.Len(t, report.Errors, 1)
		assert.Equal(t, IssueSchemaMismatch, report.Errors[0].Type)
		assert.Equal(t, []string{"region"}, report.Errors[0].Extra)
	})
}

func TestValidateStep_SeedsCreatedTablesFromPriorSteps(t *testing.T) {
	v := New(testContext(), nil)
	prior := []db.PipelineStep{
		{StepNumber: 1, Kind: db.KindQuery, Content: "CREATE TABLE staging (id INTEGER)"},
	}
	report := v.ValidateStep(db.PipelineStep{
		StepNumber: 2, Kind: db.KindQuery, Content: "SELECT * FROM staging",
	}, prior)
	assert.True(t, report.IsValid, "errors: %v", report.Errors)
}

func TestExtractCommands(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"simple", "cat orders.csv", []string{"cat"}},
		{"pipe", "cat orders.csv | grep alice | wc -l", []string{"cat", "grep", "wc"}},
		{"substitution", "echo $(wc -l orders.csv)", []string{"wc", "echo"}},
		{"assignment skipped", "TOTAL=5 echo done", []string{"echo"}},
		{"quoted content ignored", `echo "rm -rf /"`, []string{"echo"}},
		{"control keywords skipped", "if test -f x; then cat x; fi", []string{"test", "cat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, ExtractCommands(tt.content))
		})
	}
}

func TestExtractTableReferences(t *testing.T) {
	refs := ExtractTableReferences(
		"INSERT INTO summary SELECT o.customer FROM orders o JOIN customers c ON c.id = o.customer_id")
	assert.ElementsMatch(t, []string{"summary", "orders", "customers"}, refs)

	t.Run("function sources excluded", func(t *testing.T) {
		refs := ExtractTableReferences("SELECT * FROM read_json('x.json')")
		assert.Empty(t, refs)
	})
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name  string
		steps []db.PipelineStep
		want  int
	}{
		{
			"single clean query",
			[]db.PipelineStep{{Kind: db.KindQuery, Content: "SELECT 1"}},
			3, // 2 per step + 1 per query
		},
		{
			"destructive query",
			[]db.PipelineStep{{Kind: db.KindQuery, Content: "DROP TABLE orders"}},
			13, // 2 + 1 + 10
		},
		{
			"file deletion",
			[]db.PipelineStep{{Kind: db.KindShell, Content: "rm tmp/orders.csv"}},
			7, // 2 + 5
		},
		{
			"shell without deletion",
			[]db.PipelineStep{{Kind: db.KindShell, Content: "cat orders.csv"}},
			2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskScore(tt.steps))
		})
	}
}

func TestRiskLevelFor(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevelFor(0))
	assert.Equal(t, RiskLow, RiskLevelFor(10))
	assert.Equal(t, RiskMedium, RiskLevelFor(11))
	assert.Equal(t, RiskMedium, RiskLevelFor(30))
	assert.Equal(t, RiskHigh, RiskLevelFor(31))
}
