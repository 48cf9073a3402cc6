package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/queryforge/internal/db"
)

type stubOracle struct {
	responses []string
	calls     int
}

func (s *stubOracle) GenerateJSON(_ context.Context, _ string) (string, error) {
	resp := s.responses[s.calls%len(s.responses)]
	s.calls++
	return resp, nil
}

func (s *stubOracle) Close() error { return nil }

func newService(t *testing.T, oracle *stubOracle) *Service {
	t.Helper()
	root := t.TempDir()

	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "orders.csv"),
		[]byte("id,total\n1,10.5\n2,3.25\n"), 0o644))

	store, err := db.Open(context.Background(), filepath.Join(root, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewService(Options{
		Store:      store,
		Oracle:     oracle,
		DataDir:    dataDir,
		SandboxDir: filepath.Join(root, "sandboxes"),
	})
}

const generateResponse = `{
	"pipeline": [
		{"step_number": 1, "type": "shell", "content": "head -3 orders.csv", "description": "Preview the data"},
		{"step_number": 2, "type": "shell", "content": "wc -l orders.csv"}
	]
}`

func TestGenerate(t *testing.T) {
	oracle := &stubOracle{responses: []string{generateResponse}}
	svc := newService(t, oracle)

	result, err := svc.Generate(context.Background(), 1, "preview the orders file")
	require.NoError(t, err)

	assert.NotZero(t, result.PipelineID)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, db.KindShell, result.Steps[0].Kind)
	assert.True(t, result.Report.IsValid)
	assert.Equal(t, 1, oracle.calls)

	pipeline, steps, err := svc.Pipeline(context.Background(), result.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, "preview the orders file", pipeline.OriginalRequest)
	assert.Equal(t, db.StatusPending, pipeline.Status)
	assert.Len(t, steps, 2)
}

func TestGenerate_EmptyRequest(t *testing.T) {
	svc := newService(t, &stubOracle{responses: []string{generateResponse}})
	_, err := svc.Generate(context.Background(), 1, "")
	require.Error(t, err)
}

func TestGenerate_KeepsInvalidPipeline(t *testing.T) {
	oracle := &stubOracle{responses: []string{`{
		"pipeline": [
			{"step_number": 1, "type": "query", "content": "SELECT * FROM missing_table;"}
		]
	}`}}
	svc := newService(t, oracle)

	result, err := svc.Generate(context.Background(), 1, "query something")
	require.NoError(t, err)

	assert.False(t, result.Report.IsValid)
	// The pipeline persists so it can be inspected or repaired
	_, steps, err := svc.Pipeline(context.Background(), result.PipelineID)
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}

func TestValidate(t *testing.T) {
	svc := newService(t, &stubOracle{responses: []string{generateResponse}})
	result, err := svc.Generate(context.Background(), 1, "preview the orders file")
	require.NoError(t, err)

	report, err := svc.Validate(context.Background(), result.PipelineID)
	require.NoError(t, err)
	assert.True(t, report.IsValid)

	_, err = svc.Validate(context.Background(), 9999)
	require.Error(t, err)
}

func TestFullLifecycle(t *testing.T) {
	oracle := &stubOracle{responses: []string{generateResponse}}
	svc := newService(t, oracle)

	result, err := svc.Generate(context.Background(), 1, "preview the orders file")
	require.NoError(t, err)

	runReport, err := svc.RunSandbox(context.Background(), result.PipelineID)
	require.NoError(t, err)
	require.True(t, runReport.OverallSuccess)

	precommit, err := svc.PrecommitValidate(context.Background(), result.PipelineID)
	require.NoError(t, err)
	assert.True(t, precommit.OK)

	commitResult, err := svc.Commit(context.Background(), result.PipelineID, false)
	require.NoError(t, err)
	assert.Equal(t, db.StatusCommitted, commitResult.Status)

	logs, err := svc.Logs(context.Background(), result.PipelineID)
	require.NoError(t, err)
	// Two sandbox runs plus two production runs
	assert.Len(t, logs, 4)

	err = svc.Rollback(context.Background(), result.PipelineID)
	require.Error(t, err, "rollback always reports manual intervention")

	pipeline, _, err := svc.Pipeline(context.Background(), result.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusRolledBack, pipeline.Status)
}

func TestRepairAfterFailedRun(t *testing.T) {
	oracle := &stubOracle{responses: []string{
		`{
			"pipeline": [
				{"step_number": 1, "type": "shell", "content": "cat order.csv"}
			]
		}`,
		`{"fix_reason": "Corrected the file name", "patched_code": "cat orders.csv"}`,
	}}
	svc := newService(t, oracle)

	result, err := svc.Generate(context.Background(), 1, "show the orders file")
	require.NoError(t, err)

	runReport, err := svc.RunSandbox(context.Background(), result.PipelineID)
	require.NoError(t, err)
	require.False(t, runReport.OverallSuccess)

	repairResult, err := svc.Repair(context.Background(), result.PipelineID)
	require.NoError(t, err)
	assert.Equal(t, 1, repairResult.Attempt)
	assert.Equal(t, "cat orders.csv", repairResult.PatchedContent)

	// The repaired pipeline now passes its sandbox run
	runReport, err = svc.RunSandbox(context.Background(), result.PipelineID)
	require.NoError(t, err)
	assert.True(t, runReport.OverallSuccess)
}
