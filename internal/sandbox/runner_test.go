package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/queryforge/internal/db"
)

type testEnv struct {
	store   *db.DB
	dataDir string
	baseDir string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "orders.csv"),
		[]byte("id,total\n1,10.5\n2,3.25\n"), 0o644))

	store, err := db.Open(context.Background(), filepath.Join(root, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &testEnv{store: store, dataDir: dataDir, baseDir: filepath.Join(root, "sandboxes")}
}

func createPipeline(t *testing.T, env *testEnv, steps []db.StepInput) int64 {
	t.Helper()
	id, err := env.store.CreatePipeline(context.Background(), 1, "test pipeline", steps, "{}", "[]")
	require.NoError(t, err)
	return id
}

func TestRun_Success(t *testing.T) {
	env := setupEnv(t)
	id := createPipeline(t, env, []db.StepInput{
		{StepNumber: 1, Kind: db.KindShell, Content: "wc -l orders.csv"},
		{StepNumber: 2, Kind: db.KindQuery, Content: "CREATE TABLE totals (n INTEGER); INSERT INTO totals VALUES (2);"},
		{StepNumber: 3, Kind: db.KindQuery, Content: "INSERT INTO totals VALUES (3);"},
	})

	runner := NewRunner(env.store, env.dataDir, env.baseDir, 0)
	report, err := runner.Run(context.Background(), id)
	require.NoError(t, err)

	assert.True(t, report.OverallSuccess)
	require.Len(t, report.Results, 3)
	assert.Contains(t, report.Results[0].Stdout, "2 orders.csv")
	assert.Zero(t, report.FailedLogID())

	// Sandbox removed on success
	assert.Empty(t, report.SandboxDir)
	entries, err := os.ReadDir(env.baseDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	p, err := env.store.GetPipeline(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, db.StatusSuccess, p.Status)

	logs, err := env.store.ListExecutionLogs(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for _, l := range logs {
		assert.True(t, l.Succeeded)
	}

	// The production store never sees sandbox writes
	var count int
	err = env.store.Conn().QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE name = 'totals'`).Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRun_HaltsAtFirstFailure(t *testing.T) {
	env := setupEnv(t)
	id := createPipeline(t, env, []db.StepInput{
		{StepNumber: 1, Kind: db.KindShell, Content: "cat missing.csv"},
		{StepNumber: 2, Kind: db.KindShell, Content: "echo never reached"},
	})

	runner := NewRunner(env.store, env.dataDir, env.baseDir, 0)
	report, err := runner.Run(context.Background(), id)
	require.NoError(t, err)

	assert.False(t, report.OverallSuccess)
	require.Len(t, report.Results, 1, "remaining steps must not run after a failure")
	assert.False(t, report.Results[0].Succeeded)
	assert.NotZero(t, report.Results[0].ExitCode)
	assert.Contains(t, report.Results[0].Stderr, "missing.csv")
	assert.Equal(t, report.Results[0].LogID, report.FailedLogID())

	// Sandbox kept for inspection
	require.NotEmpty(t, report.SandboxDir)
	_, err = os.Stat(report.SandboxDir)
	assert.NoError(t, err)

	p, err := env.store.GetPipeline(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, p.Status)
}

func TestRun_QueryFailureCapturesEngineError(t *testing.T) {
	env := setupEnv(t)
	id := createPipeline(t, env, []db.StepInput{
		{StepNumber: 1, Kind: db.KindQuery, Content: "INSERT INTO nonexistent VALUES (1)"},
	})

	runner := NewRunner(env.store, env.dataDir, env.baseDir, 0)
	report, err := runner.Run(context.Background(), id)
	require.NoError(t, err)

	assert.False(t, report.OverallSuccess)
	require.Len(t, report.Results, 1)
	assert.Contains(t, report.Results[0].Stderr, "no such table")
}

func TestRun_ShellTimeout(t *testing.T) {
	env := setupEnv(t)
	id := createPipeline(t, env, []db.StepInput{
		{StepNumber: 1, Kind: db.KindShell, Content: "sleep 5"},
	})

	runner := NewRunner(env.store, env.dataDir, env.baseDir, 200*time.Millisecond)
	report, err := runner.Run(context.Background(), id)
	require.NoError(t, err)

	assert.False(t, report.OverallSuccess)
	require.Len(t, report.Results, 1)
	assert.Equal(t, timeoutExitCode, report.Results[0].ExitCode)
	assert.Contains(t, report.Results[0].Stderr, "timeout")
}

func TestRun_StepsShareSandboxState(t *testing.T) {
	env := setupEnv(t)
	id := createPipeline(t, env, []db.StepInput{
		{StepNumber: 1, Kind: db.KindShell, Content: "echo shared > ../tmp/state.txt"},
		{StepNumber: 2, Kind: db.KindShell, Content: "grep shared ../tmp/state.txt"},
	})

	runner := NewRunner(env.store, env.dataDir, env.baseDir, 0)
	report, err := runner.Run(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, report.OverallSuccess, "results: %+v", report.Results)
}

func TestRun_UnknownPipeline(t *testing.T) {
	env := setupEnv(t)
	runner := NewRunner(env.store, env.dataDir, env.baseDir, 0)
	_, err := runner.Run(context.Background(), 9999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
