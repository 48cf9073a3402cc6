package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/queryforge/internal/db"
)

func TestSynthesizeShellScript(t *testing.T) {
	script := SynthesizeShellScript(2, "cp orders.csv tmp/orders.csv", "Back up the orders file")

	assert.Contains(t, script, "#!/bin/bash")
	assert.Contains(t, script, "set -e")
	assert.Contains(t, script, "set -u")
	assert.Contains(t, script, "set -o pipefail")
	assert.Contains(t, script, "STEP_NUMBER=2")
	assert.Contains(t, script, "Back up the orders file")
	assert.Contains(t, script, "cp orders.csv tmp/orders.csv")
	assert.Contains(t, script, "exit 0")
}

func TestSynthesizeSQLScript(t *testing.T) {
	script := SynthesizeSQLScript(1, "INSERT INTO totals VALUES (1);", "Seed totals")

	assert.Contains(t, script, "-- Pipeline step 1")
	assert.Contains(t, script, "-- Description: Seed totals")
	assert.Contains(t, script, "INSERT INTO totals VALUES (1);")
}

func TestStripTransactionControl(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "standalone begin and commit removed",
			input: "BEGIN TRANSACTION;\nINSERT INTO t VALUES (1);\nCOMMIT;",
			want:  "INSERT INTO t VALUES (1);",
		},
		{
			name:  "bare begin",
			input: "BEGIN;\nUPDATE t SET n = 2;\nCOMMIT TRANSACTION;",
			want:  "UPDATE t SET n = 2;",
		},
		{
			name:  "rollback removed",
			input: "ROLLBACK;\nSELECT 1;",
			want:  "SELECT 1;",
		},
		{
			name:  "inline occurrences untouched",
			input: "INSERT INTO audit (note) VALUES ('commit pending');",
			want:  "INSERT INTO audit (note) VALUES ('commit pending');",
		},
		{
			name:  "case insensitive",
			input: "begin transaction;\nDELETE FROM t WHERE id = 1;\ncommit;",
			want:  "DELETE FROM t WHERE id = 1;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripTransactionControl(tt.input))
		})
	}
}

func TestValidateShellSyntax(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.sh")
	require.NoError(t, os.WriteFile(good, []byte("#!/bin/bash\necho ok\n"), 0o755))
	assert.NoError(t, ValidateShellSyntax(context.Background(), good))

	bad := filepath.Join(dir, "bad.sh")
	require.NoError(t, os.WriteFile(bad, []byte("#!/bin/bash\nif [ -f x ; then\n"), 0o755))
	assert.Error(t, ValidateShellSyntax(context.Background(), bad))
}

func TestWriteScripts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0o755))

	steps := []db.PipelineStep{
		{StepNumber: 1, Kind: db.KindShell, Content: "echo hello"},
		{StepNumber: 2, Kind: db.KindQuery, Content: "SELECT 1;"},
	}

	require.NoError(t, WriteScripts(context.Background(), dir, 42, steps))

	shell, err := os.ReadFile(filepath.Join(dir, "scripts", "step_1_shell.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(shell), "echo hello")

	query, err := os.ReadFile(filepath.Join(dir, "scripts", "step_2_query.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(query), "SELECT 1;")

	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)

	var m struct {
		PipelineID int64 `json:"pipeline_id"`
		Scripts    []struct {
			StepNumber int    `json:"step_number"`
			Type       string `json:"type"`
			Filename   string `json:"filename"`
		} `json:"scripts"`
	}
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, int64(42), m.PipelineID)
	require.Len(t, m.Scripts, 2)
	assert.Equal(t, "step_1_shell.sh", m.Scripts[0].Filename)
	assert.Equal(t, "query", m.Scripts[1].Type)
}

func TestWriteScripts_RejectsBadShellSyntax(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0o755))

	steps := []db.PipelineStep{
		{StepNumber: 1, Kind: db.KindShell, Content: "for f in *.csv; do echo $f"},
	}
	err := WriteScripts(context.Background(), dir, 1, steps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax")
}
