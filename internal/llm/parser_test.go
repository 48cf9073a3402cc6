package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/queryforge/internal/db"
)

func TestParsePipelineResponse(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		steps, err := ParsePipelineResponse(`{
			"pipeline": [
				{"step_number": 1, "type": "shell", "content": "cp orders.csv tmp/orders.csv", "description": "stage input"},
				{"step_number": 2, "type": "query", "content": "SELECT COUNT(*) FROM orders"}
			]
		}`)
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, db.KindShell, steps[0].Kind)
		assert.Equal(t, "stage input", steps[0].Description)
		assert.Equal(t, db.KindQuery, steps[1].Kind)
	})

	t.Run("markdown wrapped", func(t *testing.T) {
		steps, err := ParsePipelineResponse("```json\n" +
			`{"pipeline":[{"step_number":1,"type":"shell","content":"echo hi"}]}` +
			"\n```")
		require.NoError(t, err)
		require.Len(t, steps, 1)
	})

	t.Run("prose wrapped", func(t *testing.T) {
		steps, err := ParsePipelineResponse(
			`Here is your pipeline: {"pipeline":[{"step_number":1,"type":"query","content":"SELECT 1"}]} Hope it helps!`)
		require.NoError(t, err)
		require.Len(t, steps, 1)
	})

	t.Run("non-sequential step numbers rejected", func(t *testing.T) {
		_, err := ParsePipelineResponse(
			`{"pipeline":[{"step_number":1,"type":"shell","content":"a"},{"step_number":3,"type":"shell","content":"b"}]}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sequential")
	})

	t.Run("unknown step type rejected", func(t *testing.T) {
		_, err := ParsePipelineResponse(
			`{"pipeline":[{"step_number":1,"type":"python","content":"print(1)"}]}`)
		assert.Error(t, err)
	})

	t.Run("empty pipeline rejected", func(t *testing.T) {
		_, err := ParsePipelineResponse(`{"pipeline":[]}`)
		assert.Error(t, err)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := ParsePipelineResponse("I cannot help with that.")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no valid JSON")
	})
}

func TestParseRepairResponse(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		fix, err := ParseRepairResponse(
			`{"fix_reason":"reference the existing file","patched_code":"cat data/orders.csv"}`)
		require.NoError(t, err)
		assert.Equal(t, "cat data/orders.csv", fix.PatchedCode)
		assert.Equal(t, "reference the existing file", fix.FixReason)
	})

	t.Run("missing rationale gets default", func(t *testing.T) {
		fix, err := ParseRepairResponse(`{"patched_code":"cat data/orders.csv"}`)
		require.NoError(t, err)
		assert.Equal(t, "No explanation provided", fix.FixReason)
	})

	t.Run("missing patched_code rejected", func(t *testing.T) {
		_, err := ParseRepairResponse(`{"fix_reason":"no code"}`)
		assert.Error(t, err)
	})
}

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with language", "```javascript\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.in))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":{"b":2}}`, ExtractJSONObject(`prefix {"a":{"b":2}} suffix`))
	assert.Equal(t, `{"a":"brace } in string"}`, ExtractJSONObject(`{"a":"brace } in string"}`))
	assert.Equal(t, "", ExtractJSONObject("no braces here"))
	assert.Equal(t, "", ExtractJSONObject(`{"unterminated":`))
}
