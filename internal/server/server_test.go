package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/pipeline"
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

const generateResponse = `{
	"pipeline": [
		{"step_number": 1, "type": "shell", "content": "head -3 orders.csv", "description": "Preview the data"},
		{"step_number": 2, "type": "shell", "content": "wc -l orders.csv"}
	]
}`

func newTestServer(t *testing.T, oracle *stubOracle) *Server {
	t.Helper()
	root := t.TempDir()

	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "orders.csv"),
		[]byte("id,total\n1,10.5\n2,3.25\n"), 0o644))

	store, err := db.Open(context.Background(), filepath.Join(root, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := pipeline.NewService(pipeline.Options{
		Store:      store,
		Oracle:     oracle,
		DataDir:    dataDir,
		SandboxDir: filepath.Join(root, "sandboxes"),
	})

	srv, err := New(Config{Port: 0, Service: svc})
	require.NoError(t, err)
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// createPipeline drives the create endpoint and returns the new pipeline ID.
func createPipeline(t *testing.T, srv *Server) int64 {
	t.Helper()
	rec := doRequest(t, srv, "POST", "/pipeline/create",
		`{"owner_id": 1, "request": "preview the orders file"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	return int64(body["pipeline_id"].(float64))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})

	rec := doRequest(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})

	rec := doRequest(t, srv, "OPTIONS", "/pipeline", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreatePipeline(t *testing.T) {
	oracle := &stubOracle{responses: []string{generateResponse}}
	srv := newTestServer(t, oracle)

	rec := doRequest(t, srv, "POST", "/pipeline/create",
		`{"owner_id": 1, "request": "preview the orders file"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotZero(t, body["pipeline_id"])
	assert.Len(t, body["steps"], 2)
	report := body["report"].(map[string]any)
	assert.True(t, report["is_valid"].(bool))
	assert.Equal(t, 1, oracle.calls)
}

func TestCreatePipeline_BadRequests(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})

	rec := doRequest(t, srv, "POST", "/pipeline/create", `{"request": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, "POST", "/pipeline/create", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPipeline(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})
	id := createPipeline(t, srv)

	rec := doRequest(t, srv, "GET", fmt.Sprintf("/pipeline/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	p := body["pipeline"].(map[string]any)
	assert.Equal(t, "preview the orders file", p["original_request"])
	assert.Equal(t, db.StatusPending, p["status"])
	assert.Len(t, body["steps"], 2)
}

func TestGetPipeline_NotFound(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})

	rec := doRequest(t, srv, "GET", "/pipeline/9999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPipeline_InvalidID(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})

	rec := doRequest(t, srv, "GET", "/pipeline/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPipelines(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})
	createPipeline(t, srv)

	rec := doRequest(t, srv, "GET", "/pipeline?owner_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])

	// A different owner sees nothing
	rec = doRequest(t, srv, "GET", "/pipeline?owner_id=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["count"])
}

func TestValidateEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})
	id := createPipeline(t, srv)

	rec := doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/validate/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody(t, rec)["is_valid"].(bool))
}

func TestRunAndLogs(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})
	id := createPipeline(t, srv)

	rec := doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/run/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody(t, rec)["overall_success"].(bool))

	rec = doRequest(t, srv, "GET", fmt.Sprintf("/pipeline/%d/logs", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])
}

func TestRepair_NoFailure(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})
	id := createPipeline(t, srv)

	rec := doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/repair/%d", id), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
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
	srv := newTestServer(t, oracle)
	id := createPipeline(t, srv)

	rec := doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/run/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decodeBody(t, rec)["overall_success"].(bool))

	rec = doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/repair/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["attempt"])
	assert.Equal(t, "cat orders.csv", body["patched_content"])
}

func TestCommitLifecycle(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})
	id := createPipeline(t, srv)

	rec := doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/run/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Dry run reports the checks without committing
	rec = doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/commit/%d", id), `{"dry_run": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody(t, rec)["ok"].(bool))

	rec = doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/commit/%d", id), `{"force_commit": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, db.StatusCommitted, decodeBody(t, rec)["status"])

	rec = doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/rollback/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "rolled_back", body["status"])
	assert.True(t, body["manual_intervention_required"].(bool))
}

func TestCommit_RefusesUnverified(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})
	id := createPipeline(t, srv)

	// No sandbox run happened, so the pre-commit checks fail
	rec := doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/commit/%d", id), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRollback_RequiresCommitted(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})
	id := createPipeline(t, srv)

	rec := doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/rollback/%d", id), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(Config{Port: 8080})
	require.Error(t, err)
}

func TestRateLimitHeaders(t *testing.T) {
	srv := newTestServer(t, &stubOracle{responses: []string{generateResponse}})
	id := createPipeline(t, srv)

	rec := doRequest(t, srv, "POST", fmt.Sprintf("/pipeline/run/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
}
