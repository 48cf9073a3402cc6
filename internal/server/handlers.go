package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jonathan/queryforge/internal/commit"
)

// createPipelineRequest is the body for POST /pipeline/create.
type createPipelineRequest struct {
	OwnerID int64  `json:"owner_id"`
	Request string `json:"request"`
}

// commitRequest is the body for POST /pipeline/commit/{id}. DryRun runs the
// pre-commit checks without committing anything.
type commitRequest struct {
	ForceCommit bool `json:"force_commit"`
	DryRun      bool `json:"dry_run"`
}

// rollbackResponse reminds the caller that rollback does not undo filesystem
// changes on its own.
type rollbackResponse struct {
	PipelineID                 int64  `json:"pipeline_id"`
	Status                     string `json:"status"`
	ManualInterventionRequired bool   `json:"manual_intervention_required"`
	Message                    string `json:"message"`
}

// handleCreatePipeline generates a pipeline from a natural-language request.
func (s *Server) handleCreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req createPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		s.errorResponse(w, http.StatusBadRequest, "request is required")
		return
	}
	if req.OwnerID == 0 {
		req.OwnerID = 1
	}

	result, err := s.service.Generate(r.Context(), req.OwnerID, req.Request)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusCreated, result)
}

// handleListPipelines returns recent pipelines for an owner.
func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	ownerID := int64(1)
	if v := r.URL.Query().Get("owner_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid owner_id")
			return
		}
		ownerID = id
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	pipelines, err := s.service.List(r.Context(), ownerID, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"pipelines": pipelines,
		"count":     len(pipelines),
	})
}

// handleGetPipeline returns a pipeline with its steps.
func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}

	p, steps, err := s.service.Pipeline(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"pipeline": p,
		"steps":    steps,
	})
}

// handleGetLogs returns the execution history for a pipeline.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}

	logs, err := s.service.Logs(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"pipeline_id": id,
		"logs":        logs,
		"count":       len(logs),
	})
}

// handleValidate re-validates a pipeline against the live resource context.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}

	report, err := s.service.Validate(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, report)
}

// handleRun executes a pipeline in the sandbox. A failed step is a normal
// outcome, reported in the body rather than as an HTTP error.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}

	report, err := s.service.RunSandbox(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, report)
}

// handleRepair runs one repair attempt against the latest failure.
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}

	result, err := s.service.Repair(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.errorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		// Budget exhausted, duplicate fix, rejected fix: the pipeline is in a
		// valid state, the repair just did not happen.
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}

// handleCommit promotes a verified pipeline to production. With dry_run set
// it only reports the pre-commit checks.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}

	var req commitRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if req.DryRun {
		report, err := s.service.PrecommitValidate(r.Context(), id)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		s.jsonResponse(w, http.StatusOK, report)
		return
	}

	result, err := s.service.Commit(r.Context(), id, req.ForceCommit)
	if err != nil {
		if result != nil {
			// The commit started and failed partway; the result carries the
			// rollback state the caller needs.
			s.jsonResponse(w, http.StatusInternalServerError, map[string]any{
				"error":  err.Error(),
				"result": result,
			})
			return
		}
		if strings.Contains(err.Error(), "not found") {
			s.errorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		// Refused before anything ran: validation failure or high risk.
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}

// handleRollback marks a committed pipeline as rolled back.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pipelineID(w, r)
	if !ok {
		return
	}

	err := s.service.Rollback(r.Context(), id)
	if errors.Is(err, commit.ErrManualRollback) {
		s.jsonResponse(w, http.StatusOK, rollbackResponse{
			PipelineID:                 id,
			Status:                     "rolled_back",
			ManualInterventionRequired: true,
			Message:                    err.Error(),
		})
		return
	}
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, rollbackResponse{
		PipelineID: id,
		Status:     "rolled_back",
	})
}

// pipelineID parses the {id} path value, writing a 400 on failure.
func (s *Server) pipelineID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "invalid pipeline ID")
		return 0, false
	}
	return id, true
}

// serviceError maps a service error to an HTTP status.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	if strings.Contains(err.Error(), "not found") {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	s.errorResponse(w, http.StatusInternalServerError, err.Error())
}
