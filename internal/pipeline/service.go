// Package pipeline provides the high-level orchestration for the pipeline
// lifecycle: generation, validation, sandbox runs, repair, and commit.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonathan/queryforge/internal/commit"
	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/llm"
	"github.com/jonathan/queryforge/internal/repair"
	"github.com/jonathan/queryforge/internal/resources"
	"github.com/jonathan/queryforge/internal/sandbox"
	"github.com/jonathan/queryforge/internal/validation"
)

// Options holds the dependencies and tunables for building a Service.
type Options struct {
	Store             *db.DB
	Oracle            llm.Client
	DataDir           string
	SandboxDir        string
	AllowedCommands   []string
	MaxRepairAttempts int
	StepTimeout       time.Duration
	CacheTTL          time.Duration
}

// Service is the facade over the pipeline lifecycle. Lifecycle operations on
// one pipeline are serialized; operations on different pipelines may run
// concurrently.
type Service struct {
	store     *db.DB
	oracle    llm.Client
	provider  *resources.Provider
	runner    *sandbox.Runner
	loop      *repair.Loop
	committer *commit.Committer
	allowed   []string

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewService wires the lifecycle components together.
func NewService(opts Options) *Service {
	provider := resources.NewProvider(opts.Store.Conn(), opts.DataDir, opts.CacheTTL)
	allowed := opts.AllowedCommands
	if allowed == nil {
		allowed = validation.DefaultAllowedCommands
	}
	return &Service{
		store:     opts.Store,
		oracle:    opts.Oracle,
		provider:  provider,
		runner:    sandbox.NewRunner(opts.Store, opts.DataDir, opts.SandboxDir, opts.StepTimeout),
		loop:      repair.NewLoop(opts.Store, opts.Oracle, provider, allowed, opts.MaxRepairAttempts),
		committer: commit.NewCommitter(opts.Store, provider, opts.DataDir, opts.StepTimeout),
		allowed:   allowed,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// lock returns the mutex serializing operations on one pipeline.
func (s *Service) lock(pipelineID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[pipelineID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[pipelineID] = m
	}
	return m
}

// GenerateResult pairs a created pipeline with its validation report.
type GenerateResult struct {
	PipelineID int64              `json:"pipeline_id"`
	Steps      []db.PipelineStep  `json:"steps"`
	Report     *validation.Report `json:"report"`
}

// Generate turns a natural-language request into a persisted, validated
// pipeline. Validation errors do not discard the pipeline; the report is
// returned alongside it so the caller can decide to repair or regenerate.
func (s *Service) Generate(ctx context.Context, ownerID int64, request string) (*GenerateResult, error) {
	if request == "" {
		return nil, fmt.Errorf("request is empty")
	}

	rc, err := s.provider.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	prompt := llm.BuildGenerationPrompt(request, rc, s.allowed)
	raw, err := s.oracle.GenerateJSON(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate pipeline: %w", err)
	}
	stepInputs, err := llm.ParsePipelineResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}

	schemaJSON, fileListJSON, err := resources.Snapshot(rc)
	if err != nil {
		return nil, err
	}
	pipelineID, err := s.store.CreatePipeline(ctx, ownerID, request, stepInputs, schemaJSON, fileListJSON)
	if err != nil {
		return nil, err
	}

	steps, err := s.store.ListSteps(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	report := validation.New(rc, s.allowed).ValidatePipeline(steps)

	return &GenerateResult{PipelineID: pipelineID, Steps: steps, Report: report}, nil
}

// Validate re-runs pipeline validation against the live resource context.
func (s *Service) Validate(ctx context.Context, pipelineID int64) (*validation.Report, error) {
	steps, err := s.store.ListSteps(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline not found: %d", pipelineID)
	}
	rc, err := s.provider.Context(ctx)
	if err != nil {
		return nil, err
	}
	return validation.New(rc, s.allowed).ValidatePipeline(steps), nil
}

// RunSandbox executes the pipeline in an isolated sandbox.
func (s *Service) RunSandbox(ctx context.Context, pipelineID int64) (*sandbox.Report, error) {
	m := s.lock(pipelineID)
	m.Lock()
	defer m.Unlock()
	return s.runner.Run(ctx, pipelineID)
}

// Repair runs one repair attempt against the pipeline's latest failure.
func (s *Service) Repair(ctx context.Context, pipelineID int64) (*repair.Result, error) {
	m := s.lock(pipelineID)
	m.Lock()
	defer m.Unlock()
	return s.loop.Run(ctx, pipelineID)
}

// PrecommitValidate runs the pre-commit checks without committing.
func (s *Service) PrecommitValidate(ctx context.Context, pipelineID int64) (*commit.Report, error) {
	return s.committer.Validate(ctx, pipelineID)
}

// Commit promotes a verified pipeline to production.
func (s *Service) Commit(ctx context.Context, pipelineID int64, force bool) (*commit.Result, error) {
	m := s.lock(pipelineID)
	m.Lock()
	defer m.Unlock()
	return s.committer.Commit(ctx, pipelineID, force)
}

// Rollback marks a committed pipeline as rolled back.
func (s *Service) Rollback(ctx context.Context, pipelineID int64) error {
	m := s.lock(pipelineID)
	m.Lock()
	defer m.Unlock()
	return s.committer.Rollback(ctx, pipelineID)
}

// Pipeline returns a pipeline with its steps.
func (s *Service) Pipeline(ctx context.Context, pipelineID int64) (*db.Pipeline, []db.PipelineStep, error) {
	pipeline, err := s.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, nil, err
	}
	if pipeline == nil {
		return nil, nil, fmt.Errorf("pipeline not found: %d", pipelineID)
	}
	steps, err := s.store.ListSteps(ctx, pipelineID)
	if err != nil {
		return nil, nil, err
	}
	return pipeline, steps, nil
}

// List returns recent pipelines, optionally filtered by owner.
func (s *Service) List(ctx context.Context, ownerID int64, limit int) ([]db.Pipeline, error) {
	return s.store.ListPipelines(ctx, ownerID, limit)
}

// Logs returns the stored execution logs for a pipeline.
func (s *Service) Logs(ctx context.Context, pipelineID int64) ([]db.ExecutionLog, error) {
	return s.store.ListExecutionLogs(ctx, pipelineID)
}
