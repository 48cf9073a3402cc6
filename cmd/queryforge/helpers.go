package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/queryforge/internal/config"
	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/llm"
	"github.com/jonathan/queryforge/internal/observability"
	"github.com/jonathan/queryforge/internal/pipeline"
)

// engine bundles the service with the resources that must be released when a
// command finishes.
type engine struct {
	service *pipeline.Service
	printer *observability.Printer
	cfg     *config.Config

	store  *db.DB
	oracle llm.Client
}

func (e *engine) Close() {
	if e.oracle != nil {
		_ = e.oracle.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
}

// newEngine loads configuration, opens the store, and wires the service.
// The oracle client is only created when the command needs one; generation
// and repair do, everything else works offline.
func newEngine(ctx context.Context, configPath string, needOracle bool) (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var oracle llm.Client
	if needOracle {
		if cfg.APIKey == "" {
			_ = store.Close()
			return nil, fmt.Errorf("GEMINI_API_KEY not set (set the environment variable or api_key in the config file)")
		}
		oracleCfg := llm.DefaultConfig()
		oracleCfg.Model = cfg.Model
		oracleCfg.MaxRetries = cfg.MaxRetries
		oracleCfg.RetryDelay = cfg.RetryDelay()
		oracle, err = llm.NewGeminiClient(ctx, oracleCfg, cfg.APIKey)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create oracle client: %w", err)
		}
	}

	svc := pipeline.NewService(pipeline.Options{
		Store:             store,
		Oracle:            oracle,
		DataDir:           cfg.DataDir,
		SandboxDir:        cfg.SandboxDir,
		AllowedCommands:   cfg.AllowedCommands,
		MaxRepairAttempts: cfg.MaxRepairAttempts,
		StepTimeout:       cfg.StepTimeout(),
		CacheTTL:          cfg.CacheTTL(),
	})

	return &engine{
		service: svc,
		printer: observability.NewPrinter(os.Stdout),
		cfg:     cfg,
		store:   store,
		oracle:  oracle,
	}, nil
}
