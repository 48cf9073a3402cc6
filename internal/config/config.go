// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults applied when neither the config file nor the environment sets a
// value.
const (
	DefaultDatabasePath       = "./queryforge.db"
	DefaultDataDir            = "./data"
	DefaultSandboxDir         = "./sandbox"
	DefaultModel              = "gemini-2.5-flash"
	DefaultMaxRetries         = 3
	DefaultRetryDelaySeconds  = 2
	DefaultMaxRepairAttempts  = 3
	DefaultStepTimeoutSeconds = 10
	DefaultCacheTTLSeconds    = 300
)

// Config represents the engine configuration. Values can come from a JSON
// file, the environment, or CLI flags; later sources win.
type Config struct {
	// Paths
	DatabasePath string `json:"database_path,omitempty" validate:"required"`
	DataDir      string `json:"data_dir,omitempty" validate:"required"`
	SandboxDir   string `json:"sandbox_dir,omitempty" validate:"required"`

	// Oracle
	APIKey            string `json:"api_key,omitempty"`
	Model             string `json:"model,omitempty" validate:"required"`
	MaxRetries        int    `json:"max_retries,omitempty" validate:"min=0,max=10"`
	RetryDelaySeconds int    `json:"retry_delay_seconds,omitempty" validate:"min=0"`

	// Execution
	MaxRepairAttempts  int      `json:"max_repair_attempts,omitempty" validate:"min=1,max=10"`
	StepTimeoutSeconds int      `json:"step_timeout_seconds,omitempty" validate:"min=1,max=600"`
	CacheTTLSeconds    int      `json:"cache_ttl_seconds,omitempty" validate:"min=0"`
	AllowedCommands    []string `json:"allowed_commands,omitempty"`

	// Behavior
	Verbose bool `json:"verbose,omitempty"`
}

var validate = validator.New()

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		DatabasePath:       DefaultDatabasePath,
		DataDir:            DefaultDataDir,
		SandboxDir:         DefaultSandboxDir,
		Model:              DefaultModel,
		MaxRetries:         DefaultMaxRetries,
		RetryDelaySeconds:  DefaultRetryDelaySeconds,
		MaxRepairAttempts:  DefaultMaxRepairAttempts,
		StepTimeoutSeconds: DefaultStepTimeoutSeconds,
		CacheTTLSeconds:    DefaultCacheTTLSeconds,
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path if non-empty, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("QUERYFORGE_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("DATA_DIRECTORY"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("SANDBOX_DIRECTORY"); v != "" {
		c.SandboxDir = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Model = v
	}
	if v, ok := envInt("GEMINI_MAX_RETRIES"); ok {
		c.MaxRetries = v
	}
	if v, ok := envInt("GEMINI_RETRY_DELAY_SECONDS"); ok {
		c.RetryDelaySeconds = v
	}
	if v, ok := envInt("MAX_REPAIR_ATTEMPTS"); ok {
		c.MaxRepairAttempts = v
	}
	if v, ok := envInt("SANDBOX_TIMEOUT_SECONDS"); ok {
		c.StepTimeoutSeconds = v
	}
	if v := os.Getenv("ALLOWED_COMMANDS"); v != "" {
		parts := strings.Split(v, ",")
		cmds := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cmds = append(cmds, p)
			}
		}
		c.AllowedCommands = cmds
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config error: field %s failed %q validation", f.Field(), f.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// StepTimeout returns the per-step execution budget as a duration.
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSeconds) * time.Second
}

// RetryDelay returns the oracle retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// CacheTTL returns the resource context cache lifetime as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
