package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig holds the limits for one endpoint. A Path ending in "/" is
// matched as a prefix, which covers the {id}-suffixed routes.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int           // requests per window; <= 0 means unlimited
	Window time.Duration
	Burst  int           // bucket capacity, defaults to Limit
}

// keyPath returns the path component of the bucket key. Requests matched by
// prefix share one bucket per config, so /pipeline/run/1 and /pipeline/run/2
// count against the same budget.
func (ec *EndpointConfig) keyPath(endpoint string) string {
	if ec.Path != "" {
		return ec.Path
	}
	return endpoint
}

// Config holds the limiter-wide settings.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Exempt          map[string]bool // client IDs never limited
	EndpointConfigs []EndpointConfig
}

// LoadConfig builds the limiter configuration from environment variables,
// falling back to defaults tuned for the pipeline API.
func LoadConfig() *Config {
	if !getEnvBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 300),
		DefaultWindow:   getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Exempt:          parseClientList(os.Getenv("RATE_LIMIT_EXEMPT")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the per-endpoint limits. The oracle-backed
// endpoints (generation and repair) are the expensive tier; sandbox runs and
// commits mutate state so they sit in a middle tier; reads use the default.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/pipeline/create", Method: "POST", Limit: 20, Window: time.Hour, Burst: 5},
		{Path: "/pipeline/repair/", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},

		{Path: "/pipeline/run/", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/pipeline/commit/", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/pipeline/rollback/", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
	}
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseClientList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			result[id] = true
		}
	}
	return result
}
