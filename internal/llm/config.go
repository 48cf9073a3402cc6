// Package llm provides the oracle client used for pipeline generation and
// repair, plus prompt construction and response parsing.
package llm

import "time"

// Config holds oracle client settings.
type Config struct {
	Model           string
	MaxRetries      int
	RetryDelay      time.Duration
	MaxOutputTokens int32
}

// DefaultConfig returns the stock oracle configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:           "gemini-2.5-flash",
		MaxRetries:      3,
		RetryDelay:      2 * time.Second,
		MaxOutputTokens: 8192,
	}
}
