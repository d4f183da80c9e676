package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration shared by the completion clients.
type Config struct {
	// Model is the provider model identifier. Empty selects the adapter's
	// default model.
	Model string

	// MaxTokens is the maximum number of tokens for the API response.
	// Valid range: 256-16384. Default: 4096.
	MaxTokens int

	// CallTimeout is the overall budget for a single completion call,
	// enforced by racing the request against a timer. Default: 90s.
	CallTimeout time.Duration

	// RequestsPerMinute throttles outgoing calls client-side, independent
	// of the provider's own 429 handling. Default: 30.
	RequestsPerMinute int
}

// DefaultConfig returns the default completion client configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         4096,
		CallTimeout:       90 * time.Second,
		RequestsPerMinute: 30,
	}
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if c.MaxTokens < 256 || c.MaxTokens > 16384 {
		return fmt.Errorf("max tokens must be between 256 and 16384, got %d", c.MaxTokens)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %v", c.CallTimeout)
	}
	if c.RequestsPerMinute < 1 || c.RequestsPerMinute > 600 {
		return fmt.Errorf("requests per minute must be between 1 and 600, got %d", c.RequestsPerMinute)
	}
	return nil
}

// LoadConfigFromEnv loads configuration from environment variables with
// fallback to defaults.
//
// Environment variables:
//   - LLM_MODEL: provider model identifier (default: adapter default)
//   - LLM_MAX_TOKENS: integer (default: 4096)
//   - LLM_CALL_TIMEOUT: duration string, e.g., "90s" (default: 90s)
//   - LLM_REQUESTS_PER_MINUTE: integer (default: 30)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if val := os.Getenv("LLM_MODEL"); val != "" {
		cfg.Model = val
	}

	if val := os.Getenv("LLM_MAX_TOKENS"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid LLM_MAX_TOKENS: %v", err)
		}
		cfg.MaxTokens = parsed
	}

	if val := os.Getenv("LLM_CALL_TIMEOUT"); val != "" {
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid LLM_CALL_TIMEOUT: %v (expected format: '90s', '2m')", err)
		}
		cfg.CallTimeout = parsed
	}

	if val := os.Getenv("LLM_REQUESTS_PER_MINUTE"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid LLM_REQUESTS_PER_MINUTE: %v", err)
		}
		cfg.RequestsPerMinute = parsed
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
