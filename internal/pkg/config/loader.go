// Package config provides fail-open configuration loading from environment
// variables. Every loader returns a usable value: invalid input falls back to
// the supplied default and surfaces a warning instead of an error, so a typo
// in one variable never keeps the worker from starting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfigLoadResult is the outcome of loading one configuration value.
//
// Fields:
//   - Value: The loaded value (the default when a fallback was applied)
//   - Warnings: One message per fallback applied
//   - FallbackApplied: True if the default replaced an invalid value
//
// Example:
//
//	result := LoadEnvDuration("CRAWL_TIMEOUT", 30*time.Minute, ValidatePositiveDuration)
//	timeout := result.Value.(time.Duration)
type ConfigLoadResult struct {
	Value           interface{}
	Warnings        []string
	FallbackApplied bool
}

// loaded wraps a successfully loaded value.
func loaded(value interface{}) ConfigLoadResult {
	return ConfigLoadResult{Value: value}
}

// fellBack wraps a fallback to the default with the standard warning format.
func fellBack(envKey, rawValue string, reason error, defaultValue interface{}) ConfigLoadResult {
	warning := fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'",
		envKey, rawValue, reason, defaultValue)
	return ConfigLoadResult{
		Value:           defaultValue,
		Warnings:        []string{warning},
		FallbackApplied: true,
	}
}

// LoadEnvString loads a string from an environment variable, returning the
// default when the variable is unset or empty. No validation is applied; use
// LoadEnvWithFallback when the value needs checking.
func LoadEnvString(envKey, defaultValue string) string {
	value := os.Getenv(envKey)
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadEnvWithFallback loads a string from an environment variable and runs it
// through the validator. An unset variable yields the default silently; a
// value that fails validation yields the default with a warning.
//
// Example:
//
//	result := LoadEnvWithFallback("CRON_SCHEDULE", "30 5 * * *", ValidateCronSchedule)
//	schedule := result.Value.(string)
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) ConfigLoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return loaded(defaultValue)
	}

	if validator != nil {
		if err := validator(value); err != nil {
			return fellBack(envKey, value, err, defaultValue)
		}
	}
	return loaded(value)
}

// LoadEnvDuration loads a Go duration string ("30s", "5m", "1h30m") from an
// environment variable. Both a parse failure and a validator rejection fall
// back to the default with a warning.
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) ConfigLoadResult {
	valueStr := os.Getenv(envKey)
	if valueStr == "" {
		return loaded(defaultValue)
	}

	parsed, err := time.ParseDuration(valueStr)
	if err != nil {
		return fellBack(envKey, valueStr, err, defaultValue)
	}

	if validator != nil {
		if err := validator(parsed); err != nil {
			return fellBack(envKey, valueStr, err, defaultValue)
		}
	}
	return loaded(parsed)
}

// LoadEnvInt loads an integer from an environment variable. Both a parse
// failure and a validator rejection fall back to the default with a warning.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) ConfigLoadResult {
	valueStr := os.Getenv(envKey)
	if valueStr == "" {
		return loaded(defaultValue)
	}

	parsed, err := strconv.Atoi(valueStr)
	if err != nil {
		return fellBack(envKey, valueStr, fmt.Errorf("invalid integer format"), defaultValue)
	}

	if validator != nil {
		if err := validator(parsed); err != nil {
			return fellBack(envKey, valueStr, err, defaultValue)
		}
	}
	return loaded(parsed)
}

// LoadEnvBool loads a boolean from an environment variable. Accepted values
// follow strconv.ParseBool ("1", "t", "true", "0", "f", "false" in any case
// it supports). Anything else falls back to the default with a warning.
func LoadEnvBool(envKey string, defaultValue bool) ConfigLoadResult {
	valueStr := os.Getenv(envKey)
	if valueStr == "" {
		return loaded(defaultValue)
	}

	parsed, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fellBack(envKey, valueStr, fmt.Errorf("invalid boolean format, expected 'true' or 'false'"), defaultValue)
	}
	return loaded(parsed)
}
