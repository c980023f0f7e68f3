package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeMissingConfig    = "MISSING_CONFIG"
	ErrCodeInvalidValue     = "INVALID_VALUE"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
)

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in the environment or your .env file", varName),
	}
}

// ErrInvalidValue returns an error for a variable whose value cannot be used.
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%s': %s", varName, value, reason),
		Action:  fmt.Sprintf("Fix %s in the environment or your .env file", varName),
	}
}

// ErrStoreUnavailable returns an error when the configured store cannot be opened.
func ErrStoreUnavailable(backend string, reason error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeStoreUnavailable,
		Message: fmt.Sprintf("Cannot open %s store: %v", backend, reason),
		Action:  "Check DATABASE_PATH is writable, or set STORE_BACKEND=memory",
	}
}

// IsConfigError checks if an error is, or wraps, a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
