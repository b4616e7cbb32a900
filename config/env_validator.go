package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvValidator handles validation and typed access to environment variables
type EnvValidator struct{}

// NewEnvValidator creates a new environment validator instance
func NewEnvValidator() *EnvValidator {
	return &EnvValidator{}
}

// ValidateRequired validates that all required environment variables are present
// Returns an error if any required variables are missing
func (e *EnvValidator) ValidateRequired() error {
	requiredVars := []string{"BOT_TOKEN", "API_ID", "API_HASH"}

	var missingVars []string
	for _, varName := range requiredVars {
		if value := os.Getenv(varName); value == "" {
			missingVars = append(missingVars, varName)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v. Please set these variables in your .env file or environment", missingVars)
	}

	// Validate API_ID is a valid integer
	if _, _, err := e.GetAPICredentials(); err != nil {
		return fmt.Errorf("invalid API_ID: %w", err)
	}

	return nil
}

// GetBotToken returns the bot token from environment variables
func (e *EnvValidator) GetBotToken() string {
	return os.Getenv("BOT_TOKEN")
}

// GetAPICredentials returns the API ID and API Hash from environment variables
// Returns an error if API_ID cannot be converted to integer
func (e *EnvValidator) GetAPICredentials() (apiID int, apiHash string, err error) {
	apiIDStr := os.Getenv("API_ID")
	apiHash = os.Getenv("API_HASH")

	if apiIDStr == "" {
		return 0, "", fmt.Errorf("API_ID environment variable is not set")
	}

	if apiHash == "" {
		return 0, "", fmt.Errorf("API_HASH environment variable is not set")
	}

	apiID, err = strconv.Atoi(apiIDStr)
	if err != nil {
		return 0, "", fmt.Errorf("API_ID must be a valid integer, got: %s", apiIDStr)
	}

	return apiID, apiHash, nil
}

// String returns the variable's value, or the default when unset
func (e *EnvValidator) String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int parses an integer variable, returning the default when unset
func (e *EnvValidator) Int(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer, got: %s", key, v)
	}
	return n, nil
}

// Duration parses a Go duration variable, returning the default when unset
func (e *EnvValidator) Duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration like 2s or 500ms, got: %s", key, v)
	}
	return d, nil
}

// UserIDs parses a comma-separated Telegram user ID allowlist. Empty or
// unset means no restriction.
func (e *EnvValidator) UserIDs(key string) ([]int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}

	parts := strings.Split(v, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s entries must be numeric Telegram user IDs, got: %s", key, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
