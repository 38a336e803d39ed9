package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/sentryai/internal/errors"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, e := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", e))
	}
	if len(vr.Warnings) > 0 {
		sb.WriteString("warnings:\n")
		for _, w := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", w))
		}
	}
	return sb.String()
}

// Err converts a failed result into a configuration error, nil otherwise
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigError(strings.TrimSpace(vr.Error()))
}

// Validate checks every section and reports all problems at once.
// Missing credentials are warnings: workspaces may carry their own.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateStorage(result)
	c.validateSentry(result)
	c.validateOpenAI(result)
	c.validateRetry(result)

	return result
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			result.AddError("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("storage.postgres_dsn (or DATABASE_URL) is required for the postgres driver")
		}
	case "bolt":
		if c.Storage.BoltPath == "" {
			result.AddError("storage.bolt_path is required for the bolt driver")
		}
	default:
		result.AddError("storage.driver %q is not one of sqlite, postgres, bolt", c.Storage.Driver)
	}
}

func (c *Config) validateSentry(result *ValidationResult) {
	u, err := url.Parse(c.Sentry.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError("sentry.base_url %q is not an absolute URL", c.Sentry.BaseURL)
	}
	if c.Sentry.Timeout <= 0 {
		result.AddError("sentry.timeout must be positive")
	}
	if c.Sentry.Token == "" || c.Sentry.Organization == "" {
		result.AddWarning("no default Sentry token/organization; workspaces must provide their own")
	}
}

func (c *Config) validateOpenAI(result *ValidationResult) {
	if c.OpenAI.Model == "" {
		result.AddError("openai.model is required")
	}
	if c.OpenAI.Timeout <= 0 {
		result.AddError("openai.timeout must be positive")
	}
	if c.OpenAI.Timeout > 0 && c.Sentry.Timeout > c.OpenAI.Timeout {
		result.AddWarning("sentry.timeout (%s) exceeds openai.timeout (%s)", c.Sentry.Timeout, c.OpenAI.Timeout)
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		result.AddError("openai.temperature must be between 0 and 2")
	}
	if c.OpenAI.MaxTokens <= 0 {
		result.AddError("openai.max_tokens must be positive")
	}
	if c.OpenAI.APIKey == "" {
		result.AddWarning("no default OpenAI API key; workspaces must provide their own")
	}
}

func (c *Config) validateRetry(result *ValidationResult) {
	if c.Retry.FetchAttempts < 1 {
		result.AddError("retry.fetch_attempts must be at least 1")
	}
	if c.Retry.ProviderAttempts < 1 {
		result.AddError("retry.provider_attempts must be at least 1")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		result.AddError("retry.max_backoff must not be smaller than retry.initial_backoff")
	}
}
