package models

import "time"

const redacted = "***"

// WorkspaceCredentials are the secrets needed to run one analysis
type WorkspaceCredentials struct {
	SentryToken        string `json:"sentry_api_token,omitempty" yaml:"sentry_api_token,omitempty"`
	SentryOrganization string `json:"sentry_organization,omitempty" yaml:"sentry_organization,omitempty"`
	OpenAIKey          string `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	OpenAIModel        string `json:"openai_model,omitempty" yaml:"openai_model,omitempty"`
}

// Redacted masks the secret fields for display
func (c WorkspaceCredentials) Redacted() WorkspaceCredentials {
	if c.SentryToken != "" {
		c.SentryToken = redacted
	}
	if c.OpenAIKey != "" {
		c.OpenAIKey = redacted
	}
	return c
}

// WithoutRedacted clears secret fields that still hold the redaction mask,
// so a redacted copy sent back reads as "unchanged"
func (c WorkspaceCredentials) WithoutRedacted() WorkspaceCredentials {
	if c.SentryToken == redacted {
		c.SentryToken = ""
	}
	if c.OpenAIKey == redacted {
		c.OpenAIKey = ""
	}
	return c
}

// Merge fills empty fields from defaults
func (c WorkspaceCredentials) Merge(defaults WorkspaceCredentials) WorkspaceCredentials {
	if c.SentryToken == "" {
		c.SentryToken = defaults.SentryToken
	}
	if c.SentryOrganization == "" {
		c.SentryOrganization = defaults.SentryOrganization
	}
	if c.OpenAIKey == "" {
		c.OpenAIKey = defaults.OpenAIKey
	}
	if c.OpenAIModel == "" {
		c.OpenAIModel = defaults.OpenAIModel
	}
	return c
}

// Workspace is a tenant that owns analyses and holds credentials
type Workspace struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Credentials WorkspaceCredentials `json:"credentials"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}
