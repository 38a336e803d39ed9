package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, StatusPending.Active())
	assert.True(t, StatusProcessing.Active())
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, Status("archived").Validate())
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("HIGH"))
	assert.Equal(t, PriorityCritical, ParsePriority(" critical "))
	assert.Equal(t, PriorityMedium, ParsePriority("urgent"))
	assert.Equal(t, PriorityMedium, ParsePriority(""))
}

func TestParseLevelAndStatus(t *testing.T) {
	assert.Equal(t, LevelWarning, ParseLevel("warn"))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelError, ParseLevel(""))
	assert.Equal(t, IssueResolved, ParseIssueStatus("resolved"))
	assert.Equal(t, IssueUnresolved, ParseIssueStatus("muted"))
}

func TestNewTokenUsage(t *testing.T) {
	u := NewTokenUsage(120, 80)
	assert.Equal(t, 200, u.TotalTokens)

	u = NewTokenUsage(-3, 5)
	assert.Equal(t, TokenUsage{PromptTokens: 0, CompletionTokens: 5, TotalTokens: 5}, u)
}

func TestCredentials(t *testing.T) {
	creds := WorkspaceCredentials{SentryToken: "tok", SentryOrganization: "acme"}
	merged := creds.Merge(WorkspaceCredentials{SentryToken: "other", OpenAIKey: "sk-1", OpenAIModel: "gpt-4"})

	assert.Equal(t, "tok", merged.SentryToken)
	assert.Equal(t, "sk-1", merged.OpenAIKey)
	assert.Equal(t, "gpt-4", merged.OpenAIModel)

	r := merged.Redacted()
	assert.Equal(t, "***", r.SentryToken)
	assert.Equal(t, "***", r.OpenAIKey)
	assert.Equal(t, "acme", r.SentryOrganization)
	assert.Equal(t, "tok", merged.SentryToken, "Redacted must not mutate the receiver")
}
