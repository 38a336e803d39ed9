package models

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an AnalysisRecord
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Validate checks if status is one of the four known states
func (s Status) Validate() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Active reports whether the status counts toward the one-active-per-issue limit
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// Terminal reports whether no further transition is allowed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition enforces pending -> processing -> completed|failed.
// A pending record may fail directly when the pipeline cannot start.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Priority of the fix as judged by the analysis
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps free text to a Priority; unknown values become medium
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p
	default:
		return PriorityMedium
	}
}

// TokenUsage is the provider's accounting for one completion.
// TotalTokens is always PromptTokens + CompletionTokens.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewTokenUsage builds a usage block, clamping negatives and recomputing the total
func NewTokenUsage(prompt, completion int) TokenUsage {
	if prompt < 0 {
		prompt = 0
	}
	if completion < 0 {
		completion = 0
	}
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// AIAnalysis is the structured assessment produced for an issue
type AIAnalysis struct {
	Summary              string     `json:"summary"`
	RootCause            string     `json:"root_cause"`
	ImpactAssessment     string     `json:"impact_assessment"`
	TechnicalDescription string     `json:"technical_description,omitempty"`
	ReproductionSteps    []string   `json:"reproduction_steps"`
	SuggestedFix         string     `json:"suggested_fix"`
	CodeExamples         string     `json:"code_examples,omitempty"`
	EstimatedEffort      string     `json:"estimated_effort"`
	Priority             Priority   `json:"priority"`
	Tags                 []string   `json:"tags"`
	AffectedComponents   []string   `json:"affected_components,omitempty"`
	RelatedIssues        []string   `json:"related_issues,omitempty"`
	ConfidenceScore      float64    `json:"confidence_score"`
	Model                string     `json:"model,omitempty"`
	Usage                TokenUsage `json:"token_usage"`
}

// AnalysisRecord is the persisted state of one analysis run
type AnalysisRecord struct {
	ID             string       `json:"id"`
	WorkspaceID    string       `json:"workspace_id"`
	IssueID        string       `json:"issue_id"`
	Issue          *IssueRecord `json:"sentry_issue_data,omitempty"`
	Analysis       *AIAnalysis  `json:"ai_analysis,omitempty"`
	Status         Status       `json:"status"`
	FailureReason  string       `json:"failure_reason,omitempty"`
	FailureMessage string       `json:"failure_message,omitempty"`
	Attempts       int          `json:"attempts"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// Clone returns a deep enough copy for handing records across goroutines
func (r *AnalysisRecord) Clone() *AnalysisRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Issue != nil {
		issue := *r.Issue
		c.Issue = &issue
	}
	if r.Analysis != nil {
		a := *r.Analysis
		c.Analysis = &a
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
