package analysis

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/llm"
	"github.com/rohankatakam/sentryai/internal/models"
)

const fullJSON = `{
  "summary": "Null dereference in checkout",
  "root_cause": "cart is nil when session expires",
  "impact_assessment": "7 users cannot pay",
  "reproduction_steps": ["log in", "wait 30 minutes", "click pay"],
  "suggested_fix": "guard against nil cart",
  "estimated_effort": "2-4 hours",
  "priority": "high",
  "tags": ["checkout", "nil", "Checkout"],
  "related_issues": ["ISSUE-7", 12],
  "confidence_score": 0.85
}`

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"code fence", "Here is the result:\n```json\n{\"a\": {\"b\": [1, 2]}}\n```", `{"a": {"b": [1, 2]}}`, true},
		{"prose around", `Sure! {"a":"}"} Hope this helps {"b":2}`, `{"a":"}"}`, true},
		{"skips broken braces", `use {braces} like {"a":1}`, `{"a":1}`, true},
		{"array is not an object", `[1,2,3]`, "", false},
		{"no json", `I cannot help with that.`, "", false},
		{"truncated", `{"summary": "cut off`, "", false},
		{"empty", ``, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAnalysis_CodeFence(t *testing.T) {
	a, err := ParseAnalysis("Here is the result:\n```json\n" + fullJSON + "\n```")
	require.NoError(t, err)

	assert.Equal(t, "Null dereference in checkout", a.Summary)
	assert.Equal(t, "cart is nil when session expires", a.RootCause)
	assert.Equal(t, "7 users cannot pay", a.ImpactAssessment)
	assert.Equal(t, []string{"log in", "wait 30 minutes", "click pay"}, a.ReproductionSteps)
	assert.Equal(t, "2-4 hours", a.EstimatedEffort)
	assert.Equal(t, models.PriorityHigh, a.Priority)
	assert.Equal(t, []string{"checkout", "nil"}, a.Tags)
	assert.Equal(t, []string{"ISSUE-7", "12"}, a.RelatedIssues)
	assert.InDelta(t, 0.85, a.ConfidenceScore, 1e-9)
}

func TestParseAnalysis_MissingPriorityAndTags(t *testing.T) {
	a, err := ParseAnalysis(`{"summary": "s", "root_cause": "r", "suggested_fix": "f", "reproduction_steps": ["x"]}`)
	require.NoError(t, err)

	assert.Equal(t, models.PriorityMedium, a.Priority)
	assert.NotNil(t, a.Tags)
	assert.Empty(t, a.Tags)
	assert.Equal(t, "s", a.Summary)
	assert.Equal(t, "r", a.RootCause)
	assert.Equal(t, "f", a.SuggestedFix)
	assert.Equal(t, []string{"x"}, a.ReproductionSteps)
}

func TestParseAnalysis_FieldFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		check func(t *testing.T, a *models.AIAnalysis)
	}{
		{"empty object", `{}`, func(t *testing.T, a *models.AIAnalysis) {
			assert.Equal(t, "", a.Summary)
			assert.Equal(t, "", a.RootCause)
			assert.Equal(t, "", a.SuggestedFix)
			assert.Equal(t, []string{}, a.ReproductionSteps)
			assert.Equal(t, models.PriorityMedium, a.Priority)
			assert.Equal(t, 0.0, a.ConfidenceScore)
			assert.Equal(t, []string{}, a.Tags)
			assert.Equal(t, DefaultEstimatedEffort, a.EstimatedEffort)
		}},
		{"wrong types", `{"summary": 5, "reproduction_steps": "do it", "priority": 3, "tags": "a,b", "confidence_score": "high"}`,
			func(t *testing.T, a *models.AIAnalysis) {
				assert.Equal(t, "", a.Summary)
				assert.Equal(t, []string{}, a.ReproductionSteps)
				assert.Equal(t, models.PriorityMedium, a.Priority)
				assert.Equal(t, []string{}, a.Tags)
				assert.Equal(t, 0.0, a.ConfidenceScore)
			}},
		{"unknown priority", `{"priority": "urgent"}`, func(t *testing.T, a *models.AIAnalysis) {
			assert.Equal(t, models.PriorityMedium, a.Priority)
		}},
		{"priority case", `{"priority": "CRITICAL"}`, func(t *testing.T, a *models.AIAnalysis) {
			assert.Equal(t, models.PriorityCritical, a.Priority)
		}},
		{"mixed array elements", `{"reproduction_steps": ["a", 1, null, "b"]}`, func(t *testing.T, a *models.AIAnalysis) {
			assert.Equal(t, []string{"a", "b"}, a.ReproductionSteps)
		}},
		{"legacy steps key", `{"steps_to_reproduce": ["a"]}`, func(t *testing.T, a *models.AIAnalysis) {
			assert.Equal(t, []string{"a"}, a.ReproductionSteps)
		}},
		{"present strings kept verbatim", `{"summary": "  padded\n", "reproduction_steps": [" a ", ""], "estimated_effort": "", "tags": [" x "]}`,
			func(t *testing.T, a *models.AIAnalysis) {
				assert.Equal(t, "  padded\n", a.Summary)
				assert.Equal(t, []string{" a ", ""}, a.ReproductionSteps)
				assert.Equal(t, "", a.EstimatedEffort)
				assert.Equal(t, []string{" x "}, a.Tags)
			}},
		{"effort wrong type", `{"estimated_effort": 3}`, func(t *testing.T, a *models.AIAnalysis) {
			assert.Equal(t, DefaultEstimatedEffort, a.EstimatedEffort)
		}},
		{"confidence clamped", `{"confidence_score": 7}`, func(t *testing.T, a *models.AIAnalysis) {
			assert.Equal(t, 1.0, a.ConfidenceScore)
		}},
		{"negative confidence", `{"confidence_score": -0.2}`, func(t *testing.T, a *models.AIAnalysis) {
			assert.Equal(t, 0.0, a.ConfidenceScore)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAnalysis(tt.json)
			require.NoError(t, err)
			tt.check(t, a)
		})
	}
}

func TestParseAnalysis_NoJSON(t *testing.T) {
	_, err := ParseAnalysis("I'm sorry, I can't analyze this error.")
	require.Error(t, err)
	assert.Equal(t, errors.KindParse, errors.KindOf(err))
	assert.Equal(t, "parse_error", errors.Reason(err))
}

func testIssue() *models.IssueRecord {
	return &models.IssueRecord{
		ID:        "ISSUE-1",
		Title:     "NullPointerException",
		Level:     models.LevelError,
		Culprit:   "com.acme.Cart in pay",
		Count:     42,
		UserCount: 7,
		FirstSeen: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Tags:      []models.Tag{{Key: "browser", Value: "Chrome"}},
		Metadata:  map[string]any{"zeta": 1, "alpha": "x", "mid": map[string]any{"b": 2, "a": 1}},
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	first := BuildPrompt(testIssue())
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, BuildPrompt(testIssue()))
	}

	assert.Contains(t, first, "- Title: NullPointerException")
	assert.Contains(t, first, "- Level: error")
	assert.Contains(t, first, "- Culprit: com.acme.Cart in pay")
	assert.Contains(t, first, "- Occurrences: 42")
	assert.Contains(t, first, "- Affected users: 7")
	assert.Contains(t, first, "- First seen: 2024-01-02T03:04:05Z")
	assert.Contains(t, first, "- Last seen: unknown")
	assert.Contains(t, first, "- browser: Chrome")
	assert.Less(t, strings.Index(first, `"alpha"`), strings.Index(first, `"zeta"`))
}

func TestBuildPrompt_EmptyFields(t *testing.T) {
	p := BuildPrompt(&models.IssueRecord{ID: "1"})
	assert.Contains(t, p, "- Culprit: (none)")
	assert.Contains(t, p, "Tags:\n(none)")
	assert.Contains(t, p, "Additional context:\n{}")
}

type fakeCompleter struct {
	text string
	err  error
	got  llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{
		Text:  f.text,
		Model: "gpt-4",
		Usage: models.TokenUsage{PromptTokens: 300, CompletionTokens: 200, TotalTokens: 1},
	}, nil
}

func factoryFor(c llm.Completer) CompleterFactory {
	return func(models.WorkspaceCredentials) (llm.Completer, error) { return c, nil }
}

var creds = models.WorkspaceCredentials{OpenAIKey: "sk-test"}

func TestEngine_Analyze(t *testing.T) {
	fc := &fakeCompleter{text: "```json\n" + fullJSON + "\n```"}
	e := NewEngine(factoryFor(fc))

	a, err := e.Analyze(context.Background(), "ws-1", creds, testIssue())
	require.NoError(t, err)

	assert.Equal(t, models.PriorityHigh, a.Priority)
	assert.Equal(t, "gpt-4", a.Model)
	assert.Equal(t, 500, a.Usage.TotalTokens)
	assert.Equal(t, a.Usage.PromptTokens+a.Usage.CompletionTokens, a.Usage.TotalTokens)

	assert.Equal(t, SystemPrompt, fc.got.System)
	assert.Equal(t, BuildPrompt(testIssue()), fc.got.User)
	assert.Equal(t, "ws-1", fc.got.QuotaKey)
}

func TestEngine_Errors(t *testing.T) {
	timeout := errors.ProviderError(context.DeadlineExceeded, errors.ProviderTimeout, "timed out")

	tests := []struct {
		name  string
		creds models.WorkspaceCredentials
		fc    *fakeCompleter
		want  string
	}{
		{"missing key", models.WorkspaceCredentials{}, &fakeCompleter{}, "configuration_error"},
		{"provider timeout", creds, &fakeCompleter{err: timeout}, "provider_timeout"},
		{"no json", creds, &fakeCompleter{text: "no idea"}, "parse_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(factoryFor(tt.fc))
			a, err := e.Analyze(context.Background(), "ws-1", tt.creds, testIssue())
			assert.Nil(t, a)
			assert.Equal(t, tt.want, errors.Reason(err))
		})
	}
}

func TestOpenAIFactory_MissingKey(t *testing.T) {
	_, err := OpenAIFactory(llm.Options{})(models.WorkspaceCredentials{})
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii", "abcdef", 3, "abc..."},
		{"backs off mid-rune", "ab€cd", 3, "ab..."},
		{"rune boundary", "ab€cd", 5, "ab€..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
