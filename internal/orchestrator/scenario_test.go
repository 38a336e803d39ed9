package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/sentryai/internal/analysis"
	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/llm"
	"github.com/rohankatakam/sentryai/internal/models"
	"github.com/rohankatakam/sentryai/internal/sentry"
)

// End-to-end runs through the real tracker client and analysis engine; only
// the HTTP tracker and the completion call are faked.

type scriptedCompleter struct {
	calls atomic.Int32
	text  string
	err   error
}

func (c *scriptedCompleter) Complete(context.Context, llm.Request) (*llm.Completion, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Completion{
		Text:  c.text,
		Model: "gpt-4",
		Usage: models.TokenUsage{PromptTokens: 412, CompletionTokens: 188},
	}, nil
}

func trackerServer(t *testing.T, status int, body string) *sentry.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return sentry.NewClient(srv.URL, sentry.WithRateLimit(0))
}

func pipeline(t *testing.T, tracker *sentry.Client, completer llm.Completer) *Orchestrator {
	t.Helper()
	engine := analysis.NewEngine(func(models.WorkspaceCredentials) (llm.Completer, error) {
		return completer, nil
	})
	return newOrchestrator(t, newStore(t), tracker, engine)
}

const scenarioIssue = `{"title": "NullPointerException", "level": "error", "count": 42, "userCount": 7}`

const scenarioCompletion = "Here is the result:\n```json\n" + `{
  "summary": "Null pointer in checkout",
  "root_cause": "cart is not initialized",
  "impact_assessment": "7 users blocked",
  "reproduction_steps": ["open checkout"],
  "suggested_fix": "initialize the cart",
  "estimated_effort": "1-2 hours",
  "priority": "high",
  "tags": ["checkout"],
  "confidence_score": 0.8
}` + "\n```"

func TestScenario_CompletedAnalysis(t *testing.T) {
	completer := &scriptedCompleter{text: scenarioCompletion}
	o := pipeline(t, trackerServer(t, http.StatusOK, scenarioIssue), completer)

	res, err := o.StartAnalysis(context.Background(), startReq("ISSUE-1"))
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, models.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Analysis)
	assert.Equal(t, models.PriorityHigh, rec.Analysis.Priority)
	require.NotNil(t, rec.Issue)
	assert.Equal(t, "ISSUE-1", rec.Issue.ID)
	assert.Equal(t, int64(42), rec.Issue.Count)
	assert.Equal(t, int64(7), rec.Issue.UserCount)
	assert.Equal(t, 600, rec.Analysis.Usage.TotalTokens)
	assert.Equal(t, int32(1), completer.calls.Load())
}

func TestScenario_IssueNotFound(t *testing.T) {
	completer := &scriptedCompleter{text: scenarioCompletion}
	o := pipeline(t, trackerServer(t, http.StatusNotFound, `{"detail": "The requested resource does not exist"}`), completer)

	res, err := o.StartAnalysis(context.Background(), startReq("ISSUE-404"))
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, "not_found", rec.FailureReason)
	assert.Nil(t, rec.Analysis)
	assert.Nil(t, rec.Issue)
	assert.Equal(t, int32(0), completer.calls.Load())
}

func TestScenario_ProviderTimesOutTwice(t *testing.T) {
	completer := &scriptedCompleter{
		err: errors.ProviderError(context.DeadlineExceeded, errors.ProviderTimeout, "completion request timed out"),
	}
	o := pipeline(t, trackerServer(t, http.StatusOK, scenarioIssue), completer)

	res, err := o.StartAnalysis(context.Background(), startReq("ISSUE-1"))
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, "provider_timeout", rec.FailureReason)
	assert.Nil(t, rec.Analysis)
	require.NotNil(t, rec.Issue, "snapshot fetched before the failure is kept")
	assert.Equal(t, int64(42), rec.Issue.Count)
	assert.Equal(t, int32(2), completer.calls.Load())

	persisted, err := o.GetAnalysis(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, persisted.Issue)
	assert.Equal(t, "NullPointerException", persisted.Issue.Title)
}
