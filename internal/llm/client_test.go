package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4-0613",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"summary\":\"ok\"}"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 999}
}`

func newTestClient(t *testing.T, h http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL + "/v1"
	c, err := NewClient("sk-test", opts)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("  ", Options{})
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
}

func TestComplete_Success(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody))
	}, Options{Model: "gpt-4", Temperature: 0.3, MaxTokens: 2000, JSONMode: true})

	out, err := c.Complete(context.Background(), Request{System: "sys", User: "user"})
	require.NoError(t, err)

	assert.Equal(t, `{"summary":"ok"}`, out.Text)
	assert.Equal(t, "gpt-4-0613", out.Model)
	// total is recomputed, never trusted
	assert.Equal(t, models.TokenUsage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150}, out.Usage)

	assert.Equal(t, "gpt-4", got["model"])
	assert.EqualValues(t, 2000, got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["content"])
	assert.Equal(t, "json_object", got["response_format"].(map[string]any)["type"])
}

func TestComplete_MissingUsageIsZero(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"x","object":"chat.completion","model":"gpt-4",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`))
	}, Options{})

	out, err := c.Complete(context.Background(), Request{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, models.TokenUsage{}, out.Usage)
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, "provider_rate_limit"},
		{"bad key", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key","type":"invalid_request_error","code":"invalid_api_key"}}`, "provider_auth"},
		{"gateway timeout", http.StatusGatewayTimeout, `upstream timed out`, "provider_timeout"},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, "provider_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, Options{})

			_, err := c.Complete(context.Background(), Request{User: "u"})
			require.Error(t, err)
			assert.Equal(t, errors.KindProvider, errors.KindOf(err))
			assert.Equal(t, tt.want, errors.Reason(err))
		})
	}
}

func TestComplete_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}, Options{Timeout: 50 * time.Millisecond})

	_, err := c.Complete(context.Background(), Request{User: "u"})
	require.Error(t, err)
	assert.Equal(t, "provider_timeout", errors.Reason(err))
	assert.True(t, errors.IsRetryableProvider(err))
}

func TestComplete_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"x","object":"chat.completion","model":"gpt-4","choices":[]}`))
	}, Options{})

	_, err := c.Complete(context.Background(), Request{User: "u"})
	assert.Equal(t, "provider_error", errors.Reason(err))
}

func TestComplete_LocalQuota(t *testing.T) {
	rl, _ := newTestLimiter(t, 1, 100_000)

	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(completionBody))
	}, Options{Limiter: rl})

	_, err := c.Complete(context.Background(), Request{User: "u", QuotaKey: "ws-1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), Request{User: "u", QuotaKey: "ws-1"})
	assert.Equal(t, "provider_rate_limit", errors.Reason(err))
	assert.Equal(t, 1, calls, "quota rejection must not reach the provider")
}
