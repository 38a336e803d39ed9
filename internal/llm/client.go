package llm

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
)

const (
	DefaultModel   = "gpt-4"
	DefaultTimeout = 60 * time.Second
)

// Request is one chat completion: a system and a user message
type Request struct {
	System string
	User   string
	// QuotaKey scopes the rate limiter, normally the workspace id
	QuotaKey string
}

// Completion is the generated text plus the provider's token accounting
type Completion struct {
	Text  string
	Model string
	// Usage is zero when the provider did not report it
	Usage models.TokenUsage
}

// Completer is anything that can run a single completion
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Options configures a Client
type Options struct {
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
	// JSONMode asks the API for a JSON object response. Older models reject it.
	JSONMode   bool
	HTTPClient *http.Client
	Limiter    *RateLimiter
}

// Client calls the OpenAI chat completions API
type Client struct {
	openai  *openai.Client
	opts    Options
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewClient creates a completion client for one API key. A missing key is a
// configuration error so no call is ever attempted without credentials.
func NewClient(apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.ConfigError("OpenAI API key is not configured")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return &Client{
		openai:  openai.NewClientWithConfig(cfg),
		opts:    opts,
		limiter: opts.Limiter,
		logger:  slog.Default().With("component", "llm"),
	}, nil
}

// Model returns the model used for completions
func (c *Client) Model() string {
	return c.opts.Model
}

// Complete runs one chat completion bounded by the client timeout
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	if c.limiter != nil {
		// reserve the worst case; usage is not estimated
		if err := c.limiter.CheckAndIncrement(ctx, req.QuotaKey, int64(c.opts.MaxTokens)); err != nil {
			if stderrors.Is(err, ErrQuotaExceeded) {
				return nil, errors.ProviderError(err, errors.ProviderRateLimit, "local provider quota exhausted")
			}
			c.logger.Warn("rate limiter unavailable, continuing without it", "error", err)
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
	if c.opts.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := c.openai.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		classified := classify(err)
		c.logger.Warn("completion failed", "model", c.opts.Model, "reason", errors.Reason(classified),
			"duration_ms", time.Since(start).Milliseconds())
		return nil, classified
	}

	if len(resp.Choices) == 0 {
		return nil, errors.ProviderError(nil, errors.ProviderOther, "completion returned no choices")
	}

	out := &Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: models.NewTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}
	if out.Model == "" {
		out.Model = c.opts.Model
	}

	c.logger.Debug("completion finished",
		"model", out.Model,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds())

	return out, nil
}

// classify turns an SDK or transport error into a provider error with a subkind
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case stderrors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case stderrors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusTooManyRequests:
		return errors.ProviderError(err, errors.ProviderRateLimit, "provider rate limit")
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.ProviderError(err, errors.ProviderAuth, "provider rejected API key")
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return errors.ProviderError(err, errors.ProviderTimeout, "provider timed out")
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ProviderError(err, errors.ProviderTimeout, "provider timed out")
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.ProviderError(err, errors.ProviderTimeout, "provider timed out")
	}
	return errors.ProviderError(err, errors.ProviderOther, "provider call failed")
}
