// Package analysis turns an issue snapshot into a structured AI analysis:
// prompt construction, one completion call, and tolerant parsing.
package analysis

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/llm"
	"github.com/rohankatakam/sentryai/internal/models"
)

// CompleterFactory builds a completer for a workspace's credentials. It must
// return a configuration error when the provider key is missing.
type CompleterFactory func(creds models.WorkspaceCredentials) (llm.Completer, error)

// OpenAIFactory returns a factory producing llm.Clients with the given options.
// A workspace model override replaces opts.Model.
func OpenAIFactory(opts llm.Options) CompleterFactory {
	return func(creds models.WorkspaceCredentials) (llm.Completer, error) {
		o := opts
		if creds.OpenAIModel != "" {
			o.Model = creds.OpenAIModel
		}
		return llm.NewClient(creds.OpenAIKey, o)
	}
}

// Engine runs one analysis per call. It holds no per-issue state.
type Engine struct {
	newCompleter CompleterFactory
	logger       *slog.Logger
}

// NewEngine creates an analysis engine
func NewEngine(factory CompleterFactory) *Engine {
	return &Engine{
		newCompleter: factory,
		logger:       slog.Default().With("component", "analysis"),
	}
}

// Analyze builds the prompt, calls the provider once and parses the answer
func (e *Engine) Analyze(ctx context.Context, workspaceID string, creds models.WorkspaceCredentials, issue *models.IssueRecord) (*models.AIAnalysis, error) {
	if issue == nil {
		return nil, errors.InternalErrorf("analyze called without an issue")
	}
	if strings.TrimSpace(creds.OpenAIKey) == "" {
		return nil, errors.ConfigError("OpenAI API key is not configured")
	}

	completer, err := e.newCompleter(creds)
	if err != nil {
		return nil, err
	}

	completion, err := completer.Complete(ctx, llm.Request{
		System:   SystemPrompt,
		User:     BuildPrompt(issue),
		QuotaKey: workspaceID,
	})
	if err != nil {
		return nil, err
	}

	result, err := ParseAnalysis(completion.Text)
	if err != nil {
		e.logger.Warn("unparseable completion", "issue_id", issue.ID, "response", truncate(completion.Text, 500))
		return nil, err
	}

	result.Model = completion.Model
	result.Usage = models.NewTokenUsage(completion.Usage.PromptTokens, completion.Usage.CompletionTokens)

	e.logger.Info("issue analyzed",
		"issue_id", issue.ID,
		"priority", result.Priority,
		"total_tokens", result.Usage.TotalTokens)
	e.logger.Debug("raw completion", "issue_id", issue.ID, "response", truncate(compact(completion.Text), 2000))
	return result, nil
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
