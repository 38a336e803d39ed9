package main

import (
	"context"
	"log/slog"

	"github.com/rohankatakam/sentryai/internal/analysis"
	"github.com/rohankatakam/sentryai/internal/config"
	"github.com/rohankatakam/sentryai/internal/llm"
	"github.com/rohankatakam/sentryai/internal/orchestrator"
	"github.com/rohankatakam/sentryai/internal/sentry"
	"github.com/rohankatakam/sentryai/internal/storage"
	"github.com/rohankatakam/sentryai/internal/workspace"
)

// app is the wired pipeline shared by every command
type app struct {
	store      storage.Store
	tracker    *sentry.Client
	limiter    *llm.RateLimiter
	orch       *orchestrator.Orchestrator
	workspaces *workspace.Resolver
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	result := cfg.Validate()
	if err := result.Err(); err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		slog.Debug("config warning", "warning", w)
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	a := &app{
		store: store,
		tracker: sentry.NewClient(cfg.Sentry.BaseURL,
			sentry.WithTimeout(cfg.Sentry.Timeout),
			sentry.WithRateLimit(cfg.Sentry.RequestsPerSecond)),
	}

	// The quota guard is optional: without Redis, completions are only bounded by the provider.
	if cfg.Redis.Addr != "" {
		a.limiter, err = llm.NewRateLimiter(ctx, llm.RateLimiterConfig{
			Addr:              cfg.Redis.Addr,
			Password:          cfg.Redis.Password,
			DB:                cfg.Redis.DB,
			RequestsPerMinute: cfg.OpenAI.RequestsPerMinute,
			TokensPerMinute:   cfg.OpenAI.TokensPerMinute,
		})
		if err != nil {
			slog.Warn("provider quota guard disabled", "error", err)
			a.limiter = nil
		}
	}

	engine := analysis.NewEngine(analysis.OpenAIFactory(llm.Options{
		Model:       cfg.OpenAI.Model,
		BaseURL:     cfg.OpenAI.BaseURL,
		Timeout:     cfg.OpenAI.Timeout,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		JSONMode:    cfg.OpenAI.JSONMode,
		Limiter:     a.limiter,
	}))

	a.orch = orchestrator.New(store, a.tracker, engine,
		orchestrator.WithFetchPolicy(orchestrator.FetchPolicy(cfg.Retry)),
		orchestrator.WithProviderPolicy(orchestrator.ProviderPolicy(cfg.Retry)))

	defaults := config.NewCredentialManager().ResolveDefaults(cfg)
	a.workspaces = workspace.NewResolver(store, defaults)
	return a, nil
}

// Close waits for background analyses before releasing the store
func (a *app) Close() error {
	a.orch.Wait()
	if a.limiter != nil {
		a.limiter.Close()
	}
	return a.store.Close()
}
