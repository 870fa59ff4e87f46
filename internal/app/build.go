package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/leeseongmin/maum/internal/config"
	"github.com/leeseongmin/maum/internal/extract"
	"github.com/leeseongmin/maum/internal/httpapi"
	"github.com/leeseongmin/maum/internal/llm"
	"github.com/leeseongmin/maum/internal/memory"
	"github.com/leeseongmin/maum/internal/observability"
)

// BuildResult bundles the wired service graph so the binary and integration
// tests construct it the same way.
type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Manager  *memory.Manager
	Provider llm.Provider
	Metrics  *observability.Metrics

	// Cleanup releases external resources (DB pool) on shutdown.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewProfileStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("profile store init failed: %w", err)
	}

	provider, err := llm.NewProvider(llm.Config{
		Mode:            cfg.LLMProvider,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:     cfg.OpenAIModel,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
		RequestTimeout:  cfg.LLMRequestTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("llm provider init failed: %w", err)
	}

	prefs := extract.NewPreferenceExtractor(provider, log)
	topics := extract.NewTopicExtractor(provider, log)

	manager := memory.NewManager(store, prefs, topics, memory.ManagerConfig{
		MaxTurns:           cfg.MaxSessionTurns,
		RecentSessionLimit: cfg.RecentSessionLimit,
		RedactPII:          cfg.RedactPII,
	}, metrics, log)

	api := httpapi.New(cfg, manager, metrics, log)

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Manager:  manager,
		Provider: provider,
		Metrics:  metrics,
		Cleanup:  store.Close,
	}, nil
}
