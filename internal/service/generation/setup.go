package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vellum/internal/config"
	"vellum/internal/domain/repositories"
	"vellum/internal/service/generation/providers/anthropic"
	"vellum/internal/service/generation/providers/lorem"
)

// SetupProviders builds the provider registry from config. The lorem mock is
// always registered so dev and test work without API keys; Anthropic is added
// when a key is present.
func SetupProviders(cfg *config.Config, logger *slog.Logger) (*ProviderRegistry, error) {
	registry := NewProviderRegistry()

	registry.Register(lorem.NewProvider())

	if cfg.AnthropicAPIKey != "" {
		provider, err := anthropic.NewProvider(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
		}
		registry.Register(provider)
		logger.Info("provider available", "name", "anthropic", "models", "claude-*")
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set - Anthropic provider not available")
	}

	// Fail fast when the configured default model has no provider.
	if _, err := registry.ForModel(cfg.DefaultModel); err != nil {
		return nil, fmt.Errorf("default model not routable: %w", err)
	}

	logger.Info("provider registry initialized",
		"providers", registry.Names(),
		"default_model", cfg.DefaultModel,
	)

	return registry, nil
}

// SetupService wires the generation service and starts the run-registry
// sweep goroutine.
func SetupService(
	cfg *config.Config,
	opRepo repositories.OperationRepository,
	docRepo repositories.DocumentRepository,
	projectRepo repositories.ProjectRepository,
	logger *slog.Logger,
) (*Service, error) {
	providers, err := SetupProviders(cfg, logger)
	if err != nil {
		return nil, err
	}

	actions, err := NewActionRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load action templates: %w", err)
	}

	runs := NewRunRegistry(1*time.Minute, 10*time.Minute)
	go runs.StartCleanup(context.Background())

	return NewService(opRepo, docRepo, projectRepo, providers, actions, runs, cfg.DefaultModel, logger), nil
}
