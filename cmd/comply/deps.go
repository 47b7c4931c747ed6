package main

import (
	"context"
	"fmt"
	"os"

	"github.com/complypilot/comply-core/internal/application/handlers"
	"github.com/complypilot/comply-core/internal/domain/ports"
	"github.com/complypilot/comply-core/internal/domain/services"
	"github.com/complypilot/comply-core/internal/infrastructure/config"
	"github.com/complypilot/comply-core/internal/infrastructure/store/sqlite"
	"go.uber.org/zap"
)

// storeAccess is the read surface commands use for direct browsing.
type storeAccess = ports.Store

// Deps holds high-level dependencies for commands. The store and services
// are constructed once per invocation and passed in explicitly; there are no
// process-wide singletons.
type Deps struct {
	Config          *config.Config
	Store           ports.Store
	RuleHandler     *handlers.RuleHandler
	MetricsHandler  *handlers.MetricsHandler
	DecisionHandler *handlers.DecisionHandler
	FeedbackHandler *handlers.FeedbackHandler
}

// withDeps loads config and builds dependencies, then calls the provided
// function. It handles cleanup automatically.
func withDeps(fn func(*Deps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is harmless

	store, err := sqlite.NewRepository(cfg.SQLite)
	if err != nil {
		return fmt.Errorf("creating sqlite store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	ruleService := services.NewRuleService(store, logger)
	decisionService := services.NewDecisionService(store, ruleService, cfg.Automation, logger)
	metricsService := services.NewMetricsService(store, logger)
	// No intent classifier in the CLI: rule learning requests are logged
	// and skipped. API deployments inject the hosted model here.
	feedbackService := services.NewFeedbackService(store, ruleService, nil, logger)

	deps := &Deps{
		Config:          cfg,
		Store:           store,
		RuleHandler:     handlers.NewRuleHandler(ruleService),
		MetricsHandler:  handlers.NewMetricsHandler(metricsService),
		DecisionHandler: handlers.NewDecisionHandler(store, decisionService),
		FeedbackHandler: handlers.NewFeedbackHandler(feedbackService),
	}

	return fn(deps)
}

// withStore provides direct store access for commands that only read.
func withStore(fn func(storeAccess) error) error {
	return withDeps(func(d *Deps) error {
		return fn(d.Store)
	})
}

// newLogger builds the CLI logger: quiet errors-only by default, full
// development output with --verbose.
func newLogger() (*zap.Logger, error) {
	if globalVerbose {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	return cfg.Build()
}
