package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"profile-analyzer/internal/adapter/repository"
	"profile-analyzer/internal/config"
	"profile-analyzer/internal/infrastructure/migration"
	"profile-analyzer/internal/model"
	"profile-analyzer/internal/usecase"
	"profile-analyzer/pkg/ai"
	"profile-analyzer/pkg/ai/backends"
	infra "profile-analyzer/pkg/infrastructure"
	"profile-analyzer/pkg/log"
	"profile-analyzer/pkg/metrics"
)

// setup loads the configuration and installs the global logger. The
// returned func flushes and restores the previous logger.
func setup() (*config.Config, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, func() {}, errors.Wrap(err, "reading configuration")
	}

	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel))
	undo := zap.ReplaceGlobals(logger)
	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}

type stores struct {
	ledger   usecase.Ledger
	subjects usecase.SubjectStore
	close    func()
}

// openStores connects the configured driver and applies its schema.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		zap.S().Warn("using the in-memory ledger; jobs are lost on exit")
		return &stores{
			ledger:   repository.NewMemoryJobsRepo(),
			subjects: repository.NewMemorySubjectsRepo(),
			close:    func() {},
		}, nil

	case config.DriverPostgres:
		pool, err := infra.NewJobsPool(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := migration.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &stores{
			ledger:   repository.NewJobsRepo(pool),
			subjects: repository.NewSubjectsRepo(pool),
			close:    pool.Close,
		}, nil

	default:
		db, err := infra.OpenSQLite(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := migration.RunSQLite(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			ledger:   repository.NewSQLiteJobsRepo(db),
			subjects: repository.NewSQLiteSubjectsRepo(db),
			close:    func() { _ = db.Close() },
		}, nil
	}
}

// newGenerator builds the provider and repair layers from the provider
// settings.
func newGenerator(cfg *config.ProviderConfig) (*ai.StructuredClient, error) {
	registry, err := ai.NewRegistry(ai.DefaultBackends(), cfg.DefaultBackend)
	if err != nil {
		return nil, errors.Wrap(err, "building backend registry")
	}
	validator, err := model.NewSchemaValidator()
	if err != nil {
		return nil, err
	}

	transports := backends.NewTransports(backends.Config{
		GatewayURL:       cfg.GatewayURL,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		Timeout:          cfg.HTTPTimeout,
	})
	client := ai.NewClient(registry, transports,
		ai.WithRetryPolicy(ai.RetryPolicy{MaxRetries: cfg.ThrottleRetries, InitialBackoff: cfg.ThrottleBackoff}),
		ai.WithObserver(metrics.Observer{}),
	)
	return ai.NewStructuredClient(client,
		ai.WithValidator(validator),
		ai.WithRepairPolicy(cfg.RepairAttempts, cfg.RepairDelay),
	), nil
}

func newWorker(cfg *config.Config, s *stores) (*usecase.Worker, error) {
	generator, err := newGenerator(cfg.Provider)
	if err != nil {
		return nil, err
	}
	resolver := usecase.NewContextResolver(s.subjects, cfg.Worker.ContextFallback)
	processor := usecase.NewProcessor(resolver, generator, s.subjects)
	return usecase.NewWorker(s.ledger, processor, *cfg.Worker,
		usecase.WithTicker(usecase.JitterTicker(cfg.Worker.PollJitter)),
	), nil
}
