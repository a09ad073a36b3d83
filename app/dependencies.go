package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/modelgrid/provider-router/config"
	"github.com/modelgrid/provider-router/services/outcome"
	"github.com/modelgrid/provider-router/services/providers"
	"github.com/modelgrid/provider-router/services/routing"
)

// Dependencies holds all application dependencies. This is the central
// wiring point: the router and its collaborators are explicit values owned
// here, not package-level singletons.
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger

	Catalog *providers.StaticCatalog
	Oracle  *providers.ProbeOracle
	Invoker providers.Invoker
	Sink    outcome.Sink
	Router  *routing.Router

	outcomeStore *outcome.PostgresStore
	asyncSink    *outcome.AsyncSink
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.Catalog = providers.NewStaticCatalog(cfg.Descriptors()...)
	logger.Info("provider catalog initialized", zap.Int("providers", deps.Catalog.Count()))

	if err := deps.initOutcomeSink(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize outcome sink: %w", err)
	}

	probeClient := &http.Client{Timeout: cfg.Health.ProbeTimeout}
	deps.Oracle = providers.NewProbeOracle(
		deps.Catalog,
		providers.HTTPProbe(probeClient),
		cfg.Health.ProbeInterval,
		logger,
	)

	deps.Invoker = providers.NewHTTPInvoker(&http.Client{}, logger)

	deps.Router = routing.NewRouter(
		routing.Config{
			DefaultMaxAttempts: cfg.Router.MaxAttempts,
			DefaultTimeout:     cfg.Router.DefaultTimeout,
			BackoffBase:        cfg.Router.BackoffBase,
			BackoffMax:         cfg.Router.BackoffMax,
		},
		deps.Catalog,
		deps.Oracle,
		deps.Invoker,
		deps.Sink,
		logger,
	)

	logger.Info("all dependencies initialized")
	return deps, nil
}

// initOutcomeSink wires outcome persistence: Postgres behind an async worker
// sink when a database is configured, an in-memory sink otherwise.
func (d *Dependencies) initOutcomeSink(ctx context.Context, cfg *config.Config) error {
	if cfg.Outcome.DatabaseURL == "" {
		d.Sink = outcome.NewMemorySink()
		d.Logger.Info("outcome sink running in memory (no DATABASE_URL set)")
		return nil
	}

	store, err := outcome.OpenPostgresStore(ctx, cfg.Outcome.DatabaseURL, d.Logger)
	if err != nil {
		return err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return err
	}

	async := outcome.NewAsyncSink(store, d.Logger, outcome.Config{
		BufferSize:  cfg.Outcome.BufferSize,
		WorkerCount: cfg.Outcome.WorkerCount,
	})
	if err := async.Start(); err != nil {
		store.Close()
		return err
	}

	d.outcomeStore = store
	d.asyncSink = async
	d.Sink = async
	d.Logger.Info("outcome sink persisting to postgres")
	return nil
}

// Start launches background workers (health probing).
func (d *Dependencies) Start(ctx context.Context) {
	d.Oracle.Start(ctx)
}

// Close shuts down background workers and releases resources.
func (d *Dependencies) Close(timeout time.Duration) {
	d.Oracle.Stop()

	if d.asyncSink != nil {
		if err := d.asyncSink.Stop(timeout); err != nil {
			d.Logger.Warn("outcome sink shutdown incomplete", zap.Error(err))
		}
	}
	if d.outcomeStore != nil {
		if err := d.outcomeStore.Close(); err != nil {
			d.Logger.Warn("failed to close outcome store", zap.Error(err))
		}
	}
}

// NewLogger builds the application logger from observability configuration.
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.LogFormat == "text" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = level

	return zapCfg.Build()
}
