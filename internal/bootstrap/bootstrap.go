// Package bootstrap assembles the production object graph from a Config.
// Both entrypoints share it so the CLI and the daemon run identical
// pipelines.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ahrav/go-verity/infrastructure/dispatch"
	"github.com/ahrav/go-verity/infrastructure/inference"
	"github.com/ahrav/go-verity/infrastructure/llm"
	"github.com/ahrav/go-verity/infrastructure/middleware"
	"github.com/ahrav/go-verity/infrastructure/storage/objectstore"
	"github.com/ahrav/go-verity/infrastructure/storage/postgres"
	"github.com/ahrav/go-verity/infrastructure/storage/rediscache"
	"github.com/ahrav/go-verity/internal/application"
	"github.com/ahrav/go-verity/internal/ports"
)

// ServiceName identifies this process in traces.
const ServiceName = "go-verity"

// Options selects optional behaviour of Build.
type Options struct {
	// Demo replaces every external system with in-memory fakes seeded
	// with a sample validation request.
	Demo bool
	// Migrate applies the Postgres schema before serving.
	Migrate bool
}

// App is the assembled pipeline plus the resources it owns.
type App struct {
	Orchestrator *application.Orchestrator
	Registry     *prometheus.Registry
	Metrics      *middleware.PrometheusMetrics

	closers []func() error
}

// Close releases every resource in reverse acquisition order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg application.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Build connects to every backend named in cfg and wires the
// Orchestrator. On error, anything already opened is closed.
func Build(ctx context.Context, cfg *application.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	app := &App{Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = middleware.NewPrometheusMetrics(app.Registry)

	observer := middleware.Observers{
		middleware.NewOTelObserver(),
		middleware.NewMetricsObserver(app.Metrics),
	}
	orchOpts := []application.OrchestratorOption{
		application.WithLogger(logger),
		application.WithObserver(observer),
		application.WithDispatcherFactory(dispatch.NewFactory(logger)),
	}

	if opts.Demo {
		store, objects, validators := demoBackends(app.Metrics)
		app.Orchestrator, err = application.NewOrchestrator(demoConfig(cfg), store, objects, validators, orchOpts...)
		if err != nil {
			return nil, err
		}
		return app, nil
	}

	store, err := app.openDatastore(ctx, cfg.Database, opts.Migrate)
	if err != nil {
		return nil, err
	}

	objects, err := app.openObjectStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		client, err := rediscache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client.Close)
		orchOpts = append(orchOpts, application.WithCache(rediscache.New(client, rediscache.WithTTL(cfg.Redis.TTL))))
	}

	factory := inference.NewFactory(
		inference.WithLogger(logger),
		inference.WithMiddleware(llmMiddleware(cfg.Completion.LLMProvider, app.Metrics)...),
	)

	app.Orchestrator, err = application.NewOrchestrator(cfg, store, objects, factory.New, orchOpts...)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// llmMiddleware is the chain applied to chat completion clients, outermost
// first. Pacing and per-call deadlines are owned by the Inference Invoker.
func llmMiddleware(provider string, metrics *middleware.PrometheusMetrics) []llm.Middleware {
	return []llm.Middleware{
		llm.TracingMiddleware(ServiceName),
		llm.MetricsMiddleware(provider, metrics),
		llm.RetryMiddleware(3, 2*time.Second, 30*time.Second),
		llm.CircuitBreakerMiddlewareWithMetrics(5, time.Minute, metrics.BreakerMetrics("llm")),
	}
}

func (a *App) openDatastore(ctx context.Context, cfg application.DatabaseConfig, migrate bool) (ports.Datastore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database.url is required")
	}
	pool, err := postgres.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	store := postgres.New(pool)
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (a *App) openObjectStore(ctx context.Context, cfg application.StorageConfig) (ports.ObjectStore, error) {
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		gcs, err := objectstore.NewGCS(client, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return gcs, nil
	case "filesystem", "":
		fs, err := objectstore.NewFilesystem(cfg.Root)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fs.Close)
		return fs, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
