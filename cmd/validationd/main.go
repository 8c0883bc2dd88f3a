// Command validationd serves the validation trigger API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahrav/go-verity/internal/application"
	"github.com/ahrav/go-verity/internal/bootstrap"
	"github.com/ahrav/go-verity/internal/transport/httpapi"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the YAML configuration file")
		demo       = flag.Bool("demo", false, "Serve against in-memory backends with a seeded request")
		migrate    = flag.Bool("migrate", false, "Apply the database schema at startup")
	)
	flag.Parse()

	cfg := application.DefaultConfig()
	if *configPath != "" {
		loaded, err := application.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	logger := bootstrap.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{Demo: *demo, Migrate: *migrate})
	if err != nil {
		log.Fatalf("Failed to initialise: %v", err)
	}
	defer app.Close()

	handler := httpapi.New(app.Orchestrator,
		httpapi.WithLogger(logger),
		httpapi.WithGatherer(app.Registry),
		httpapi.WithBatchLimit(cfg.Server.MaxConcurrentRuns),
	)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("validationd listening", "addr", cfg.Server.Addr, "demo", *demo,
		"max_concurrent_runs", cfg.Server.MaxConcurrentRuns)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
