// Command validate runs one validation request and prints its summary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrav/go-verity/internal/application"
	"github.com/ahrav/go-verity/internal/bootstrap"
	"github.com/ahrav/go-verity/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "Path to the YAML configuration file")
		id         = flag.String("id", "", "Validation request id")
		provider   = flag.String("provider", "", "Override the configured provider (grounded or completion)")
		demo       = flag.Bool("demo", false, "Run a seeded request against in-memory backends")
		migrate    = flag.Bool("migrate", false, "Apply the database schema before running")
	)
	flag.Parse()

	if *demo && *id == "" {
		*id = bootstrap.DemoValidationID
	}
	if *id == "" {
		log.Fatal("-id is required")
	}

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
		fmt.Fprintf(os.Stderr, "initialise: %v\n", err)
		return 1
	}
	defer app.Close()

	summary, err := app.Orchestrator.Run(ctx, *id, application.RunOptions{ProviderOverride: *provider})
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
			return 2
		}
		fmt.Fprintf(os.Stderr, "validation %s: %v\n", *id, err)
		if summary.ValidationID != "" {
			_ = writeSummary(summary)
		}
		return 1
	}

	if err := writeSummary(summary); err != nil {
		fmt.Fprintf(os.Stderr, "write summary: %v\n", err)
		return 1
	}
	if summary.Status == domain.StatusFailed {
		return 1
	}
	return 0
}

func writeSummary(summary domain.RunSummary) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
