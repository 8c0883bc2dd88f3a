package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-verity/internal/application"
	"github.com/ahrav/go-verity/internal/domain"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       application.LogConfig
		wantJSON  bool
		wantDebug bool
	}{
		{name: "json info by default", cfg: application.LogConfig{}, wantJSON: true},
		{name: "text debug", cfg: application.LogConfig{Level: "debug", Format: "text"}, wantDebug: true},
		{name: "json warn", cfg: application.LogConfig{Level: "WARN", Format: "json"}, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.cfg, &buf)

			logger.Debug("debug line")
			logger.Error("error line", "validation_id", "val-1")

			out := buf.String()
			assert.Contains(t, out, "error line")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))
			if tt.wantJSON {
				var line map[string]any
				first, _, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
				require.NoError(t, json.Unmarshal(first, &line))
				assert.Equal(t, "val-1", line["validation_id"])
			}
		})
	}
}

func TestBuild_Demo(t *testing.T) {
	// Given a demo build with default configuration
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := Build(context.Background(), application.DefaultConfig(), logger, Options{Demo: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	// When the seeded request runs
	summary, err := app.Orchestrator.Run(context.Background(), DemoValidationID, application.RunOptions{})

	// Then every requirement is judged against the local extraction
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, summary.Status)
	assert.Equal(t, domain.ProviderCompletion, summary.Provider)
	assert.Equal(t, len(demoRequirements), summary.TotalRequirements)
	assert.Equal(t, len(demoRequirements), summary.SuccessfulValidations)
	assert.Equal(t, len(demoRequirements), summary.StatusDistribution[domain.ResultCompliant])
	assert.Zero(t, summary.ParseFallbacks)

	// And the run is visible in the registry
	runs, err := testutil.GatherAndCount(app.Registry, "validation_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
	requests, err := testutil.GatherAndCount(app.Registry, "llm_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestBuild_RequiresDatabase(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := Build(context.Background(), application.DefaultConfig(), logger, Options{})

	assert.ErrorContains(t, err, "database.url is required")
}
