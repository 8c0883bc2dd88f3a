package middleware

import (
	"context"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

var _ ports.RunObserver = (*MetricsObserver)(nil)

type providerKey struct{}

// MetricsObserver turns run lifecycle events into collector samples.
type MetricsObserver struct {
	metrics ports.MetricsCollector
}

// NewMetricsObserver creates an observer that reports to metrics.
func NewMetricsObserver(metrics ports.MetricsCollector) *MetricsObserver {
	return &MetricsObserver{metrics: metrics}
}

// RunStarted remembers the provider so requirement samples carry it.
func (o *MetricsObserver) RunStarted(ctx context.Context, _ string, cfg domain.ProviderConfig) context.Context {
	return context.WithValue(ctx, providerKey{}, string(cfg.Provider))
}

// DocumentExtracted counts where the text came from. Failures count as
// "error" regardless of the last source tried.
func (o *MetricsObserver) DocumentExtracted(_ context.Context, outcome ports.ExtractionOutcome) {
	result := outcome.Source
	if outcome.Err != nil {
		result = "error"
	}
	o.metrics.RecordCounter("validation_extraction_cache_total", 1, map[string]string{"result": result})
}

// RequirementFinished counts stored and failed requirements and the
// parser stage that produced each stored result.
func (o *MetricsObserver) RequirementFinished(ctx context.Context, outcome ports.RequirementOutcome) {
	provider, _ := ctx.Value(providerKey{}).(string)

	result := "stored"
	if outcome.Err != nil {
		result = "failed"
	}
	o.metrics.RecordCounter("validation_requirements_total", 1, map[string]string{
		"provider": provider,
		"outcome":  result,
	})
	if outcome.ParseMode != "" && outcome.ParseMode != domain.ParseNone {
		o.metrics.RecordCounter("validation_parse_mode_total", 1, map[string]string{"mode": string(outcome.ParseMode)})
	}
}

// RunFinished records the terminal status and run duration.
func (o *MetricsObserver) RunFinished(_ context.Context, summary domain.RunSummary) {
	labels := map[string]string{
		"provider": string(summary.Provider),
		"mode":     string(summary.Mode),
		"status":   string(summary.Status),
	}
	o.metrics.RecordCounter("validation_runs_total", 1, labels)
	o.metrics.RecordLatency("validation_run", summary.Elapsed, labels)
}
