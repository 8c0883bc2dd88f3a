// Package middleware provides cross-cutting concerns for validation runs:
// Prometheus metrics and OpenTelemetry tracing.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-verity/infrastructure/llm"
	"github.com/ahrav/go-verity/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. Known metric names go to dedicated vectors; anything else
// lands in the generic operation vectors.
type PrometheusMetrics struct {
	runs         *prometheus.CounterVec
	requirements *prometheus.CounterVec
	parseModes   *prometheus.CounterVec
	extractions  *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics registers all metrics with reg. A nil reg uses the
// global Prometheus registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusMetrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_runs_total",
				Help: "Validation runs by provider, mode and terminal status.",
			},
			[]string{"provider", "mode", "status"},
		),
		requirements: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_requirements_total",
				Help: "Requirements processed by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		parseModes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_parse_mode_total",
				Help: "Provider responses by parser stage.",
			},
			[]string{"mode"},
		),
		extractions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_extraction_cache_total",
				Help: "Document extractions by text source.",
			},
			[]string{"result"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "validation_run_duration_seconds",
				Help:    "Wall time of a validation run.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
			},
			[]string{"provider"},
		),

		llmRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Chat completion requests by provider, model and status.",
			},
			[]string{"provider", "model", "status"},
		),
		llmLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "Chat completion latency.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Tokens consumed by chat completions.",
			},
			[]string{"provider", "model", "token_type"},
		),

		operationLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "validation_operation_duration_seconds",
				Help:    "Execution time of other operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_operations_total",
				Help: "Count of other operations.",
			},
			[]string{"operation", "status"},
		),
		systemGauges: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "validation_system_state",
				Help: "Current values of named system gauges.",
			},
			[]string{"metric"},
		),
	}
}

// label returns labels[key] or "unknown".
func label(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return "unknown"
}

// RecordLatency implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	switch operation {
	case "validation_run":
		pm.runDuration.WithLabelValues(label(labels, "provider")).Observe(duration.Seconds())
	default:
		pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordCounter implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "validation_runs_total":
		pm.runs.WithLabelValues(label(labels, "provider"), label(labels, "mode"), label(labels, "status")).Add(value)
	case "validation_requirements_total":
		pm.requirements.WithLabelValues(label(labels, "provider"), label(labels, "outcome")).Add(value)
	case "validation_parse_mode_total":
		pm.parseModes.WithLabelValues(label(labels, "mode")).Add(value)
	case "validation_extraction_cache_total":
		pm.extractions.WithLabelValues(label(labels, "result")).Add(value)
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Add(value)
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "token_type")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, label(labels, "status")).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_latency_seconds":
		pm.llmLatency.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Observe(value)
	case "validation_run_duration_seconds":
		pm.runDuration.WithLabelValues(label(labels, "provider")).Observe(value)
	default:
		pm.operationLatency.WithLabelValues(metric).Observe(value)
	}
}

// BreakerMetrics adapts the collector to llm.CircuitBreakerMetrics so
// breaker transitions show up as system gauges and operation counters.
func (pm *PrometheusMetrics) BreakerMetrics(name string) llm.CircuitBreakerMetrics {
	return &breakerMetrics{collector: pm, name: name}
}

type breakerMetrics struct {
	collector ports.MetricsCollector
	name      string
}

func (b *breakerMetrics) RecordState(state llm.CircuitBreakerState) {
	b.collector.RecordGauge("circuit_breaker_state_"+b.name, float64(state), nil)
}

func (b *breakerMetrics) RecordTrip() {
	b.collector.RecordCounter("circuit_breaker_"+b.name, 1, map[string]string{"status": "trip"})
}

func (b *breakerMetrics) RecordSuccess() {
	b.collector.RecordCounter("circuit_breaker_"+b.name, 1, map[string]string{"status": "success"})
}

func (b *breakerMetrics) RecordFailure() {
	b.collector.RecordCounter("circuit_breaker_"+b.name, 1, map[string]string{"status": "failure"})
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
