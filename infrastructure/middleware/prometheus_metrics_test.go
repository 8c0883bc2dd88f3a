package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-verity/infrastructure/llm"
)

func newTestMetrics(t *testing.T) *PrometheusMetrics {
	t.Helper()
	return NewPrometheusMetrics(prometheus.NewRegistry())
}

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		labels map[string]string
		read   func(pm *PrometheusMetrics) prometheus.Collector
	}{
		{
			name:   "run status",
			metric: "validation_runs_total",
			labels: map[string]string{"provider": "grounded", "mode": "direct", "status": "completed"},
			read: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.runs.WithLabelValues("grounded", "direct", "completed")
			},
		},
		{
			name:   "requirement outcome",
			metric: "validation_requirements_total",
			labels: map[string]string{"provider": "completion", "outcome": "failed"},
			read: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.requirements.WithLabelValues("completion", "failed")
			},
		},
		{
			name:   "parse mode",
			metric: "validation_parse_mode_total",
			labels: map[string]string{"mode": "fallback"},
			read: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.parseModes.WithLabelValues("fallback")
			},
		},
		{
			name:   "extraction source",
			metric: "validation_extraction_cache_total",
			labels: map[string]string{"result": "cache"},
			read: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.extractions.WithLabelValues("cache")
			},
		},
		{
			name:   "llm tokens",
			metric: "llm_tokens_total",
			labels: map[string]string{"provider": "openai", "model": "gpt-4o", "token_type": "input"},
			read: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.llmTokens.WithLabelValues("openai", "gpt-4o", "input")
			},
		},
		{
			name:   "missing labels become unknown",
			metric: "llm_requests_total",
			labels: nil,
			read: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.llmRequests.WithLabelValues("unknown", "unknown", "unknown")
			},
		},
		{
			name:   "unrecognised metric goes to operations",
			metric: "webhook_dispatch",
			labels: map[string]string{"status": "success"},
			read: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.operationCounter.WithLabelValues("webhook_dispatch", "success")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := newTestMetrics(t)

			pm.RecordCounter(tt.metric, 2, tt.labels)
			pm.RecordCounter(tt.metric, 1, tt.labels)

			assert.Equal(t, 3.0, testutil.ToFloat64(tt.read(pm)))
		})
	}
}

func TestPrometheusMetrics_Histograms(t *testing.T) {
	pm := newTestMetrics(t)

	pm.RecordLatency("validation_run", 42*time.Second, map[string]string{"provider": "grounded"})
	pm.RecordHistogram("llm_latency_seconds", 1.5, map[string]string{"provider": "anthropic", "model": "claude", "status": "success"})
	pm.RecordLatency("extract_document", 200*time.Millisecond, nil)

	assert.Equal(t, 1, testutil.CollectAndCount(pm.runDuration, "validation_run_duration_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.llmLatency, "llm_latency_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.operationLatency, "validation_operation_duration_seconds"))
}

func TestPrometheusMetrics_BreakerMetrics(t *testing.T) {
	pm := newTestMetrics(t)
	bm := pm.BreakerMetrics("azure_docintel")

	bm.RecordFailure()
	bm.RecordTrip()
	bm.RecordState(llm.StateOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operationCounter.WithLabelValues("circuit_breaker_azure_docintel", "trip")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.operationCounter.WithLabelValues("circuit_breaker_azure_docintel", "failure")))
	assert.Equal(t, float64(llm.StateOpen), testutil.ToFloat64(pm.systemGauges.WithLabelValues("circuit_breaker_state_azure_docintel")))
}

func TestNewPrometheusMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)

	assert.Panics(t, func() { NewPrometheusMetrics(reg) })
}
