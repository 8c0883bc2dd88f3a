package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-verity/internal/domain"
)

// LLMClient defines the interface for interacting with chat-completion
// providers.
// Implementations should handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the generated text and any error encountered.
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Common options include:
	//   - "temperature": float64
	//   - "max_tokens": int
	//   - "system": string
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// ObjectStore downloads source document binaries by storage path.
type ObjectStore interface {
	// Download returns the full object body. A missing object returns an
	// error wrapping ErrObjectNotFound.
	Download(ctx context.Context, path string) ([]byte, error)
}

// ExtractionCache is a fast lookaside for extracted text keyed by storage
// path. It never replaces the durable copy on the document row.
type ExtractionCache interface {
	// Get returns the cached text and fragments. A miss returns ErrCacheMiss.
	Get(ctx context.Context, key string) (domain.Extraction, error)

	// Set stores the extraction with the configured TTL.
	Set(ctx context.Context, key string, value domain.Extraction) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus,
// OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
