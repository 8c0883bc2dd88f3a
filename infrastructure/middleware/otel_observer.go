package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

var _ ports.RunObserver = (*OTelObserver)(nil)

// OTelObserver traces a validation run as one span with an event per
// document and per requirement.
type OTelObserver struct {
	tracer trace.Tracer
}

// NewOTelObserver uses the global tracer provider.
func NewOTelObserver() *OTelObserver {
	return NewOTelObserverWithTracer(otel.Tracer("github.com/ahrav/go-verity/orchestrator"))
}

// NewOTelObserverWithTracer is NewOTelObserver with an explicit tracer.
func NewOTelObserverWithTracer(tracer trace.Tracer) *OTelObserver {
	return &OTelObserver{tracer: tracer}
}

// RunStarted opens the run span and returns a context carrying it.
func (o *OTelObserver) RunStarted(ctx context.Context, validationID string, cfg domain.ProviderConfig) context.Context {
	ctx, _ = o.tracer.Start(ctx, "Orchestrator.Run", trace.WithAttributes(
		attribute.String("validation.id", validationID),
		attribute.String("validation.provider", string(cfg.Provider)),
		attribute.String("validation.mode", string(cfg.Mode)),
	))
	return ctx
}

// DocumentExtracted adds an extraction event to the run span.
func (o *OTelObserver) DocumentExtracted(ctx context.Context, outcome ports.ExtractionOutcome) {
	span := trace.SpanFromContext(ctx)
	attrs := trace.WithAttributes(
		attribute.String("document.filename", outcome.Filename),
		attribute.String("document.source", outcome.Source),
	)
	if outcome.Err != nil {
		span.RecordError(outcome.Err, attrs)
		return
	}
	span.AddEvent("document.extracted", attrs)
}

// RequirementFinished adds a requirement event to the run span.
func (o *OTelObserver) RequirementFinished(ctx context.Context, outcome ports.RequirementOutcome) {
	span := trace.SpanFromContext(ctx)
	attrs := trace.WithAttributes(
		attribute.String("requirement.number", outcome.Number),
		attribute.String("requirement.status", string(outcome.Status)),
		attribute.String("requirement.parse_mode", string(outcome.ParseMode)),
		attribute.Int64("requirement.elapsed_ms", outcome.Elapsed.Milliseconds()),
	)
	if outcome.Err != nil {
		span.RecordError(outcome.Err, attrs)
		return
	}
	span.AddEvent("requirement.finished", attrs)
}

// RunFinished records the summary on the run span and ends it.
func (o *OTelObserver) RunFinished(ctx context.Context, summary domain.RunSummary) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		attribute.String("validation.status", string(summary.Status)),
		attribute.Int("validation.requirements.total", summary.TotalRequirements),
		attribute.Int("validation.requirements.succeeded", summary.SuccessfulValidations),
		attribute.Int("validation.requirements.failed", summary.FailedValidations),
		attribute.Int("validation.parse_fallbacks", summary.ParseFallbacks),
	)

	if summary.Status == domain.StatusFailed {
		span.SetStatus(codes.Error, summary.ErrorMessage)
		return
	}
	span.SetStatus(codes.Ok, "")
}
