package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-verity/internal/domain"
)

// RequirementOutcome describes how one requirement of a run ended.
type RequirementOutcome struct {
	Number    string
	Status    domain.ResultStatus
	ParseMode domain.ParseMode
	Elapsed   time.Duration
	// Err is nil when a result row was stored.
	Err error
}

// ExtractionOutcome describes one document extraction attempt.
type ExtractionOutcome struct {
	Filename string
	// Source is where the text came from: "document", "cache",
	// "repository" or "backend".
	Source string
	Err    error
}

// RunObserver receives lifecycle events from the Orchestrator.
// Implementations must not block.
type RunObserver interface {
	// RunStarted may return a derived context (e.g. carrying a span) that
	// the Orchestrator uses for the rest of the run.
	RunStarted(ctx context.Context, validationID string, cfg domain.ProviderConfig) context.Context
	DocumentExtracted(ctx context.Context, outcome ExtractionOutcome)
	RequirementFinished(ctx context.Context, outcome RequirementOutcome)
	RunFinished(ctx context.Context, summary domain.RunSummary)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) RunStarted(ctx context.Context, _ string, _ domain.ProviderConfig) context.Context {
	return ctx
}
func (NopObserver) DocumentExtracted(context.Context, ExtractionOutcome)    {}
func (NopObserver) RequirementFinished(context.Context, RequirementOutcome) {}
func (NopObserver) RunFinished(context.Context, domain.RunSummary)          {}
