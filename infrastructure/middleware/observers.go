package middleware

import (
	"context"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// Observers fans every event out to each observer in order. Contexts
// returned from RunStarted are threaded through, so a later observer sees
// values added by an earlier one.
type Observers []ports.RunObserver

var _ ports.RunObserver = Observers(nil)

func (obs Observers) RunStarted(ctx context.Context, validationID string, cfg domain.ProviderConfig) context.Context {
	for _, o := range obs {
		ctx = o.RunStarted(ctx, validationID, cfg)
	}
	return ctx
}

func (obs Observers) DocumentExtracted(ctx context.Context, outcome ports.ExtractionOutcome) {
	for _, o := range obs {
		o.DocumentExtracted(ctx, outcome)
	}
}

func (obs Observers) RequirementFinished(ctx context.Context, outcome ports.RequirementOutcome) {
	for _, o := range obs {
		o.RequirementFinished(ctx, outcome)
	}
}

func (obs Observers) RunFinished(ctx context.Context, summary domain.RunSummary) {
	for _, o := range obs {
		o.RunFinished(ctx, summary)
	}
}
