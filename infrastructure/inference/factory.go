package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-verity/infrastructure/extraction"
	"github.com/ahrav/go-verity/infrastructure/llm"
	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// Factory builds the Validator named by a resolved ProviderConfig. Its New
// method has the shape of application.ValidatorFactory.
type Factory struct {
	opts []Option
}

// NewFactory creates a Factory. The options are applied to every
// validator it builds.
func NewFactory(opts ...Option) *Factory {
	return &Factory{opts: opts}
}

// New returns the validator for cfg.Provider.
func (f *Factory) New(ctx context.Context, cfg domain.ProviderConfig) (ports.Validator, error) {
	o := newOptions(f.opts)

	switch cfg.Provider {
	case domain.ProviderGrounded:
		v, err := NewGroundedValidator(ctx, cfg.Grounded, extraction.NewLocalRouter(), f.opts...)
		if err != nil {
			return nil, err
		}
		return v, nil

	case domain.ProviderCompletion:
		remote := o.docIntel
		if remote == nil {
			azure, err := extraction.NewAzureClient(
				cfg.Completion.DocIntelEndpoint,
				cfg.Completion.DocIntelKey,
				cfg.Completion.DocIntelModel,
				extraction.WithCircuitBreaker(llm.NewCircuitBreaker(3, time.Minute)),
				extraction.WithAnalyzeTimeout(cfg.CallTimeout),
				extraction.WithAzureLogger(o.logger),
			)
			if err != nil {
				return nil, err
			}
			remote = azure
		}
		router := extraction.NewRouter(
			extraction.WithRoute(extraction.NewPlaintext(), extraction.PlaintextExtensions...),
			extraction.WithFallback(remote),
		)

		client := o.llmClient
		if client == nil {
			built, err := llm.NewClientFromSettings(cfg.Completion, cfg.CallTimeout, o.middleware...)
			if err != nil {
				return nil, err
			}
			client = built
		}
		v, err := NewCompletionValidator(router, client, f.opts...)
		if err != nil {
			return nil, err
		}
		return v, nil

	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
