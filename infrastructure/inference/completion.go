package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahrav/go-verity/infrastructure/llm"
	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// usageReporter is implemented by llm.Client.
type usageReporter interface {
	CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error)
}

// CompletionValidator pairs document intelligence extraction with a chat
// completion model. It cannot search documents itself, so it judges only
// the content selected for each requirement.
type CompletionValidator struct {
	extractor ports.DocumentIntelligence
	client    ports.LLMClient
	logger    *slog.Logger
}

// NewCompletionValidator creates a CompletionValidator.
func NewCompletionValidator(extractor ports.DocumentIntelligence, client ports.LLMClient, opts ...Option) (*CompletionValidator, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	o := newOptions(opts)
	return &CompletionValidator{extractor: extractor, client: client, logger: o.logger}, nil
}

// Name implements ports.Validator.
func (v *CompletionValidator) Name() domain.ProviderName { return domain.ProviderCompletion }

// ValidateRequirement implements ports.Validator.
func (v *CompletionValidator) ValidateRequirement(ctx context.Context, req ports.InferenceRequest) (ports.RawResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return ports.RawResponse{}, fmt.Errorf("requirement %s: empty prompt", req.Requirement.Number)
	}

	opts := map[string]any{
		"temperature": 0.0,
		"max_tokens":  llm.DefaultMaxTokens,
		"json_mode":   true,
	}
	if req.System != "" {
		opts["system"] = req.System
	}

	out := ports.RawResponse{Model: v.client.GetModel()}
	var err error
	if usage, ok := v.client.(usageReporter); ok {
		out.Text, out.TokensIn, out.TokensOut, err = usage.CompleteWithUsage(ctx, req.Prompt, opts)
	} else {
		out.Text, err = v.client.Complete(ctx, req.Prompt, opts)
	}
	if err != nil {
		return ports.RawResponse{}, err
	}

	v.logger.DebugContext(ctx, "completion judgement received",
		"requirement", req.Requirement.Number,
		"model", out.Model,
		"tokens_in", out.TokensIn,
		"tokens_out", out.TokensOut)

	return out, nil
}

// ExtractDocument implements ports.Validator.
func (v *CompletionValidator) ExtractDocument(ctx context.Context, filename string, data []byte) (domain.Extraction, error) {
	return v.extractor.Analyze(ctx, filename, data)
}
