package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// InferenceInvoker paces and bounds calls to the run's Validator.
// One invoker serves one run; it is not safe for concurrent use.
type InferenceInvoker struct {
	validator ports.Validator
	limiter   ports.RateLimiter
	timeout   time.Duration
	logger    *slog.Logger
}

// InvokerOption configures an InferenceInvoker.
type InvokerOption func(*InferenceInvoker)

// WithInvokerLogger sets the logger.
func WithInvokerLogger(logger *slog.Logger) InvokerOption {
	return func(i *InferenceInvoker) {
		i.logger = logger
	}
}

// NewInferenceInvoker creates an invoker. A nil limiter means no pacing and
// a non-positive timeout means no per-call deadline.
func NewInferenceInvoker(validator ports.Validator, limiter ports.RateLimiter, timeout time.Duration, opts ...InvokerOption) *InferenceInvoker {
	if limiter == nil {
		limiter = NoDelay{}
	}
	i := &InferenceInvoker{
		validator: validator,
		limiter:   limiter,
		timeout:   timeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke waits for the limiter, then asks the validator to judge one
// requirement. Every failure, including a timeout, is returned as a
// *domain.ProviderError carrying the provider's message.
func (i *InferenceInvoker) Invoke(ctx context.Context, req ports.InferenceRequest) (ports.RawResponse, error) {
	provider := i.validator.Name()
	number := req.Requirement.Number

	if err := i.limiter.Wait(ctx); err != nil {
		return ports.RawResponse{}, &domain.ProviderError{
			Provider:          provider,
			RequirementNumber: number,
			Message:           "call not started: " + err.Error(),
			Err:               err,
		}
	}

	callCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := i.validator.ValidateRequirement(callCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			msg = fmt.Sprintf("call exceeded %s timeout: %s", i.timeout, msg)
		}
		i.logger.DebugContext(ctx, "inference call failed",
			"requirement", number, "provider", provider, "duration", elapsed, "error", err)
		return ports.RawResponse{}, &domain.ProviderError{
			Provider:          provider,
			RequirementNumber: number,
			Message:           msg,
			Err:               err,
		}
	}

	i.logger.DebugContext(ctx, "inference call completed",
		"requirement", number,
		"provider", provider,
		"model", resp.Model,
		"duration", elapsed,
		"tokens_in", resp.TokensIn,
		"tokens_out", resp.TokensOut)

	return resp, nil
}
