// Package llm provides a unified chat-completion client over OpenAI,
// Azure OpenAI, Anthropic and Google models, with retries, circuit
// breaking, metrics and tracing layered on as middleware.
//
// The completion-pair validator uses this package to judge requirements
// against text produced by document intelligence.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	})
//	response, err := client.Complete(ctx, prompt, map[string]any{"temperature": 0.0})
//
// With middleware:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-sonnet-20241022",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("verity"),
//	        llm.MetricsMiddleware("anthropic", metricsCollector),
//	        llm.RetryMiddleware(2, time.Second, 10*time.Second),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	    },
//	})
package llm

import (
	"context"
	"fmt"
	"time"
)

// CoreLLM is one provider's raw completion call. Middleware wraps it.
type CoreLLM interface {
	// DoRequest returns the response text and the input and output token
	// counts. opts uses the keys understood by ParseRequestOptions.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)
	GetModel() string
	SetModel(model string)
}

// ClientConfig configures NewClient.
type ClientConfig struct {
	APIKey string
	// Model is the deployment name for Azure OpenAI.
	Model string
	// BaseURL is required for Azure OpenAI and optional elsewhere.
	BaseURL string
	// Timeout bounds the provider HTTP client. Zero keeps the SDK default;
	// run-level deadlines come from the Inference Invoker.
	Timeout time.Duration
	// Middleware is applied outermost first.
	Middleware []Middleware
}

// Middleware decorates a CoreLLM.
type Middleware func(CoreLLM) CoreLLM

// Client implements ports.LLMClient on top of a middleware-wrapped CoreLLM.
type Client struct {
	core     CoreLLM
	provider string
}

// NewClient builds the provider registered under providerType and wraps it
// in config.Middleware.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return newClientFromCore(providerType, core, config.Middleware), nil
}

// newClientFromCore applies middleware in reverse order so the first
// middleware is the outermost.
func newClientFromCore(providerType string, core CoreLLM, middleware []Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return &Client{core: core, provider: providerType}
}

// Complete returns the response text only.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage also returns the input and output token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// GetModel returns the wrapped provider's model.
func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the provider type the client was built for.
func (c *Client) Provider() string { return c.provider }

// ProviderFactory builds a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// providerFactories is populated by each provider file's init.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory makes a provider available to NewClient.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
