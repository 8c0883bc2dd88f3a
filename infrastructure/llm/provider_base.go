package llm

import (
	"sync"
)

// BaseProvider holds the model name shared by every provider. Middleware
// reads it for metric labels while a run may swap it, so access is locked.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel replaces the configured model.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions is the provider-neutral form of the option map a
// validator passes to Complete.
type RequestOptions struct {
	MaxTokens int
	Model     string
	// Temperature is nil when the caller left it to the provider. Judgements
	// pin it to 0 so reruns over the same content agree.
	Temperature *float64
	TopP        *float64
	// System carries the reviewer instructions sent ahead of the prompt.
	System string
	// JSONMode asks for a JSON object response where the provider supports it.
	JSONMode bool
	// Extra holds keys this package does not interpret.
	Extra map[string]any
}

var knownOptions = map[string]bool{
	"max_tokens":  true,
	"model":       true,
	"system":      true,
	"temperature": true,
	"top_p":       true,
	"json_mode":   true,
}

// ParseRequestOptions reads opts into RequestOptions. Out-of-range values
// fall back to defaults; unknown keys are kept in Extra.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: ExtractOptionalInt(opts, "max_tokens", DefaultMaxTokens, IsPositiveInt),
		Model:     ExtractOptionalString(opts, "model", defaultModel, IsNonEmptyString),
		System:    ExtractOptionalString(opts, "system", "", nil),
		Extra:     make(map[string]any),
	}

	if temp := ExtractOptionalFloat64(opts, "temperature", -1, IsValidTemperature); temp != -1 {
		options.Temperature = &temp
	}
	if topP := ExtractOptionalFloat64(opts, "top_p", -1, IsValidTopP); topP != -1 {
		options.TopP = &topP
	}
	options.JSONMode, _ = opts["json_mode"].(bool)

	for k, v := range opts {
		if !knownOptions[k] {
			options.Extra[k] = v
		}
	}
	return options
}

// TokenCounter fills in usage when a response omits it, so token metrics
// for a run are never silently zero.
type TokenCounter struct {
	CharactersPerToken float64
}

// NewTokenCounter uses roughly 4 characters per token, which holds for
// English assessment material.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{CharactersPerToken: 4.0}
}

// EstimateTokens approximates the token count of text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// GetTokenCount prefers the reported count and estimates from text
// otherwise.
func (tc *TokenCounter) GetTokenCount(reported int, text string) int {
	if reported > 0 {
		return reported
	}
	return tc.EstimateTokens(text)
}
