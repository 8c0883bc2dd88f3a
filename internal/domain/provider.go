package domain

import "time"

// ProviderName selects the inference capability for a run.
type ProviderName string

const (
	// ProviderGrounded is a document-grounded generative model that answers
	// against a pre-indexed document store and returns grounding citations.
	ProviderGrounded ProviderName = "grounded"
	// ProviderCompletion pairs document intelligence extraction with a
	// general chat-completion model.
	ProviderCompletion ProviderName = "completion"
)

// Valid reports whether the provider name is supported.
func (p ProviderName) Valid() bool {
	return p == ProviderGrounded || p == ProviderCompletion
}

// OrchestrationMode selects who sequences the pipeline.
type OrchestrationMode string

const (
	ModeDirect    OrchestrationMode = "direct"
	ModeDelegated OrchestrationMode = "delegated"
)

// Valid reports whether the mode is supported.
func (m OrchestrationMode) Valid() bool {
	return m == ModeDirect || m == ModeDelegated
}

// ProviderConfig is resolved once at run start and passed by value through
// every component. It is never reloaded mid-run.
type ProviderConfig struct {
	Provider ProviderName
	Mode     OrchestrationMode

	Grounded   GroundedSettings
	Completion CompletionSettings
	Delegation DelegationSettings
	Selector   SelectorSettings

	// RateDelay is the fixed pause before every inference call except the
	// first in a run.
	RateDelay time.Duration

	// CallTimeout bounds a single inference call.
	CallTimeout time.Duration
}

// GroundedSettings configures the document-grounded provider.
type GroundedSettings struct {
	Project   string
	Location  string
	Model     string
	Datastore string
}

// CompletionSettings configures the extraction + chat-completion pair.
type CompletionSettings struct {
	// LLMProvider is the chat backend: openai, azure_openai, anthropic or google.
	LLMProvider string
	Model       string
	BaseURL     string
	APIKey      string

	DocIntelEndpoint string
	DocIntelKey      string
	DocIntelModel    string
}

// DelegationSettings configures the hand-off target in delegated mode.
type DelegationSettings struct {
	// Kind is webhook or kafka.
	Kind    string
	URL     string
	Brokers []string
	Topic   string
}

// SelectorSettings bounds the content passed to a single inference call.
type SelectorSettings struct {
	MaxFragments  int
	FallbackChars int
	MaxKeywords   int
	MinKeywordLen int
}

// DefaultSelectorSettings returns the stock selector bounds.
func DefaultSelectorSettings() SelectorSettings {
	return SelectorSettings{
		MaxFragments:  30,
		FallbackChars: 30000,
		MaxKeywords:   3,
		MinKeywordLen: 6,
	}
}
