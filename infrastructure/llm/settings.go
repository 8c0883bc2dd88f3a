package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/ahrav/go-verity/internal/domain"
)

// providerDefaults describes how a chat backend is configured when the
// settings leave a field empty.
type providerDefaults struct {
	EnvVar       string
	DefaultModel string
}

// knownProviders lists the backends selectable as the completion LLM.
var knownProviders = map[string]providerDefaults{
	"openai":       {EnvVar: "OPENAI_API_KEY", DefaultModel: OpenAIDefaultModel},
	"azure_openai": {EnvVar: "AZURE_OPENAI_API_KEY", DefaultModel: OpenAIDefaultModel},
	"anthropic":    {EnvVar: "ANTHROPIC_API_KEY", DefaultModel: AnthropicDefaultModel},
	"google":       {EnvVar: "GEMINI_API_KEY", DefaultModel: GoogleDefaultModel},
}

// KnownProvider reports whether name is a selectable completion backend.
func KnownProvider(name string) bool {
	_, ok := knownProviders[name]
	return ok
}

// NewClientFromSettings builds a Client for the completion backend named in
// settings. An empty APIKey is read from the provider's environment
// variable and an empty Model uses the provider default.
func NewClientFromSettings(settings domain.CompletionSettings, timeout time.Duration, middleware ...Middleware) (*Client, error) {
	defaults, ok := knownProviders[settings.LLMProvider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", settings.LLMProvider)
	}

	apiKey := settings.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(defaults.EnvVar)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %w (set %s)", settings.LLMProvider, ErrEmptyAPIKey, defaults.EnvVar)
	}

	model := settings.Model
	if model == "" {
		model = defaults.DefaultModel
	}

	return NewClient(settings.LLMProvider, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    settings.BaseURL,
		Timeout:    timeout,
		Middleware: middleware,
	})
}
