package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when the configuration names no model.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements the CoreLLM interface for the Gemini API.
type googleProvider struct {
	BaseProvider
	client          *genai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

// newGoogleProvider creates a Gemini provider authenticated by API key.
// Vertex AI access goes through the grounded validator instead.
func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          client,
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest sends a generateContent request and returns the response text.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, options.Model, contents, BuildGenerationConfig(options))
	if err != nil {
		return "", 0, 0, ClassifyGoogleError(p.errorClassifier, err)
	}

	content := resp.Text()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	var promptTokens, candidateTokens int
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		candidateTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return content,
		p.tokenCounter.GetTokenCount(promptTokens, prompt),
		p.tokenCounter.GetTokenCount(candidateTokens, content),
		nil
}

// BuildGenerationConfig maps standardized request options onto a Gemini
// generation config. Gemini takes the system prompt as SystemInstruction.
func BuildGenerationConfig(options RequestOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if options.System != "" {
		config.SystemInstruction = genai.NewContentFromText(options.System, genai.RoleUser)
	}

	if options.Temperature != nil {
		temp := ClampFloat64(*options.Temperature, MinTemperature, MaxTemperature)
		config.Temperature = genai.Ptr(float32(temp))
	}

	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(options.MaxTokens, math.MaxInt32))
	}

	if options.TopP != nil {
		config.TopP = genai.Ptr(float32(ClampFloat64(*options.TopP, MinTopP, MaxTopP)))
	}

	if options.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	return config
}

// ClassifyGoogleError converts errors from the genai SDK or Google API
// transports into ProviderError values.
func ClassifyGoogleError(classifier *ErrorClassifier, err error) *ProviderError {
	if isContextError(err) {
		return classifier.ClassifyContextError(err)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		if isSafetyBlock(genaiErr.Message, genaiErr.Status) {
			return NewProviderError(classifier.Provider, ErrorTypeContentPolicy, genaiErr.Code,
				"request blocked by safety filters", err)
		}
		perr := classifier.ClassifyHTTPError(genaiErr.Code, genaiErr.Message, err)
		if genaiErr.Status == "RESOURCE_EXHAUSTED" {
			perr.Type = ErrorTypeRateLimit
		}
		return perr
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		for _, item := range apiErr.Errors {
			if item.Reason == "SAFETY" || item.Reason == "BLOCKED" {
				return NewProviderError(classifier.Provider, ErrorTypeContentPolicy, apiErr.Code,
					"request blocked by safety filters", err)
			}
		}
		return classifier.ClassifyHTTPError(apiErr.Code, message, err)
	}

	return NewProviderError(classifier.Provider, ErrorTypeUnknown, 0, "request failed", err)
}

func isSafetyBlock(message, status string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "safety") ||
		strings.Contains(lower, "blocked") ||
		status == "SAFETY"
}
