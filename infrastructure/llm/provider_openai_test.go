package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatCompletionBody is the minimal chat completion payload the SDK decodes.
func chatCompletionBody(content string, promptTokens, completionTokens int) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1677652288,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

func TestOpenAIProvider_DoRequest(t *testing.T) {
	tests := []struct {
		name         string
		opts         map[string]any
		checkRequest func(t *testing.T, body map[string]any)
	}{
		{
			name: "basic request",
			checkRequest: func(t *testing.T, body map[string]any) {
				messages := body["messages"].([]any)
				assert.Len(t, messages, 1)
				assert.NotContains(t, body, "response_format")
			},
		},
		{
			name: "system prompt and json mode",
			opts: map[string]any{"system": "You are an assessor.", "json_mode": true, "temperature": 0.2},
			checkRequest: func(t *testing.T, body map[string]any) {
				messages := body["messages"].([]any)
				require.Len(t, messages, 2)
				assert.Equal(t, "system", messages[0].(map[string]any)["role"])
				format := body["response_format"].(map[string]any)
				assert.Equal(t, "json_object", format["type"])
				assert.InDelta(t, 0.2, body["temperature"], 0.0001)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				tt.checkRequest(t, body)

				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(chatCompletionBody(`{"validations":[]}`, 12, 7))
			}))
			defer server.Close()

			provider, err := newOpenAIProvider(ClientConfig{APIKey: "test-api-key", Model: "gpt-4o", BaseURL: server.URL + "/v1"})
			require.NoError(t, err)

			response, tokensIn, tokensOut, err := provider.DoRequest(context.Background(), "Judge requirement 1.1", tt.opts)

			require.NoError(t, err)
			assert.Equal(t, `{"validations":[]}`, response)
			assert.Equal(t, 12, tokensIn)
			assert.Equal(t, 7, tokensOut)
		})
	}
}

func TestOpenAIProvider_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantType   ErrorType
		retryable  bool
	}{
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantType: ErrorTypeAuthentication},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, wantType: ErrorTypeRateLimit, retryable: true},
		{name: "bad request", statusCode: http.StatusBadRequest, wantType: ErrorTypeBadRequest},
		{name: "server error", statusCode: http.StatusInternalServerError, wantType: ErrorTypeServerError, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "upstream said no", "type": "invalid_request_error"},
				})
			}))
			defer server.Close()

			provider, err := newOpenAIProvider(ClientConfig{APIKey: "k", Model: "gpt-4o", BaseURL: server.URL + "/v1"})
			require.NoError(t, err)

			_, _, _, err = provider.DoRequest(context.Background(), "prompt", nil)

			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantType, perr.Type)
			assert.Equal(t, tt.statusCode, perr.StatusCode)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		body := chatCompletionBody("", 1, 0)
		body["choices"] = []any{}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	provider, err := newOpenAIProvider(ClientConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	_, _, _, err = provider.DoRequest(context.Background(), "prompt", nil)

	require.ErrorIs(t, err, ErrNoResponseChoice)
}

func TestOpenAIProvider_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	provider, err := newOpenAIProvider(ClientConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err = provider.DoRequest(ctx, "prompt", nil)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorTypeNetwork, perr.Type)
}

func TestAzureOpenAIProvider_DeploymentPath(t *testing.T) {
	// Given an Azure resource endpoint
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt-4o-judge/chat/completions", r.URL.Path)
		assert.Equal(t, AzureAPIVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody("ok", 3, 1))
	}))
	defer server.Close()

	provider, err := newAzureOpenAIProvider(ClientConfig{APIKey: "azure-key", Model: "gpt-4o-judge", BaseURL: server.URL})
	require.NoError(t, err)

	// When a request is sent
	response, _, _, err := provider.DoRequest(context.Background(), "prompt", nil)

	// Then it targets the deployment route
	require.NoError(t, err)
	assert.Equal(t, "ok", response)
}

func TestOpenAIProvider_Configuration(t *testing.T) {
	t.Run("default model", func(t *testing.T) {
		provider, err := newOpenAIProvider(ClientConfig{APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, OpenAIDefaultModel, provider.GetModel())
	})

	t.Run("invalid base url", func(t *testing.T) {
		_, err := newOpenAIProvider(ClientConfig{APIKey: "k", BaseURL: "ftp://example.com"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid BaseURL")
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := newOpenAIProvider(ClientConfig{})
		require.ErrorIs(t, err, ErrEmptyAPIKey)
	})
}
