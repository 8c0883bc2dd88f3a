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

func anthropicMessageBody(texts ...string) map[string]any {
	content := make([]map[string]any, 0, len(texts))
	for _, text := range texts {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	return map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"model":       AnthropicDefaultModel,
		"content":     content,
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 15},
	}
}

func TestNewAnthropicProvider(t *testing.T) {
	t.Run("default model", func(t *testing.T) {
		provider, err := newAnthropicProvider(ClientConfig{APIKey: "test-key"})
		require.NoError(t, err)
		assert.Equal(t, AnthropicDefaultModel, provider.GetModel())

		provider.SetModel("claude-3-opus-20240229")
		assert.Equal(t, "claude-3-opus-20240229", provider.GetModel())
	})

	t.Run("empty key", func(t *testing.T) {
		provider, err := newAnthropicProvider(ClientConfig{})
		require.ErrorIs(t, err, ErrEmptyAPIKey)
		assert.Nil(t, provider)
	})
}

func TestAnthropicProvider_DoRequest(t *testing.T) {
	// Given a Messages API that checks the system prompt
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		assert.Equal(t, AnthropicDefaultModel, body["model"])
		assert.Equal(t, float64(DefaultMaxTokens), body["max_tokens"])
		assert.Equal(t, 1.0, body["temperature"], "temperature is clamped to 1")

		system := body["system"].([]any)
		require.Len(t, system, 1)
		text := system[0].(map[string]any)["text"].(string)
		assert.Contains(t, text, "You are an assessor.")
		assert.Contains(t, text, anthropicJSONInstruction)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(anthropicMessageBody(`{"validations":`, `[]}`))
	}))
	defer server.Close()

	provider, err := newAnthropicProvider(ClientConfig{APIKey: "test-api-key", BaseURL: server.URL})
	require.NoError(t, err)

	// When a JSON-mode request is sent
	response, tokensIn, tokensOut, err := provider.DoRequest(context.Background(), "Judge 1.1", map[string]any{
		"system":      "You are an assessor.",
		"json_mode":   true,
		"temperature": 1.5,
	})

	// Then text blocks are concatenated
	require.NoError(t, err)
	assert.Equal(t, `{"validations":[]}`, response)
	assert.Equal(t, 10, tokensIn)
	assert.Equal(t, 15, tokensOut)
}

func TestAnthropicProvider_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "authentication_error", "message": "invalid x-api-key"},
		})
	}))
	defer server.Close()

	provider, err := newAnthropicProvider(ClientConfig{APIKey: "bad", BaseURL: server.URL})
	require.NoError(t, err)

	_, _, _, err = provider.DoRequest(context.Background(), "prompt", nil)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrorTypeAuthentication, perr.Type)
	assert.Equal(t, "anthropic", perr.Provider)
	assert.False(t, perr.IsRetryable())
}

func TestAnthropicProvider_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(anthropicMessageBody())
	}))
	defer server.Close()

	provider, err := newAnthropicProvider(ClientConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, _, _, err = provider.DoRequest(context.Background(), "prompt", nil)

	require.ErrorIs(t, err, ErrEmptyResponse)
}
