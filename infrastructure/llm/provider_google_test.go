package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

func TestNewGoogleProvider(t *testing.T) {
	t.Run("empty key", func(t *testing.T) {
		_, err := newGoogleProvider(ClientConfig{})
		require.ErrorIs(t, err, ErrEmptyAPIKey)
	})

	t.Run("default model", func(t *testing.T) {
		provider, err := newGoogleProvider(ClientConfig{APIKey: "key"})
		require.NoError(t, err)
		assert.Equal(t, GoogleDefaultModel, provider.GetModel())
	})
}

func TestBuildGenerationConfig(t *testing.T) {
	temp := 3.0
	topP := 0.9

	config := BuildGenerationConfig(RequestOptions{
		System:      "You are an assessor.",
		Temperature: &temp,
		TopP:        &topP,
		MaxTokens:   1024,
		JSONMode:    true,
	})

	require.NotNil(t, config.SystemInstruction)
	assert.Equal(t, "You are an assessor.", config.SystemInstruction.Parts[0].Text)
	require.NotNil(t, config.Temperature)
	assert.InDelta(t, MaxTemperature, *config.Temperature, 0.0001)
	require.NotNil(t, config.TopP)
	assert.InDelta(t, 0.9, *config.TopP, 0.0001)
	assert.Equal(t, int32(1024), config.MaxOutputTokens)
	assert.Equal(t, "application/json", config.ResponseMIMEType)
}

func TestBuildGenerationConfig_Empty(t *testing.T) {
	config := BuildGenerationConfig(RequestOptions{})

	assert.Nil(t, config.SystemInstruction)
	assert.Nil(t, config.Temperature)
	assert.Empty(t, config.ResponseMIMEType)
}

func TestClassifyGoogleError(t *testing.T) {
	classifier := &ErrorClassifier{Provider: "google"}

	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantStatus int
	}{
		{
			name:     "deadline",
			err:      fmt.Errorf("generate: %w", context.DeadlineExceeded),
			wantType: ErrorTypeTimeout,
		},
		{
			name:       "genai quota",
			err:        genai.APIError{Code: 429, Message: "Quota exceeded", Status: "RESOURCE_EXHAUSTED"},
			wantType:   ErrorTypeRateLimit,
			wantStatus: 429,
		},
		{
			name:       "genai wrapped server error",
			err:        fmt.Errorf("call: %w", genai.APIError{Code: 503, Message: "unavailable", Status: "UNAVAILABLE"}),
			wantType:   ErrorTypeServerError,
			wantStatus: 503,
		},
		{
			name:       "genai safety block",
			err:        genai.APIError{Code: 400, Message: "Response was blocked due to SAFETY"},
			wantType:   ErrorTypeContentPolicy,
			wantStatus: 400,
		},
		{
			name:       "googleapi forbidden",
			err:        &googleapi.Error{Code: http.StatusForbidden, Message: "permission denied"},
			wantType:   ErrorTypeAuthentication,
			wantStatus: 403,
		},
		{
			name: "googleapi safety reason",
			err: &googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{
				{Reason: "SAFETY", Message: "blocked"},
			}},
			wantType:   ErrorTypeContentPolicy,
			wantStatus: 400,
		},
		{
			name:     "unknown",
			err:      errors.New("dial tcp: refused"),
			wantType: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := ClassifyGoogleError(classifier, tt.err)

			assert.Equal(t, tt.wantType, perr.Type)
			assert.Equal(t, tt.wantStatus, perr.StatusCode)
			assert.Equal(t, "google", perr.Provider)

			// genai.APIError holds a slice, so errors.Is cannot compare it.
			var want genai.APIError
			if errors.As(tt.err, &want) {
				var got genai.APIError
				require.ErrorAs(t, perr, &got)
				assert.Equal(t, want.Code, got.Code)
				assert.Equal(t, want.Message, got.Message)
				return
			}
			assert.ErrorIs(t, perr, tt.err)
		})
	}
}
