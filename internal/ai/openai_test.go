package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIComplete(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "gemini-2.0-flash",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Înlocuiți conectorul de încărcare."}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 7},
		})
	}))
	defer server.Close()

	provider := NewOpenAI(server.Client(), server.URL+"/v1/", "secret")
	resp, err := provider.Complete(context.Background(), Request{
		Model:       "gemini-2.0-flash",
		System:      "Ești asistentul unui service GSM.",
		Messages:    []Message{{Role: RoleUser, Content: "iPhone 12 nu se încarcă"}},
		MaxTokens:   256,
		Temperature: 0.4,
	})
	require.NoError(t, err)

	assert.Equal(t, "Înlocuiți conectorul de încărcare.", resp.Text)
	assert.Equal(t, int64(12), resp.Usage.InputTokens)
	assert.Equal(t, int64(7), resp.Usage.OutputTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, RoleUser, got.Messages[1].Role)
	assert.Equal(t, 256, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.4, *got.Temperature, 1e-9)
}

func TestOpenAICompleteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "rate_limit_error", "message": "Rate limit exceeded"},
		})
	}))
	defer server.Close()

	provider := NewOpenAI(server.Client(), server.URL, "")
	_, err := provider.Complete(context.Background(), Request{Model: "m"})
	require.Error(t, err)

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, http.StatusTooManyRequests, providerErr.StatusCode)
	assert.Equal(t, "rate_limit_error", providerErr.Type)
	assert.True(t, providerErr.IsRateLimited())
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
