// Package ai talks to the language model behind the repair assistant.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no provider endpoint is set
var ErrNotConfigured = errors.New("ai provider not configured")

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Usage reports token accounting
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is a completed answer
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Provider is an LLM backend
type Provider interface {
	Complete(ctx context.Context, request Request) (*Response, error)
}

// ProviderError is returned when the API responds with an error status
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("ai: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("ai: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports an HTTP 429 response
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == 429
}

// Disabled is the provider used when no endpoint is configured
type Disabled struct{}

// Complete always fails with ErrNotConfigured
func (Disabled) Complete(context.Context, Request) (*Response, error) {
	return nil, ErrNotConfigured
}
