package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAI implements Provider for any API speaking the OpenAI chat
// completions wire format, including the Gemini compatibility endpoint.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewOpenAI creates a provider posting to baseURL + /chat/completions
func NewOpenAI(httpClient *http.Client, baseURL, apiKey string) *OpenAI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAI{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type openaiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

type openaiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a non-streaming request
func (p *OpenAI) Complete(ctx context.Context, request Request) (*Response, error) {
	wire := openaiRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
	}
	if request.Temperature > 0 {
		t := request.Temperature
		wire.Temperature = &t
	}
	if request.System != "" {
		wire.Messages = append(wire.Messages, Message{Role: RoleSystem, Content: request.System})
	}
	wire.Messages = append(wire.Messages, request.Messages...)

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("ai: marshal request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ai: build request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResponse, err := p.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("ai: send request: %w", err)
	}
	defer httpResponse.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResponse.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("ai: read response: %w", err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		providerErr := &ProviderError{StatusCode: httpResponse.StatusCode, Message: strings.TrimSpace(string(data))}
		var wireErr openaiError
		if json.Unmarshal(data, &wireErr) == nil && wireErr.Error.Message != "" {
			providerErr.Type = wireErr.Error.Type
			providerErr.Message = wireErr.Error.Message
		}
		return nil, providerErr
	}

	var wireResponse openaiResponse
	if err := json.Unmarshal(data, &wireResponse); err != nil {
		return nil, fmt.Errorf("ai: decode response: %w", err)
	}
	if len(wireResponse.Choices) == 0 {
		return nil, fmt.Errorf("ai: response has no choices")
	}

	return &Response{
		Text:  wireResponse.Choices[0].Message.Content,
		Model: wireResponse.Model,
		Usage: Usage{
			InputTokens:  wireResponse.Usage.PromptTokens,
			OutputTokens: wireResponse.Usage.CompletionTokens,
		},
	}, nil
}
