// Package llm defines the language-model collaborator contract consumed by
// the workflow orchestrator, plus an OpenAI-compatible HTTP implementation.
// The orchestrator only depends on the Client interface; the concrete wiring
// happens in the router/main.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Message is one role-tagged turn of the conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the language-model call contract: the full ordered message log
// in, the assistant's text out. Implementations must honor ctx cancellation.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// OpenAICompatClient calls any OpenAI-compatible /v1/chat/completions
// endpoint (OpenRouter, vLLM, LiteLLM, self-hosted models, etc.).
type OpenAICompatClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatClient builds a chat-completions client. baseURL should
// include the /v1 prefix; apiKey may be empty for local models.
func NewOpenAICompatClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAICompatClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAICompatClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete implements Client using the chat completions API.
func (c *OpenAICompatClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.model == "" {
		return "", fmt.Errorf("llm: model required")
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("llm: empty message log")
	}

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return "", fmt.Errorf("llm api error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("llm api error: %s", resp.Status)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("llm decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("llm: empty response")
	}
	return text, nil
}

// OpenAI-compatible request/response types.

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
