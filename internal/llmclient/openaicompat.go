package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/fairyhunter13/gradeengine/internal/config"
	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// OpenAICompatClient implements domain.LLMClient against any HTTP endpoint
// speaking the OpenAI chat-completions wire shape — used both for a
// dedicated OpenAI deployment and for the generic-compatible provider of
// spec.md §4.1. Grounded on original_source/src/llm/opencode.rs.
type OpenAICompatClient struct {
	httpClient *http.Client
	name       string
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenAICompatClient builds a client against baseURL using the
// OpenAI-compatible chat-completions endpoint.
func NewOpenAICompatClient(cfg config.Config, name, baseURL, apiKey, model string) *OpenAICompatClient {
	return &OpenAICompatClient{
		httpClient: newHTTPClient(cfg),
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

// Name implements domain.LLMClient.
func (c *OpenAICompatClient) Name() string { return c.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Chat implements domain.LLMClient.
func (c *OpenAICompatClient) Chat(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	var messages []chatMessage
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	reqBody := chatRequest{Model: c.model, Messages: messages, MaxTokens: maxTokens}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", &domain.LLMError{Kind: domain.KindInvalidResponse, Detail: err.Error(), Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &domain.LLMError{Kind: domain.KindNetwork, Detail: err.Error(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &domain.LLMError{
			Kind:         domain.KindRateLimited,
			RetryAfterMS: parseRetryAfterMS(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &domain.LLMError{Kind: domain.KindAuthenticationFailed, Detail: snippet(body)}
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", &domain.LLMError{Kind: domain.KindModelNotFound, Model: c.model}
	}
	if resp.StatusCode >= 500 {
		return "", &domain.LLMError{Kind: domain.KindUnavailable, Provider: c.name, Detail: snippet(body)}
	}
	if resp.StatusCode >= 400 {
		return "", &domain.LLMError{Kind: domain.KindInvalidResponse, Detail: snippet(body)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &domain.LLMError{Kind: domain.KindInvalidResponse, Detail: "invalid json: " + err.Error(), Cause: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &domain.LLMError{Kind: domain.KindInvalidResponse, Detail: "no choices in response"}
	}
	return parsed.Choices[0].Message.Content, nil
}
