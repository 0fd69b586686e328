package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fairyhunter13/gradeengine/internal/config"
	"github.com/fairyhunter13/gradeengine/internal/domain"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion    = "2023-06-01"
	anthropicOAuthBeta  = "oauth-2025-04-20,interleaved-thinking-2025-05-14"
	anthropicOAuthAgent = "claude-cli/2.1.2 (external, cli)"
	anthropicModel      = "claude-sonnet-4-20250514"

	// claudeCodeIdentity is injected as the first system block for OAuth
	// tokens, matching the identity Anthropic's OAuth surface expects
	// (original_source/src/llm/anthropic.rs).
	claudeCodeIdentity = "You are Claude Code, Anthropic's official CLI for Claude."

	// oauthTokenPrefix marks an ANTHROPIC_API_KEY value as an OAuth access
	// token rather than a plain API key (spec.md §6).
	oauthTokenPrefix = "sk-ant-oat"
)

// AnthropicClient implements domain.LLMClient against the Anthropic Messages
// API, supporting both a plain API key and an OAuth access token. Grounded on
// original_source/src/llm/anthropic.rs.
type AnthropicClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	oauth      bool
	model      string
}

// NewAnthropicClient builds an AnthropicClient. cfg.AnthropicAPIKey selects
// the OAuth code path when it begins with "sk-ant-oat".
func NewAnthropicClient(cfg config.Config) *AnthropicClient {
	return &AnthropicClient{
		httpClient: newHTTPClient(cfg),
		baseURL:    anthropicAPIURL,
		apiKey:     cfg.AnthropicAPIKey,
		oauth:      strings.HasPrefix(cfg.AnthropicAPIKey, oauthTokenPrefix),
		model:      anthropicModel,
	}
}

// Name implements domain.LLMClient.
func (c *AnthropicClient) Name() string {
	if c.oauth {
		return "anthropic-oauth"
	}
	return "anthropic"
}

type anthropicSystemBlock struct {
	Type         string                `json:"type"`
	Text         string                `json:"text"`
	CacheControl anthropicCacheControl `json:"cache_control"`
}

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	System    any                `json:"system,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
}

// Chat implements domain.LLMClient.
func (c *AnthropicClient) Chat(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var system any
	if c.oauth {
		blocks := []anthropicSystemBlock{{
			Type:         "text",
			Text:         claudeCodeIdentity,
			CacheControl: anthropicCacheControl{Type: "ephemeral"},
		}}
		if systemPrompt != "" {
			blocks = append(blocks, anthropicSystemBlock{
				Type:         "text",
				Text:         sanitizeSystemPrompt(systemPrompt),
				CacheControl: anthropicCacheControl{Type: "ephemeral"},
			})
		}
		system = blocks
	} else if systemPrompt != "" {
		system = systemPrompt
	}

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: userPrompt}},
		System:    system,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", &domain.LLMError{Kind: domain.KindInvalidResponse, Detail: err.Error(), Cause: err}
	}

	endpoint := c.baseURL
	if c.oauth {
		endpoint += "?beta=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &domain.LLMError{Kind: domain.KindNetwork, Detail: err.Error(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)

	if c.oauth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("anthropic-beta", anthropicOAuthBeta)
		req.Header.Set("anthropic-product", "claude-code")
		req.Header.Set("user-agent", anthropicOAuthAgent)
	} else {
		req.Header.Set("x-api-key", c.apiKey)
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
	if resp.StatusCode == http.StatusUnauthorized {
		if c.oauth {
			return "", &domain.LLMError{Kind: domain.KindTokenExpired}
		}
		return "", &domain.LLMError{Kind: domain.KindAuthenticationFailed, Detail: snippet(body)}
	}
	if resp.StatusCode == http.StatusForbidden {
		return "", &domain.LLMError{Kind: domain.KindAuthenticationFailed, Detail: snippet(body)}
	}
	if resp.StatusCode >= 500 {
		return "", &domain.LLMError{Kind: domain.KindUnavailable, Provider: c.Name(), Detail: snippet(body)}
	}
	if resp.StatusCode >= 400 {
		return "", &domain.LLMError{Kind: domain.KindInvalidResponse, Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(body))}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &domain.LLMError{Kind: domain.KindInvalidResponse, Detail: "invalid json: " + err.Error(), Cause: err}
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &domain.LLMError{Kind: domain.KindInvalidResponse, Detail: "no text content in response"}
	}
	return sb.String(), nil
}

func snippet(body []byte) string {
	const max = 500
	s := string(body)
	if len(s) > max {
		return s[:max]
	}
	return s
}

func parseRetryAfterMS(headerVal string) int64 {
	if headerVal == "" {
		return domain.DefaultRateLimitRetryAfterMS
	}
	if secs, err := strconv.Atoi(headerVal); err == nil && secs >= 0 {
		return int64(secs) * 1000
	}
	return domain.DefaultRateLimitRetryAfterMS
}

func classifyTransportError(err error) error {
	return &domain.LLMError{Kind: domain.KindNetwork, Detail: err.Error(), Cause: err}
}
