// Package llmclient implements the LLM provider abstraction of spec.md §4.1:
// an API-key provider, an OAuth-token provider, and a generic
// OpenAI-compatible HTTP provider, selected in a fixed priority order.
package llmclient

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/gradeengine/internal/config"
	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// defaultMaxTokens bounds a single verdict completion when the caller does
// not request a specific limit.
const defaultMaxTokens = 1024

// httpClientTimeout returns the timeout of the *http.Client that
// newHTTPClient builds for every provider: config.LLMTimeoutSecs (spec.md §6,
// default 120s).
func httpClientTimeout(cfg config.Config) time.Duration {
	secs := cfg.LLMTimeoutSecs
	if secs <= 0 {
		secs = 120
	}
	return time.Duration(secs) * time.Second
}

// newHTTPClient wraps the default transport with otelhttp so every outbound
// call to an LLM provider gets a span (cloning/corpus-reading stay untraced —
// this is the one outbound network hop per spec.md §4.1 worth tracing).
func newHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{
		Timeout:   httpClientTimeout(cfg),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Select builds the first configured provider in priority order —
// OAuth/Anthropic-style, then OpenAI, then generic-compatible — wrapped with
// the retry policy of spec.md §4.1. Returns nil if none is configured.
func Select(cfg config.Config) domain.LLMClient {
	retryCfg := cfg.GetRetryConfig()

	if cfg.AnthropicAPIKey != "" {
		return WithRetry(NewAnthropicClient(cfg), retryCfg)
	}
	if cfg.OpenAIAPIKey != "" {
		return WithRetry(NewOpenAICompatClient(cfg, "openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel), retryCfg)
	}
	if cfg.GenericLLMBaseURL != "" {
		model := cfg.GenericLLMModel
		if model == "" {
			model = "default"
		}
		return WithRetry(NewOpenAICompatClient(cfg, "generic", cfg.GenericLLMBaseURL, cfg.GenericLLMAPIKey, model), retryCfg)
	}
	return nil
}
