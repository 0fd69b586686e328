package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fairyhunter13/gradeengine/internal/domain"
)

func newTestAnthropicClient(t *testing.T, handler http.HandlerFunc, oauth bool) (*AnthropicClient, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	apiKey := "sk-ant-test-key"
	if oauth {
		apiKey = "sk-ant-oat-test-token"
	}
	c := &AnthropicClient{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
		apiKey:     apiKey,
		oauth:      oauth,
		model:      anthropicModel,
	}
	return c, srv.Close
}

func TestAnthropicClient_Chat_Success(t *testing.T) {
	c, closeSrv := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test-key" {
			t.Errorf("expected x-api-key header, got %q", got)
		}
		var body anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if sys, ok := body.System.(string); !ok || sys != "be terse" {
			t.Errorf("expected plain string system prompt, got %#v", body.System)
		}
		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContentBlock{{Type: "text", Text: "pass"}},
		})
	}, false)
	defer closeSrv()

	out, err := c.Chat(context.Background(), "be terse", "evaluate this", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "pass" {
		t.Fatalf("expected %q, got %q", "pass", out)
	}
}

func TestAnthropicClient_Chat_OAuthInjectsIdentityBlocks(t *testing.T) {
	c, closeSrv := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-ant-oat-test-token" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		if got := r.Header.Get("anthropic-beta"); got != anthropicOAuthBeta {
			t.Errorf("expected oauth beta header, got %q", got)
		}
		var body anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		raw, _ := json.Marshal(body.System)
		var blocks []anthropicSystemBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			t.Fatalf("expected system blocks, got %#v: %v", body.System, err)
		}
		if len(blocks) != 2 {
			t.Fatalf("expected 2 system blocks, got %d", len(blocks))
		}
		if blocks[0].Text != claudeCodeIdentity {
			t.Errorf("expected identity block first, got %q", blocks[0].Text)
		}
		if !strings.Contains(blocks[1].Text, "Claude Code") {
			t.Errorf("expected sanitized system prompt, got %q", blocks[1].Text)
		}
		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContentBlock{{Type: "text", Text: "ok"}},
		})
	}, true)
	defer closeSrv()

	_, err := c.Chat(context.Background(), "You are OpenCode.", "evaluate this", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAnthropicClient_Chat_RateLimited(t *testing.T) {
	c, closeSrv := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}, false)
	defer closeSrv()

	_, err := c.Chat(context.Background(), "", "x", 0)
	llmErr, ok := domain.AsLLMError(err)
	if !ok {
		t.Fatalf("expected *domain.LLMError, got %v", err)
	}
	if llmErr.Kind != domain.KindRateLimited {
		t.Fatalf("expected KindRateLimited, got %v", llmErr.Kind)
	}
	if llmErr.RetryAfterMS != 2000 {
		t.Fatalf("expected 2000ms retry-after, got %d", llmErr.RetryAfterMS)
	}
	if !llmErr.IsRetryable() {
		t.Fatal("expected rate-limited error to be retryable")
	}
}

func TestAnthropicClient_Chat_TokenExpiredOnOAuthUnauthorized(t *testing.T) {
	c, closeSrv := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, true)
	defer closeSrv()

	_, err := c.Chat(context.Background(), "", "x", 0)
	llmErr, ok := domain.AsLLMError(err)
	if !ok || llmErr.Kind != domain.KindTokenExpired {
		t.Fatalf("expected KindTokenExpired, got %v", err)
	}
}

func TestAnthropicClient_Chat_AuthenticationFailedOnPlainUnauthorized(t *testing.T) {
	c, closeSrv := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, false)
	defer closeSrv()

	_, err := c.Chat(context.Background(), "", "x", 0)
	llmErr, ok := domain.AsLLMError(err)
	if !ok || llmErr.Kind != domain.KindAuthenticationFailed {
		t.Fatalf("expected KindAuthenticationFailed, got %v", err)
	}
}

func TestAnthropicClient_Chat_UnavailableOn5xx(t *testing.T) {
	c, closeSrv := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, false)
	defer closeSrv()

	_, err := c.Chat(context.Background(), "", "x", 0)
	llmErr, ok := domain.AsLLMError(err)
	if !ok || llmErr.Kind != domain.KindUnavailable {
		t.Fatalf("expected KindUnavailable, got %v", err)
	}
	if !llmErr.IsRetryable() {
		t.Fatal("expected unavailable error to be retryable")
	}
}

func TestAnthropicClient_Chat_NoTextContent(t *testing.T) {
	c, closeSrv := newTestAnthropicClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(anthropicResponse{})
	}, false)
	defer closeSrv()

	_, err := c.Chat(context.Background(), "", "x", 0)
	llmErr, ok := domain.AsLLMError(err)
	if !ok || llmErr.Kind != domain.KindInvalidResponse {
		t.Fatalf("expected KindInvalidResponse, got %v", err)
	}
}

func TestAnthropicClient_Name(t *testing.T) {
	plain := &AnthropicClient{apiKey: "sk-ant-x"}
	if plain.Name() != "anthropic" {
		t.Fatalf("expected anthropic, got %s", plain.Name())
	}
	oauth := &AnthropicClient{apiKey: "sk-ant-oat-x", oauth: true}
	if oauth.Name() != "anthropic-oauth" {
		t.Fatalf("expected anthropic-oauth, got %s", oauth.Name())
	}
}
