package llmclient

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/gradeengine/internal/config"
	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// retryingClient wraps a domain.LLMClient with the retry policy of spec.md
// §4.1: at most MaxRetries attempts on retryable errors, delaying by the
// provider's retry-after hint if present, else exponential backoff bounded
// by MaxDelay. Grounded on original_source/src/llm/retry.rs's
// retry-after-hint-before-backoff algorithm, wired through
// github.com/cenkalti/backoff/v4 the way the teacher wires its AI backoff
// configuration (internal/config.GetAIBackoffConfig).
type retryingClient struct {
	inner domain.LLMClient
	cfg   config.RetryConfig
}

// WithRetry wraps client with the LLM retry policy. Returns client unchanged
// if it is nil.
func WithRetry(client domain.LLMClient, cfg config.RetryConfig) domain.LLMClient {
	if client == nil {
		return nil
	}
	return &retryingClient{inner: client, cfg: cfg}
}

// Name implements domain.LLMClient.
func (r *retryingClient) Name() string { return r.inner.Name() }

// Chat implements domain.LLMClient, retrying retryable errors per the
// configured policy.
func (r *retryingClient) Chat(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	maxRetries := r.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := r.cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := r.cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}

	attempt := 0
	var result string
	var lastErr error

	operation := func() error {
		res, err := r.inner.Chat(ctx, systemPrompt, userPrompt, maxTokens)
		if err == nil {
			result = res
			return nil
		}
		lastErr = err

		llmErr, ok := domain.AsLLMError(err)
		if !ok || !llmErr.IsRetryable() || attempt+1 >= maxRetries {
			return backoff.Permanent(err)
		}
		attempt++
		return err
	}

	bo := &delayOverrideBackoff{
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		maxRetries: maxRetries,
		attempt:    &attempt,
		lastErr:    &lastErr,
	}

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	if err != nil {
		return "", err
	}
	return result, nil
}

// delayOverrideBackoff computes the next delay as the failing error's
// provider-supplied retry-after hint when present, else
// min(baseDelay*2^(attempt-1), maxDelay) — the exact rule of spec.md §4.1.
// It reports backoff.Stop once attempt exceeds maxRetries so backoff.Retry
// terminates even if a caller's operation neglects to return
// backoff.Permanent.
type delayOverrideBackoff struct {
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries int
	attempt    *int
	lastErr    *error
}

func (b *delayOverrideBackoff) NextBackOff() time.Duration {
	if *b.attempt > b.maxRetries {
		return backoff.Stop
	}
	if *b.lastErr != nil {
		if llmErr, ok := domain.AsLLMError(*b.lastErr); ok && llmErr.RetryAfter() > 0 {
			return time.Duration(llmErr.RetryAfter()) * time.Millisecond
		}
	}
	n := *b.attempt
	if n < 1 {
		n = 1
	}
	delay := baseDelayShift(b.baseDelay, n)
	if delay > b.maxDelay {
		delay = b.maxDelay
	}
	return delay
}

func (b *delayOverrideBackoff) Reset() {}

func baseDelayShift(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
