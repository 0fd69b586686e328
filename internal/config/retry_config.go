// Package config defines retry configuration for the LLM client.
package config

import "time"

// RetryConfig holds the LLM retry policy of spec.md §4.1: at most MaxRetries
// attempts, delay between attempt k and k+1 is the provider's retry-after
// hint if present, else min(BaseDelay*2^(k-1), MaxDelay).
type RetryConfig struct {
	MaxRetries          int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	RateLimitRetryAfter time.Duration
}

// GetRetryConfig returns the LLM retry configuration.
func (c Config) GetRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:          c.RetryMaxRetries,
		BaseDelay:           c.RetryBaseDelay,
		MaxDelay:            c.RetryMaxDelay,
		RateLimitRetryAfter: c.RateLimitRetryAfter,
	}
}
