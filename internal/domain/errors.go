package domain

import (
	"errors"
	"fmt"
)

// HTTP-mappable sentinels (spec.md §7's four error axes).
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	// ErrUnprocessable marks a clone failure: timeout, transport, or
	// repository-not-found (spec.md §7, axis 2).
	ErrUnprocessable = errors.New("unprocessable")
	ErrInternal      = errors.New("internal error")
)

// LLMErrorKind enumerates the distinct LLM error variants of spec.md §4.1.
// These are kinds, not Go error types: a single LLMError struct carries the
// kind plus whichever optional fields that kind defines.
type LLMErrorKind string

const (
	KindAuthenticationFailed LLMErrorKind = "authentication_failed"
	KindRateLimited          LLMErrorKind = "rate_limited"
	KindContextExceeded      LLMErrorKind = "context_exceeded"
	KindContentFiltered      LLMErrorKind = "content_filtered"
	KindModelNotFound        LLMErrorKind = "model_not_found"
	KindNetwork              LLMErrorKind = "network"
	KindInvalidResponse      LLMErrorKind = "invalid_response"
	KindUnavailable          LLMErrorKind = "unavailable"
	KindTokenExpired         LLMErrorKind = "token_expired"
	KindConfiguration        LLMErrorKind = "configuration"
)

// DefaultRateLimitRetryAfterMS is the fallback retry hint when a 429
// response carries no parseable Retry-After value (spec.md §4.1).
const DefaultRateLimitRetryAfterMS = 60000

// LLMError is the tagged-struct classification of an LLM provider failure.
// Only the fields relevant to Kind are populated.
type LLMError struct {
	Kind LLMErrorKind

	// RetryAfterMS is set for KindRateLimited.
	RetryAfterMS int64
	// Used/Limit are set for KindContextExceeded.
	Used, Limit int
	// Reason is set for KindContentFiltered.
	Reason string
	// Model is set for KindModelNotFound.
	Model string
	// Provider is set for KindUnavailable.
	Provider string
	// Detail carries a human-readable body snippet or transport message.
	Detail string
	// Cause is the underlying transport/parse error, if any.
	Cause error
}

// Error implements error.
func (e *LLMError) Error() string {
	switch e.Kind {
	case KindAuthenticationFailed:
		return fmt.Sprintf("authentication failed: %s", e.Detail)
	case KindRateLimited:
		return fmt.Sprintf("rate limit exceeded: retry after %dms", e.RetryAfterMS)
	case KindContextExceeded:
		return fmt.Sprintf("context window exceeded: %d tokens used, %d limit", e.Used, e.Limit)
	case KindContentFiltered:
		return fmt.Sprintf("content filtered: %s", e.Reason)
	case KindModelNotFound:
		return fmt.Sprintf("model not found: %s", e.Model)
	case KindNetwork:
		return fmt.Sprintf("network error: %s", e.Detail)
	case KindInvalidResponse:
		return fmt.Sprintf("invalid response: %s", e.Detail)
	case KindUnavailable:
		return fmt.Sprintf("provider unavailable: %s", e.Provider)
	case KindTokenExpired:
		return "token expired"
	case KindConfiguration:
		return fmt.Sprintf("configuration error: %s", e.Detail)
	default:
		return fmt.Sprintf("llm error: %s", e.Detail)
	}
}

// Unwrap exposes the underlying transport/parse error for errors.Is/As.
func (e *LLMError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the retry wrapper should attempt this error
// again (spec.md §4.1's retry policy).
func (e *LLMError) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimited, KindNetwork, KindUnavailable:
		return true
	default:
		return false
	}
}

// RetryAfter returns the provider-suggested delay before the next attempt,
// or zero if the kind carries no hint.
func (e *LLMError) RetryAfter() int64 {
	if e.Kind == KindRateLimited {
		return e.RetryAfterMS
	}
	return 0
}

// AsLLMError extracts an *LLMError from err via errors.As.
func AsLLMError(err error) (*LLMError, bool) {
	var le *LLMError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
