package llmclient

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	_ "github.com/pkoukk/tiktoken-go-loader" // offline BPE ranks, avoids a network fetch per process start
)

// tokenEncoding is the BPE encoding used for estimating prompt sizes. cl100k
// is the closest available ranking for modern chat-completion models; since
// this is an estimate feeding ContextExceeded{used,limit}, not a billing
// figure, a single shared encoding across providers is an acceptable
// approximation.
const tokenEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	return enc, encErr
}

// EstimateTokens returns a best-effort token count for text. Returns an
// approximation (len(text)/4) if the tokenizer itself cannot be loaded,
// since this count only ever feeds an advisory ContextExceeded check, never
// billing.
func EstimateTokens(text string) int {
	e, err := encoding()
	if err != nil || e == nil {
		return len(text) / 4
	}
	return len(e.Encode(text, nil, nil))
}

// CheckContextWindow reports the estimated combined token count of a
// system/user prompt pair and whether it exceeds limit, for callers that
// want to pre-empt a request with a KindContextExceeded error rather than
// let the provider reject it.
func CheckContextWindow(systemPrompt, userPrompt string, limit int) (used int, exceeded bool) {
	used = EstimateTokens(systemPrompt) + EstimateTokens(userPrompt)
	return used, limit > 0 && used > limit
}
