package llmclient

import "strings"

// sanitizeSystemPrompt rewrites OAuth-path system prompts to carry the
// Claude Code branding an Anthropic OAuth token expects, so a system prompt
// authored for a different coding assistant still identifies correctly.
// Ported from original_source/src/llm/anthropic.rs::sanitize_for_oauth
// (spec.md Design Notes' supplemented OAuth-branding feature). Applied only
// to the system prompt, never to user messages.
func sanitizeSystemPrompt(text string) string {
	text = strings.ReplaceAll(text, "OpenCode", "Claude Code")
	text = strings.ReplaceAll(text, "opencode", "Claude")
	return text
}
