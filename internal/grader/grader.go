// Package grader implements the stateless criterion-checking collaborator
// of spec.md §4.2: it formats one criterion and its corpus into a verdict
// prompt, invokes an LLM client, and parses the reply into a CriterionResult.
package grader

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// systemPrompt mandates the strict JSON verdict shape. Grounded on
// original_source/src/ai/graders.rs's GRADER_SYSTEM_PROMPT.
const systemPrompt = `You are a code grader evaluating student submissions against acceptance criteria.

## Your Role
Determine if the submitted code satisfies a specific acceptance criterion.

## Evaluation Guidelines
1. Be Fair: Give credit for working implementations, even if imperfect
2. Be Thorough: Check for actual implementation, not just presence of code
3. Be Specific: Cite exact file and line numbers as evidence
4. Consider Intent: Partial implementations may still satisfy criteria

## Scoring Rules
- passed: true - Criterion is clearly satisfied
- passed: false - Criterion is NOT satisfied or insufficient evidence
- confidence: Your certainty (0.0 = guess, 1.0 = certain)

## Response Format
Respond ONLY with valid JSON (no markdown, no explanation):
{
    "passed": true|false,
    "confidence": 0.0-1.0,
    "evidence": "Detailed explanation with code references",
    "code_references": [
        {"file": "path/to/file", "line_start": 10, "line_end": 20, "snippet": "optional"}
    ]
}`

// CriteriaChecker implements domain.Grader against a fixed LLM client,
// selected once at server startup (spec.md §4.1's provider priority order)
// and shared read-only across every concurrent criterion check.
type CriteriaChecker struct {
	client domain.LLMClient
}

// New builds a CriteriaChecker bound to client.
func New(client domain.LLMClient) *CriteriaChecker {
	return &CriteriaChecker{client: client}
}

// verdict mirrors the JSON shape demanded of the LLM.
type verdict struct {
	Passed         bool         `json:"passed"`
	Confidence     float64      `json:"confidence"`
	Evidence       string       `json:"evidence"`
	CodeReferences []rawCodeRef `json:"code_references"`
}

type rawCodeRef struct {
	File      string `json:"file"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Snippet   string `json:"snippet,omitempty"`
}

// Check implements domain.Grader. It never returns an error: an LLM or
// parse failure is absorbed into the result per spec.md §4.2/§4.6.
func (c *CriteriaChecker) Check(ctx domain.Context, repoURL string, task domain.Task, criterion domain.Criterion, corpus []domain.CorpusFile, cfg domain.GradeConfig) domain.CriterionResult {
	if c.client == nil {
		return failedResult(criterion, "Error checking criterion: no LLM client configured")
	}

	block := codeBlock(corpus, cfg.MaxFiles, cfg.MaxCharsPerFile)
	prompt := buildPrompt(task, criterion, block)

	reply, err := c.client.Chat(ctx, systemPrompt, prompt, 0)
	if err != nil {
		return failedResult(criterion, "Error checking criterion: "+err.Error())
	}

	return parseVerdict(reply, criterion)
}

func buildPrompt(task domain.Task, criterion domain.Criterion, codeBlock string) string {
	var sb strings.Builder
	sb.WriteString("## Task\n")
	sb.WriteString(task.Title)
	sb.WriteString("\n")
	sb.WriteString(task.Description)
	sb.WriteString("\n\n## Acceptance Criterion to Check\n")
	sb.WriteString(criterion.Description)
	sb.WriteString("\n\n## Submitted Code\n")
	sb.WriteString(codeBlock)
	sb.WriteString("\n\nEvaluate if this criterion is satisfied. Return JSON only.")
	return sb.String()
}

// codeBlock formats the first maxFiles corpus files, each truncated to
// maxChars characters with an explicit truncation notice (spec.md §4.2.1).
func codeBlock(corpus []domain.CorpusFile, maxFiles, maxChars int) string {
	if maxFiles <= 0 || maxFiles > len(corpus) {
		maxFiles = len(corpus)
	}
	blocks := make([]string, 0, maxFiles)
	for _, f := range corpus[:maxFiles] {
		content := f.Contents
		if maxChars > 0 && len(content) > maxChars {
			remaining := len(content) - maxChars
			content = content[:maxChars] + "...\n[truncated, " + strconv.Itoa(remaining) + " more chars]"
		}
		blocks = append(blocks, "=== "+f.Path+" ===\n"+content)
	}
	return strings.Join(blocks, "\n\n")
}

// extractJSON prefers a fenced ```json block, else the substring from the
// first '{' to the last '}', else the trimmed reply as-is (spec.md §4.2.4).
func extractJSON(reply string) string {
	trimmed := strings.TrimSpace(reply)

	if start := strings.Index(trimmed, "```json"); start != -1 {
		rest := trimmed[start+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
	}

	if start := strings.Index(trimmed, "{"); start != -1 {
		if end := strings.LastIndex(trimmed, "}"); end != -1 && end >= start {
			return trimmed[start : end+1]
		}
	}

	return trimmed
}

func parseVerdict(reply string, criterion domain.Criterion) domain.CriterionResult {
	jsonStr := extractJSON(reply)

	var v verdict
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return failedResult(criterion, fmt.Sprintf("Error checking criterion: JSON parse error: %s", err.Error()))
	}

	confidence := v.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	refs := make([]domain.CodeReference, 0, len(v.CodeReferences))
	for _, r := range v.CodeReferences {
		refs = append(refs, domain.CodeReference{
			File:      r.File,
			LineStart: r.LineStart,
			LineEnd:   r.LineEnd,
			Snippet:   r.Snippet,
		})
	}

	return domain.CriterionResult{
		Criterion:      criterion.Description,
		Passed:         v.Passed,
		Confidence:     confidence,
		Evidence:       v.Evidence,
		CodeReferences: refs,
		Weight:         criterion.Weight,
	}
}

func failedResult(criterion domain.Criterion, evidence string) domain.CriterionResult {
	return domain.CriterionResult{
		Criterion:  criterion.Description,
		Passed:     false,
		Confidence: 0,
		Evidence:   evidence,
		Weight:     criterion.Weight,
	}
}
