// Package factextract implements C8: the post-turn observer that asks the
// utility model for structured facts about the user, dedupes them against
// existing memories, and persists survivors via C3.
package factextract

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"inkwell/internal/observability"
	"inkwell/internal/persistence"
)

// Completer calls the utility model with a single-shot extraction prompt
// and returns its raw text response.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

// DuplicateChecker reports whether a candidate fact is already covered by
// an existing memory (C2's exists_similar, threshold 0.25).
type DuplicateChecker interface {
	ExistsSimilar(ctx context.Context, userID, content string) (bool, error)
}

// MemoryWriter persists a surviving fact (C3's create, with importance=3).
type MemoryWriter interface {
	Create(ctx context.Context, userID, content string, importance int) (persistence.Memory, error)
}

const extractedFactImportance = 3

var jsonBlockRE = regexp.MustCompile(`(?s)\{.*\}|\[.*\]`)

// Extractor runs the post-turn fact extraction step.
type Extractor struct {
	completer Completer
	dupes     DuplicateChecker
	memories  MemoryWriter
}

func New(completer Completer, dupes DuplicateChecker, memories MemoryWriter) *Extractor {
	return &Extractor{completer: completer, dupes: dupes, memories: memories}
}

// Observe runs extraction over one turn's (userText, assistantText), if
// eligible: neither side mentions the summary marker and the combined
// text is non-trivial.
func (e *Extractor) Observe(ctx context.Context, userID, userText, assistantText string) error {
	if strings.Contains(userText, persistence.SummaryMarker) || strings.Contains(assistantText, persistence.SummaryMarker) {
		return nil
	}
	combined := strings.TrimSpace(userText + " " + assistantText)
	if len(combined) < 5 {
		return nil
	}

	raw, err := e.completer.Complete(ctx, extractionSystemPrompt, combined)
	if err != nil {
		// failed response: logged here, never returned
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("user_id", userID).Msg("fact_extraction_completion_failed")
		return nil
	}

	facts, ok := parseFacts(raw)
	if !ok {
		observability.LoggerWithTrace(ctx).Warn().Str("user_id", userID).Msg("fact_extraction_malformed_json")
		return nil
	}

	for _, fact := range facts {
		if len(fact) < 5 {
			continue
		}
		dup, err := e.dupes.ExistsSimilar(ctx, userID, fact)
		if err != nil || dup {
			continue
		}
		_, _ = e.memories.Create(ctx, userID, fact, extractedFactImportance)
	}
	return nil
}

// parseFacts implements the spec's strict parse: strip markdown fences,
// locate the first balanced JSON object/array via a greedy regex, decode
// as either {"facts":[...]} or a bare list of strings/{subject,content}.
func parseFacts(raw string) ([]string, bool) {
	stripped := stripCodeFences(raw)
	match := jsonBlockRE.FindString(stripped)
	if match == "" {
		return nil, false
	}

	var wrapped struct {
		Facts []json.RawMessage `json:"facts"`
	}
	if err := json.Unmarshal([]byte(match), &wrapped); err == nil && len(wrapped.Facts) > 0 {
		return decodeFactList(wrapped.Facts), true
	}

	var bareList []json.RawMessage
	if err := json.Unmarshal([]byte(match), &bareList); err == nil {
		return decodeFactList(bareList), true
	}

	return nil, false
}

func decodeFactList(items []json.RawMessage) []string {
	var out []string
	for _, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, strings.TrimSpace(s))
			continue
		}
		// The subject field (when present) is never persisted, only content:
		// subject is a hint for the model's own reasoning, not part of the
		// durable fact.
		var structured struct {
			Subject string `json:"subject"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(raw, &structured); err == nil && structured.Content != "" {
			out = append(out, strings.TrimSpace(structured.Content))
		}
	}
	return out
}

var codeFenceRE = regexp.MustCompile("```[a-zA-Z]*\n?|```")

func stripCodeFences(text string) string {
	return codeFenceRE.ReplaceAllString(text, "")
}

const extractionSystemPrompt = `You extract durable facts about the user from a single conversation turn.
Respond with a JSON object: {"facts": [{"subject": "...", "content": "..."}]}.
Only extract facts stated or clearly implied by the turn below; do not invent details.

Example (do not extract from this example, it is illustrative only):
Input: "I just moved to Seattle for a new job."
Output: {"facts": [{"subject": "location", "content": "lives in Seattle"}, {"subject": "job", "content": "recently started a new job"}]}
`
