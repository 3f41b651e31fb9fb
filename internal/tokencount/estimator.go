// Package tokencount implements C1: a single, uniform token-count estimate
// used by every other component to size prompts against a model's context
// window. It prefers the precise cl100k_base BPE encoding when that table
// can be loaded (the same encoding for every model) and otherwise falls
// back to a conservative character-class heuristic.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator exposes Estimate(text) -> int. All other components treat this
// as the single source of truth for token sizing.
type Estimator struct {
	mu       sync.RWMutex
	encoding *tiktoken.Tiktoken
	cache    *Cache
}

// New returns an Estimator. It attempts to load the cl100k_base BPE table
// (shared by GPT-4-family and DeepSeek-family models) eagerly; if that
// table cannot be loaded (e.g. no network access for the bundled ranks),
// Estimate falls back to the heuristic for every call.
func New() *Estimator {
	e := &Estimator{cache: NewCache(CacheConfig{})}
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		e.encoding = enc
	}
	return e
}

// Estimate returns the estimated token count for text.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if n, ok := e.cache.Get(text); ok {
		return n
	}
	n := e.estimateUncached(text)
	e.cache.Set(text, n)
	return n
}

func (e *Estimator) estimateUncached(text string) int {
	e.mu.RLock()
	enc := e.encoding
	e.mu.RUnlock()
	if enc != nil {
		if n := e.tryPrecise(enc, text); n >= 0 {
			return n
		}
	}
	return Heuristic(text)
}

func (e *Estimator) tryPrecise(enc *tiktoken.Tiktoken, text string) (n int) {
	defer func() {
		if recover() != nil {
			n = -1
		}
	}()
	return len(enc.Encode(text, nil, nil))
}

// Heuristic is the conservative fallback estimator: CJK/full-width
// characters count as 2 tokens each, everything else counts as 0.5 tokens,
// and the total is floored then incremented by one. This deliberately
// over-estimates non-ASCII text to keep downstream budgets safe.
func Heuristic(text string) int {
	if text == "" {
		return 0
	}
	var sum float64
	for _, r := range text {
		if isCJK(r) {
			sum += 2.0
		} else {
			sum += 0.5
		}
	}
	return int(sum) + 1
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified Ideographs
		return true
	case r >= 0x3040 && r <= 0x30FF: // Hiragana/Katakana
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // Hangul syllables
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // full-width forms
		return true
	case r >= 0x3400 && r <= 0x4DBF: // CJK extension A
		return true
	default:
		return false
	}
}
