package lorebook

import (
	"regexp"
	"sort"
	"strings"
)

// Estimator supplies token counts. Satisfied by tokencount.Estimator; kept
// as an interface so lorebook has no dependency on that package's
// internals.
type Estimator interface {
	Estimate(text string) int
}

const (
	maxRecursionDepth  = 5
	maxDynamicTextLen  = 5000
	defaultTokenBudget = 2048
	defaultMaxEntries  = 30
)

// ActivateInput bundles the scan context for one activation pass.
type ActivateInput struct {
	Entries     []Entry
	History     []string // recent message contents, chronological
	UserMessage string
	ForcedIDs   map[string]struct{}
	TokenBudget int // 0 uses defaultTokenBudget
	MaxEntries  int // 0 uses defaultMaxEntries
}

// Blocks is the four-way partition of admitted entry content, one string
// per insertion position, ready to splice into the assembled prompt.
type Blocks struct {
	BeforeChar string
	AfterChar  string
	BeforeUser string
	AfterUser  string
}

type candidate struct {
	entry    Entry
	keywords []string
	regexes  []*regexp.Regexp // non-nil only when entry.UseRegex
}

// Activate runs the six-step recursive activation algorithm and returns
// both the admitted entries (sorted by (-priority, order) then trimmed to
// budget) and their position-partitioned text blocks. est sizes entry
// content against the token budget; pass nil to fall back to a crude
// length-based approximation (tests only — real callers wire in
// tokencount.Estimator).
func Activate(in ActivateInput, est Estimator) (Blocks, []Entry) {
	budget := in.TokenBudget
	if budget <= 0 {
		budget = defaultTokenBudget
	}
	maxEntries := in.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}

	baseScanText := buildBaseScanText(in.History, in.UserMessage)

	pool := make([]candidate, 0, len(in.Entries))
	for _, e := range in.Entries {
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		pool = append(pool, buildCandidate(e))
	}

	triggered := make(map[string]struct{}, len(pool))
	var activated []Entry
	var dynamicScanText strings.Builder

	appendDynamic := func(content string) {
		if dynamicScanText.Len() > 0 {
			dynamicScanText.WriteByte('\n')
		}
		dynamicScanText.WriteString(content)
		if dynamicScanText.Len() > maxDynamicTextLen {
			s := dynamicScanText.String()
			dynamicScanText.Reset()
			dynamicScanText.WriteString(s[len(s)-maxDynamicTextLen:])
		}
	}

	// Step 4: constant and forced entries activate unconditionally.
	for _, c := range pool {
		_, forced := in.ForcedIDs[c.entry.ID]
		if !c.entry.Constant && !forced {
			continue
		}
		if _, done := triggered[c.entry.ID]; done {
			continue
		}
		triggered[c.entry.ID] = struct{}{}
		activated = append(activated, c.entry)
		appendDynamic(c.entry.Content)
	}

	// Step 5: recursive keyword/regex scan rounds.
	for round := 0; round < maxRecursionDepth; round++ {
		var newlyTriggered []candidate
		scanText := baseScanText + dynamicScanText.String()

		for _, c := range pool {
			if _, done := triggered[c.entry.ID]; done {
				continue
			}
			if matches(c, scanText) {
				newlyTriggered = append(newlyTriggered, c)
			}
		}

		if len(newlyTriggered) == 0 {
			break // step 6: no new activations this round, stop early
		}

		for _, c := range newlyTriggered {
			triggered[c.entry.ID] = struct{}{}
			activated = append(activated, c.entry)
		}
		for _, c := range newlyTriggered {
			appendDynamic(c.entry.Content)
		}
	}

	sort.SliceStable(activated, func(i, j int) bool {
		if activated[i].Priority != activated[j].Priority {
			return activated[i].Priority > activated[j].Priority
		}
		return activated[i].Order < activated[j].Order
	})

	admitted := admitByBudget(activated, budget, maxEntries, est)
	return buildBlocks(admitted), admitted
}

func admitByBudget(sorted []Entry, budget, maxEntries int, est Estimator) []Entry {
	var out []Entry
	used := 0
	for _, e := range sorted {
		if len(out) >= maxEntries {
			break
		}
		cost := estimateTokens(est, e.Content)
		if used+cost > budget {
			continue // preserve lower-priority entries behind an oversized one
		}
		out = append(out, e)
		used += cost
	}
	return out
}

func estimateTokens(est Estimator, text string) int {
	if est != nil {
		return est.Estimate(text)
	}
	return heuristicEstimate(text)
}

// heuristicEstimate is a minimal ASCII/CJK-blind approximation used only
// when Activate is given a nil Estimator; real callers pass a
// tokencount.Estimator.
func heuristicEstimate(text string) int {
	return len(text)/3 + 1
}

func buildBaseScanText(history []string, userMessage string) string {
	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	return strings.Join(recent, "\n") + "\n" + userMessage
}

func buildCandidate(e Entry) candidate {
	keywords := uniqueKeywords(e)
	c := candidate{entry: e, keywords: keywords}
	if e.UseRegex {
		for _, kw := range keywords {
			pattern := kw
			if e.MatchWholeWord {
				pattern = `\b` + pattern + `\b`
			}
			if !e.CaseSensitive {
				pattern = `(?i)` + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue // invalid regexes are silently skipped
			}
			c.regexes = append(c.regexes, re)
		}
	}
	return c
}

func uniqueKeywords(e Entry) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	add(e.Key)
	for _, k := range e.Keywords {
		add(k)
	}
	return out
}

func matches(c candidate, text string) bool {
	if len(c.keywords) == 0 {
		return false
	}
	if c.entry.UseRegex {
		for _, re := range c.regexes {
			if re.MatchString(text) {
				return true
			}
		}
		return false
	}

	haystack := text
	if !c.entry.CaseSensitive {
		haystack = strings.ToLower(haystack)
	}
	for _, kw := range c.keywords {
		target := kw
		if !c.entry.CaseSensitive {
			target = strings.ToLower(target)
		}
		if c.entry.MatchWholeWord {
			pattern := `\b` + regexp.QuoteMeta(target) + `\b`
			if re, err := regexp.Compile(pattern); err == nil && re.MatchString(haystack) {
				return true
			}
			continue
		}
		if strings.Contains(haystack, target) {
			return true
		}
	}
	return false
}

func buildBlocks(entries []Entry) Blocks {
	var beforeChar, afterChar, beforeUser, afterUser []string
	for _, e := range entries {
		content := strings.TrimSpace(e.Content)
		if content == "" {
			continue
		}
		switch e.Position {
		case PositionAfterChar:
			afterChar = append(afterChar, content)
		case PositionBeforeUser:
			beforeUser = append(beforeUser, content)
		case PositionAfterUser:
			afterUser = append(afterUser, content)
		default:
			beforeChar = append(beforeChar, content)
		}
	}
	return Blocks{
		BeforeChar: strings.Join(beforeChar, "\n\n"),
		AfterChar:  strings.Join(afterChar, "\n\n"),
		BeforeUser: strings.Join(beforeUser, "\n\n"),
		AfterUser:  strings.Join(afterUser, "\n\n"),
	}
}
