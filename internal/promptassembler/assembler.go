// Package promptassembler implements C6: composing the final
// (system, messages[]) payload, allocating token budget across role,
// memory, lore, and history sections.
package promptassembler

import (
	"strings"

	"inkwell/internal/lorebook"
	"inkwell/internal/modelregistry"
)

// Estimator sizes text for budget accounting.
type Estimator interface {
	Estimate(text string) int
}

// HistoryMessage is one history entry as seen by the assembler: its role
// (user, assistant, or system for compactor summaries) and content.
type HistoryMessage struct {
	Role    string
	Content string
}

// Input bundles everything the assembler needs for one turn.
type Input struct {
	RoleBlock              string
	HistorySummary         string
	Memories               []string
	LoreBlocks             lorebook.Blocks
	InstructionModules     []string          // already in position order
	History                []HistoryMessage  // excludes archived, chronological
	UserMessage            string
	SmartContext           string // refined-history string, optional
	RequestedHistoryBudget int    // 0 uses all of budget_history
	Model                  string
}

// TokenStats reports how the turn's budget was spent, for observability
// and for callers that want to warn on tight budgets.
type TokenStats struct {
	SafeInput     int
	LoreBudget    int
	SystemTokens  int
	UserTokens    int
	HistoryBudget int
	HistoryUsed   int
	LowBudget     bool // remaining < 500 before history truncation
}

// Result is the assembled payload ready to dispatch to the upstream LLM.
type Result struct {
	SystemPrompt string
	Messages     []HistoryMessage // smart-context (if any) + truncated history + final user message
	LoreBlocks   lorebook.Blocks
	TokenStats   TokenStats
}

const (
	maxSingleMessageChars = 10_000
	perMessageOverhead    = 4
	lowBudgetThreshold    = 500
)

// Assembler composes prompts against a model registry and token estimator.
type Assembler struct {
	registry  *modelregistry.Registry
	estimator Estimator
}

func New(registry *modelregistry.Registry, estimator Estimator) *Assembler {
	return &Assembler{registry: registry, estimator: estimator}
}

// Assemble runs the full C6 composition: budget derivation, system/user
// prompt composition, and history truncation.
func (a *Assembler) Assemble(in Input) Result {
	limits := a.registry.Lookup(in.Model)
	safeInput := maxInt(limits.ContextWindow-limits.MaxOutput-limits.SafetyBuffer, 2000)
	loreBudget := clampInt(int(0.2*float64(limits.ContextWindow)), 500, 3000)
	_ = loreBudget // lore budget governs C4's admission, already applied upstream

	systemPrompt := a.buildSystemPrompt(in)
	userPrompt := a.buildUserPrompt(in)

	systemTokens := a.estimator.Estimate(systemPrompt)
	userTokens := a.estimator.Estimate(userPrompt)

	remaining := safeInput - systemTokens - userTokens
	lowBudget := remaining < lowBudgetThreshold
	if remaining < 0 {
		remaining = 0
	}

	historyBudget := remaining
	if in.RequestedHistoryBudget > 0 && in.RequestedHistoryBudget < remaining {
		historyBudget = in.RequestedHistoryBudget
	}

	var messages []HistoryMessage
	usedBudget := 0

	smartContext := strings.TrimSpace(in.SmartContext)
	if smartContext != "" {
		cost := a.estimator.Estimate(smartContext) + perMessageOverhead
		if cost <= historyBudget {
			messages = append(messages, HistoryMessage{Role: "system", Content: smartContext})
			usedBudget += cost
			historyBudget -= cost
		}
	}

	truncated, historyUsed := a.truncateHistory(in.History, historyBudget)
	messages = append(messages, truncated...)
	messages = append(messages, HistoryMessage{Role: "user", Content: in.UserMessage})

	return Result{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		LoreBlocks:   in.LoreBlocks,
		TokenStats: TokenStats{
			SafeInput:     safeInput,
			LoreBudget:    loreBudget,
			SystemTokens:  systemTokens,
			UserTokens:    userTokens,
			HistoryBudget: historyBudget,
			HistoryUsed:   usedBudget + historyUsed,
			LowBudget:     lowBudget,
		},
	}
}

func (a *Assembler) buildSystemPrompt(in Input) string {
	var parts []string
	addNonEmpty := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}

	addNonEmpty(in.RoleBlock)
	addNonEmpty(in.HistorySummary)
	addNonEmpty(memoriesBlock(in.Memories))
	addNonEmpty(in.LoreBlocks.BeforeChar)
	addNonEmpty(in.LoreBlocks.AfterChar)
	for _, mod := range in.InstructionModules {
		addNonEmpty(mod)
	}

	return strings.Join(parts, "\n\n")
}

func memoriesBlock(memories []string) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Relevant Memories]")
	for _, m := range memories {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(m)
	}
	return b.String()
}

func (a *Assembler) buildUserPrompt(in Input) string {
	var parts []string
	addNonEmpty := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}

	addNonEmpty(labeled("[Scene Notes]", in.LoreBlocks.BeforeUser))
	addNonEmpty(in.UserMessage)
	addNonEmpty(labeled("[Scene Notes]", in.LoreBlocks.AfterUser))
	parts = append(parts, trailingDirective)

	return strings.Join(parts, "\n\n")
}

const trailingDirective = "Continue the roleplay in character, staying consistent with the established persona and scenario."

func labeled(label, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	return label + "\n" + content
}

// truncateHistory walks history newest-first, clipping over-long single
// messages and admitting whichever fit within budget, then restores
// chronological order.
func (a *Assembler) truncateHistory(history []HistoryMessage, budget int) ([]HistoryMessage, int) {
	if budget <= 0 {
		return nil, 0
	}

	used := 0
	var kept []HistoryMessage
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		content := clipTail(msg.Content, maxSingleMessageChars)
		cost := a.estimator.Estimate(content) + perMessageOverhead
		if used+cost > budget {
			break
		}
		used += cost
		kept = append(kept, HistoryMessage{Role: msg.Role, Content: content})
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept, used
}

func clipTail(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[len(runes)-maxChars:])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
