package promptassembler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/lorebook"
	"inkwell/internal/modelregistry"
)

type charEstimator struct{}

func (charEstimator) Estimate(text string) int { return len(text) }

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	reg, err := modelregistry.New("")
	require.NoError(t, err)
	return New(reg, charEstimator{})
}

func TestAssemble_ComposesSystemPromptInOrder(t *testing.T) {
	a := newTestAssembler(t)
	result := a.Assemble(Input{
		RoleBlock:      "ROLE",
		HistorySummary: "SUMMARY",
		Memories:       []string{"likes tea"},
		LoreBlocks:     lorebook.Blocks{BeforeChar: "LORE_BEFORE", AfterChar: "LORE_AFTER"},
		InstructionModules: []string{"MODULE_A"},
		Model:          "gpt-4o",
		UserMessage:    "hello",
	})

	idxRole := strings.Index(result.SystemPrompt, "ROLE")
	idxSummary := strings.Index(result.SystemPrompt, "SUMMARY")
	idxMem := strings.Index(result.SystemPrompt, "likes tea")
	idxLoreBefore := strings.Index(result.SystemPrompt, "LORE_BEFORE")
	idxLoreAfter := strings.Index(result.SystemPrompt, "LORE_AFTER")
	idxModule := strings.Index(result.SystemPrompt, "MODULE_A")

	require.True(t, idxRole < idxSummary)
	require.True(t, idxSummary < idxMem)
	require.True(t, idxMem < idxLoreBefore)
	require.True(t, idxLoreBefore < idxLoreAfter)
	require.True(t, idxLoreAfter < idxModule)
}

func TestAssemble_OmitsEmptyParts(t *testing.T) {
	a := newTestAssembler(t)
	result := a.Assemble(Input{RoleBlock: "ROLE", Model: "gpt-4o", UserMessage: "hi"})
	assert.Equal(t, "ROLE", result.SystemPrompt)
}

func TestAssemble_HistoryTruncationKeepsNewestWithinBudget(t *testing.T) {
	a := newTestAssembler(t)
	history := []HistoryMessage{
		{Role: "user", Content: strings.Repeat("a", 100)},
		{Role: "assistant", Content: strings.Repeat("b", 100)},
		{Role: "user", Content: strings.Repeat("c", 100)},
	}
	result := a.Assemble(Input{
		Model:                  "gpt-4o",
		History:                history,
		UserMessage:            "final",
		RequestedHistoryBudget: 210, // room for roughly 2 messages at 104 chars each
	})

	// messages = truncated history + final user message
	require.GreaterOrEqual(t, len(result.Messages), 2)
	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, "final", last.Content)

	// newest-first admission means the "c" message (most recent) is kept
	var contents []string
	for _, m := range result.Messages {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, strings.Join(contents, "|"), "ccc")
}

func TestAssemble_SmartContextPrependedWhenItFits(t *testing.T) {
	a := newTestAssembler(t)
	result := a.Assemble(Input{
		Model:        "gpt-4o",
		SmartContext: "REFINED",
		UserMessage:  "hi",
	})
	require.NotEmpty(t, result.Messages)
	assert.Equal(t, "REFINED", result.Messages[0].Content)
	assert.Equal(t, "system", result.Messages[0].Role)
}

func TestAssemble_LowBudgetFlaggedWhenRemainingSmall(t *testing.T) {
	a := newTestAssembler(t)
	result := a.Assemble(Input{
		RoleBlock:   strings.Repeat("x", 7800),
		Model:       "custom-8k",
		UserMessage: "hi",
	})
	assert.True(t, result.TokenStats.LowBudget)
}
