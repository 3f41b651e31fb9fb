package lorebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lenEstimator struct{}

func (lenEstimator) Estimate(text string) int { return len(text) }

func TestActivate_KeywordMatchSimple(t *testing.T) {
	entries := []Entry{
		{ID: "e1", Content: "The dragon sleeps in the mountain.", Keywords: []string{"dragon"}, Position: PositionBeforeChar},
	}
	blocks, admitted := Activate(ActivateInput{
		Entries:     entries,
		UserMessage: "tell me about the dragon",
	}, lenEstimator{})

	require.Len(t, admitted, 1)
	assert.Contains(t, blocks.BeforeChar, "dragon sleeps")
}

func TestActivate_ConstantAlwaysActivates(t *testing.T) {
	entries := []Entry{
		{ID: "e1", Content: "world rule text", Constant: true, Position: PositionAfterChar},
	}
	_, admitted := Activate(ActivateInput{Entries: entries, UserMessage: "irrelevant"}, lenEstimator{})
	require.Len(t, admitted, 1)
}

func TestActivate_ForcedActivationByID(t *testing.T) {
	entries := []Entry{
		{ID: "e1", Content: "forced lore content", Keywords: []string{"nomatch"}},
	}
	_, admitted := Activate(ActivateInput{
		Entries:     entries,
		UserMessage: "hello",
		ForcedIDs:   map[string]struct{}{"e1": {}},
	}, lenEstimator{})
	require.Len(t, admitted, 1)
}

func TestActivate_RecursiveChaining(t *testing.T) {
	// e1 matches the user message directly; e2 only matches once e1's
	// content (mentioning "castle") is in the dynamic scan text.
	entries := []Entry{
		{ID: "e1", Content: "The castle stands tall.", Keywords: []string{"kingdom"}, Priority: 1},
		{ID: "e2", Content: "Castles have towers.", Keywords: []string{"castle"}, Priority: 2},
	}
	_, admitted := Activate(ActivateInput{
		Entries:     entries,
		UserMessage: "tell me about the kingdom",
	}, lenEstimator{})
	require.Len(t, admitted, 2)
	assert.Equal(t, "e2", admitted[0].ID) // higher priority sorts first
}

func TestActivate_StopsWhenNoNewActivations(t *testing.T) {
	entries := []Entry{
		{ID: "e1", Content: "unrelated content", Keywords: []string{"zzz-never-appears"}},
	}
	_, admitted := Activate(ActivateInput{Entries: entries, UserMessage: "hello world"}, lenEstimator{})
	assert.Empty(t, admitted)
}

func TestActivate_BudgetSkipsOversizedButKeepsLowerPriority(t *testing.T) {
	entries := []Entry{
		{ID: "big", Content: "1234567890", Priority: 2, Constant: true},
		{ID: "small", Content: "12345", Priority: 1, Constant: true},
	}
	_, admitted := Activate(ActivateInput{
		Entries:     entries,
		UserMessage: "x",
		TokenBudget: 6,
	}, lenEstimator{})
	require.Len(t, admitted, 1)
	assert.Equal(t, "small", admitted[0].ID)
}

func TestActivate_MaxEntriesCap(t *testing.T) {
	entries := []Entry{
		{ID: "e1", Content: "a", Constant: true, Priority: 3},
		{ID: "e2", Content: "b", Constant: true, Priority: 2},
		{ID: "e3", Content: "c", Constant: true, Priority: 1},
	}
	_, admitted := Activate(ActivateInput{
		Entries:     entries,
		UserMessage: "x",
		MaxEntries:  2,
	}, lenEstimator{})
	assert.Len(t, admitted, 2)
}

func TestActivate_RegexWholeWordMatch(t *testing.T) {
	entries := []Entry{
		{ID: "e1", Content: "cat lore", Keywords: []string{"cat"}, UseRegex: true, MatchWholeWord: true},
	}
	_, admitted := Activate(ActivateInput{Entries: entries, UserMessage: "I have a cat"}, lenEstimator{})
	require.Len(t, admitted, 1)

	_, admitted2 := Activate(ActivateInput{Entries: entries, UserMessage: "catastrophe"}, lenEstimator{})
	assert.Empty(t, admitted2)
}

func TestActivate_InvalidRegexSkippedSilently(t *testing.T) {
	entries := []Entry{
		{ID: "e1", Content: "broken", Keywords: []string{"("}, UseRegex: true},
	}
	assert.NotPanics(t, func() {
		Activate(ActivateInput{Entries: entries, UserMessage: "("}, lenEstimator{})
	})
}

func TestActivate_PositionPartitioning(t *testing.T) {
	entries := []Entry{
		{ID: "e1", Content: "before char text", Constant: true, Position: PositionBeforeChar},
		{ID: "e2", Content: "after char text", Constant: true, Position: PositionAfterChar},
		{ID: "e3", Content: "before user text", Constant: true, Position: PositionBeforeUser},
		{ID: "e4", Content: "after user text", Constant: true, Position: PositionAfterUser},
	}
	blocks, _ := Activate(ActivateInput{Entries: entries, UserMessage: "x"}, lenEstimator{})
	assert.Equal(t, "before char text", blocks.BeforeChar)
	assert.Equal(t, "after char text", blocks.AfterChar)
	assert.Equal(t, "before user text", blocks.BeforeUser)
	assert.Equal(t, "after user text", blocks.AfterUser)
}
