package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/persistence"
	"inkwell/internal/persistence/databases"
)

type fixedEstimator struct{ perMessage int }

func (f fixedEstimator) Estimate(text string) int { return f.perMessage }

type stubSummarizer struct {
	summary string
	err     error
	calls   int
}

func (s *stubSummarizer) Summarize(ctx context.Context, messages []persistence.ChatMessage) (string, error) {
	s.calls++
	return s.summary, s.err
}

func seedMessages(t *testing.T, store persistence.ChatStore, sessionID string, n int) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		require.NoError(t, store.AppendMessages(context.Background(), sessionID, []persistence.ChatMessage{
			{Role: "user", Content: "message", CreatedAt: base.Add(time.Duration(i) * time.Minute)},
		}))
	}
}

func TestProbe_NoOpBelowThreshold(t *testing.T) {
	store := databases.NewMemoryChatStore()
	seedMessages(t, store, "s1", 5)
	summarizer := &stubSummarizer{summary: "recap"}
	c := New(store, summarizer, fixedEstimator{perMessage: 1})

	require.NoError(t, c.Probe(context.Background(), "s1", 1000))
	assert.Equal(t, 0, summarizer.calls)
}

func TestProbe_CompactsWhenOverThreshold(t *testing.T) {
	store := databases.NewMemoryChatStore()
	seedMessages(t, store, "s1", 10)
	summarizer := &stubSummarizer{summary: "recap"}
	// 10 messages * 100 tokens = 1000 > 0.75*1000=750, triggers compaction.
	c := New(store, summarizer, fixedEstimator{perMessage: 100})

	require.NoError(t, c.Probe(context.Background(), "s1", 1000))
	assert.Equal(t, 1, summarizer.calls)

	archived, err := store.ListArchived(context.Background(), "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, archived)

	all, err := store.ListMessages(context.Background(), "s1", 0, true)
	require.NoError(t, err)
	var summaries int
	for _, m := range all {
		if m.IsSummary() {
			summaries++
		}
	}
	assert.Equal(t, 1, summaries)
}

func TestProbe_AbortsOnSummarizerFailure(t *testing.T) {
	store := databases.NewMemoryChatStore()
	seedMessages(t, store, "s1", 10)
	summarizer := &stubSummarizer{err: errors.New("upstream down")}
	c := New(store, summarizer, fixedEstimator{perMessage: 100})

	err := c.Probe(context.Background(), "s1", 1000)
	assert.Error(t, err)

	archived, _ := store.ListArchived(context.Background(), "s1")
	assert.Empty(t, archived)
}
