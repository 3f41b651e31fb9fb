// Package history implements C7: the background task that summarizes and
// archives a session's oldest messages once token pressure crosses a
// threshold of the model's context window.
package history

import (
	"context"
	"fmt"
	"sync"

	"inkwell/internal/persistence"
)

// Estimator sizes message content for the pressure calculation.
type Estimator interface {
	Estimate(text string) int
}

// Summarizer calls the utility model to produce a prose summary of the
// given messages. Implemented by utilityllm.Adapter over internal/llmclient.
type Summarizer interface {
	Summarize(ctx context.Context, messages []persistence.ChatMessage) (string, error)
}

const (
	compactThreshold = 0.75
	targetResidual   = 0.50
)

// Compactor runs the per-session compaction probe. It is reentrant-safe:
// a per-session mutex ensures only one compaction runs at a time for a
// given session, and a second concurrent probe no-ops.
type Compactor struct {
	store      persistence.ChatStore
	summarizer Summarizer
	estimator  Estimator

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

func New(store persistence.ChatStore, summarizer Summarizer, estimator Estimator) *Compactor {
	return &Compactor{
		store:      store,
		summarizer: summarizer,
		estimator:  estimator,
		sessions:   make(map[string]*sync.Mutex),
	}
}

func (c *Compactor) lockFor(sessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.sessions[sessionID] = lock
	}
	return lock
}

// Probe runs the compaction check for sessionID against contextWindow. If
// a compaction is already in flight for this session, Probe no-ops
// (TryLock fails) rather than blocking the caller.
func (c *Compactor) Probe(ctx context.Context, sessionID string, contextWindow int) error {
	lock := c.lockFor(sessionID)
	if !lock.TryLock() {
		return nil
	}
	defer lock.Unlock()

	messages, err := c.store.ListMessages(ctx, sessionID, 0, false)
	if err != nil {
		return err
	}
	messages = excludeSummaries(messages)

	total := 0
	for _, m := range messages {
		total += c.estimator.Estimate(m.Content)
	}
	if total <= int(compactThreshold*float64(contextWindow)) {
		return nil
	}

	target := int(targetResidual * float64(contextWindow))
	needToFree := total - target

	freed := 0
	var toArchive []persistence.ChatMessage
	for _, m := range messages {
		if freed >= needToFree {
			break
		}
		toArchive = append(toArchive, m)
		freed += c.estimator.Estimate(m.Content)
	}
	if len(toArchive) == 0 {
		return nil
	}

	summary, err := c.summarizer.Summarize(ctx, toArchive)
	if err != nil || summary == "" {
		return err // empty/failed response aborts without mutation
	}

	ids := make([]string, len(toArchive))
	for i, m := range toArchive {
		ids[i] = m.ID
	}
	if err := c.store.ArchiveMessages(ctx, sessionID, ids); err != nil {
		return err
	}

	earliestRetained, ok := earliestAfter(messages, toArchive)
	if !ok {
		return fmt.Errorf("history: no retained message to anchor summary before")
	}

	_, err = c.store.InsertSummary(ctx, sessionID, persistence.SummaryMarker+summary, earliestRetained)
	return err
}

func excludeSummaries(messages []persistence.ChatMessage) []persistence.ChatMessage {
	out := make([]persistence.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.IsSummary() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// earliestAfter returns the earliest message in messages that is not in
// archived, i.e. the new earliest-retained message the summary must
// precede.
func earliestAfter(messages, archived []persistence.ChatMessage) (persistence.ChatMessage, bool) {
	archivedIDs := make(map[string]struct{}, len(archived))
	for _, m := range archived {
		archivedIDs[m.ID] = struct{}{}
	}
	for _, m := range messages {
		if _, ok := archivedIDs[m.ID]; ok {
			continue
		}
		return m, true
	}
	return persistence.ChatMessage{}, false
}
