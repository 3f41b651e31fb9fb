package databases

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkwell/internal/apperr"
	"inkwell/internal/persistence"
)

// NewMemoryChatStore returns an in-process persistence.ChatStore backed by a
// map, for tests and for running without Postgres configured.
func NewMemoryChatStore() persistence.ChatStore {
	return &memChatStore{messages: map[string][]persistence.ChatMessage{}}
}

type memChatStore struct {
	mu       sync.Mutex
	messages map[string][]persistence.ChatMessage
}

func (s *memChatStore) Init(ctx context.Context) error { return nil }
func (s *memChatStore) Close()                         {}

func (s *memChatStore) AppendMessages(ctx context.Context, sessionID string, messages []persistence.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		m.SessionID = sessionID
		s.messages[sessionID] = append(s.messages[sessionID], m)
	}
	s.sortLocked(sessionID)
	return nil
}

func (s *memChatStore) sortLocked(sessionID string) {
	msgs := s.messages[sessionID]
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
}

func (s *memChatStore) ListMessages(ctx context.Context, sessionID string, limit int, includeArchived bool) ([]persistence.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.ChatMessage
	for _, m := range s.messages[sessionID] {
		if !includeArchived && m.IsArchived {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	if out == nil {
		out = make([]persistence.ChatMessage, 0)
	}
	return out, nil
}

func (s *memChatStore) ListArchived(ctx context.Context, sessionID string) ([]persistence.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []persistence.ChatMessage
	for _, m := range s.messages[sessionID] {
		if m.IsArchived {
			out = append(out, m)
		}
	}
	if out == nil {
		out = make([]persistence.ChatMessage, 0)
	}
	return out, nil
}

func (s *memChatStore) setArchived(sessionID string, ids []string, archived bool) {
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	msgs := s.messages[sessionID]
	for i := range msgs {
		if _, ok := idSet[msgs[i].ID]; ok {
			msgs[i].IsArchived = archived
		}
	}
}

func (s *memChatStore) ArchiveMessages(ctx context.Context, sessionID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setArchived(sessionID, ids, true)
	return nil
}

func (s *memChatStore) Unarchive(ctx context.Context, sessionID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setArchived(sessionID, ids, false)
	return nil
}

func (s *memChatStore) InsertSummary(ctx context.Context, sessionID, content string, before persistence.ChatMessage) (persistence.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := persistence.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      "system",
		Content:   content,
		CreatedAt: before.CreatedAt.Add(-time.Microsecond),
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	s.sortLocked(sessionID)
	return msg, nil
}

func (s *memChatStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[sessionID]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.messages, sessionID)
	return nil
}

func (s *memChatStore) DeleteSessionsByUserPrefix(ctx context.Context, userIDPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID := range s.messages {
		if len(sessionID) >= len(userIDPrefix) && sessionID[:len(userIDPrefix)] == userIDPrefix {
			delete(s.messages, sessionID)
		}
	}
	return nil
}
