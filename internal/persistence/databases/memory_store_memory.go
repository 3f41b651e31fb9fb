package databases

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkwell/internal/persistence"
)

// NewMemoryMemoryStore returns an in-process persistence.MemoryStore, for
// tests and for running without Postgres configured.
func NewMemoryMemoryStore() persistence.MemoryStore {
	return &memMemoryStore{byUser: map[string][]persistence.Memory{}}
}

type memMemoryStore struct {
	mu     sync.Mutex
	byUser map[string][]persistence.Memory
}

func (s *memMemoryStore) Init(ctx context.Context) error { return nil }
func (s *memMemoryStore) Close()                         {}

func (s *memMemoryStore) Insert(ctx context.Context, mem persistence.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	s.byUser[mem.UserID] = append(s.byUser[mem.UserID], mem)
	return nil
}

func (s *memMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, mems := range s.byUser {
		for i, m := range mems {
			if m.ID == id {
				s.byUser[userID] = append(mems[:i], mems[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (s *memMemoryStore) ListIDsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mems := s.byUser[userID]
	ids := make([]string, len(mems))
	for i, m := range mems {
		ids[i] = m.ID
	}
	return ids, nil
}

func (s *memMemoryStore) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mems := s.byUser[userID]
	ids := make([]string, len(mems))
	for i, m := range mems {
		ids[i] = m.ID
	}
	delete(s.byUser, userID)
	return ids, nil
}

func (s *memMemoryStore) SearchKeyword(ctx context.Context, userID string, keywords []string, k int) ([]persistence.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k <= 0 {
		return []persistence.Memory{}, nil
	}
	var out []persistence.Memory
	for _, m := range s.byUser[userID] {
		lower := strings.ToLower(m.Content)
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if strings.Contains(lower, kw) {
				out = append(out, m)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > k {
		out = out[:k]
	}
	if out == nil {
		out = make([]persistence.Memory, 0)
	}
	return out, nil
}
