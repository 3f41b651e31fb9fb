// Package memory implements C3: user-scoped durable facts, with an
// atomic dual-write contract against the vector store and a hybrid
// vector+keyword search.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"inkwell/internal/apperr"
	"inkwell/internal/persistence"
	"inkwell/internal/vectorstore"
)

// Store is C3: memory creation, hybrid search, and bulk deletion.
type Store struct {
	sql     persistence.MemoryStore
	vectors *vectorstore.Gateway
}

func New(sql persistence.MemoryStore, vectors *vectorstore.Gateway) *Store {
	return &Store{sql: sql, vectors: vectors}
}

// Create inserts a SQL row, then upserts the corresponding vector record
// under the same id. If embedding fails, the SQL row is rolled back. The
// vector write itself is queued in the gateway and written at its next
// flush; a failure at flush time does not roll back the SQL row.
func (s *Store) Create(ctx context.Context, userID, content string, importance int) (persistence.Memory, error) {
	mem := persistence.Memory{ID: uuid.NewString(), UserID: userID, Content: content, Importance: importance}
	if err := s.sql.Insert(ctx, mem); err != nil {
		return persistence.Memory{}, err
	}

	vectors, err := s.vectors.Embed(ctx, []string{content})
	if err != nil {
		_ = s.sql.Delete(ctx, mem.ID)
		return persistence.Memory{}, fmt.Errorf("%w: %v", apperr.ErrAtomicity, err)
	}
	s.vectors.UpsertMemory(mem.ID, userID, content, vectors[0])

	return mem, nil
}

// Search runs the vector and keyword branches concurrently and fuses
// their results: vector hits come first in rank order, keyword hits are
// appended only if not already present, then the combined list is
// truncated to k. If embedding the query fails, the vector branch yields
// no hits and only keyword hits are returned.
func (s *Store) Search(ctx context.Context, userID, query string, k int) ([]persistence.Memory, error) {
	var vectorHits []vectorstore.Hit
	var keywordHits []persistence.Memory

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectors, err := s.vectors.Embed(gctx, []string{query})
		if err != nil {
			return nil // embedding failure degrades to keyword-only
		}
		hits, err := s.vectors.SearchMemory(gctx, userID, vectors[0], k)
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		keywords := deriveKeywords(query)
		hits, err := s.sql.SearchKeyword(gctx, userID, keywords, k)
		if err != nil {
			return err
		}
		keywordHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(vectorHits))
	out := make([]persistence.Memory, 0, k)
	for _, h := range vectorHits {
		out = append(out, persistence.Memory{ID: h.ID, UserID: userID, Content: h.Content})
		seen[h.ID] = struct{}{}
	}
	for _, m := range keywordHits {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		out = append(out, m)
		seen[m.ID] = struct{}{}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// ExistsSimilar reports whether userID already has a memory within the
// vector store's duplicate-distance threshold of content, used by C8 to
// skip persisting a near-duplicate extracted fact.
func (s *Store) ExistsSimilar(ctx context.Context, userID, content string) (bool, error) {
	vectors, err := s.vectors.Embed(ctx, []string{content})
	if err != nil {
		return false, err
	}
	return s.vectors.ExistsSimilar(ctx, vectorstore.KindMemory, userID, vectors[0])
}

// DeleteAll removes every memory owned by userID, from both the vector
// index and the SQL store. Vectors are deleted first, then the SQL rows: a
// crash between the two leaves SQL rows whose vectors are already gone,
// which the keyword branch of Search can still return.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	ids, err := s.sql.ListIDsForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.vectors.Delete(ctx, id); err != nil {
			return err
		}
	}
	if _, err := s.sql.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	return nil
}

// deriveKeywords implements the spec's exact candidate-derivation rule:
// adjacent bigrams for short queries, whitespace tokens for queries that
// contain whitespace, otherwise the first and last 5 characters.
func deriveKeywords(query string) []string {
	runes := []rune(strings.TrimSpace(query))
	if len(runes) == 0 {
		return nil
	}

	if len(runes) < 10 {
		return dedup(bigrams(runes))
	}

	if strings.ContainsAny(query, " \t\n") {
		var tokens []string
		for _, tok := range strings.Fields(query) {
			if len([]rune(tok)) > 1 {
				tokens = append(tokens, tok)
			}
		}
		return dedup(tokens)
	}

	head := runes
	if len(head) > 5 {
		head = head[:5]
	}
	tail := runes
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	return dedup([]string{string(head), string(tail)})
}

func bigrams(runes []rune) []string {
	if len(runes) < 2 {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
