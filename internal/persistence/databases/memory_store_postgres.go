package databases

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkwell/internal/persistence"
)

// NewPostgresMemoryStore returns a Postgres-backed persistence.MemoryStore.
func NewPostgresMemoryStore(pool *pgxpool.Pool) persistence.MemoryStore {
	return &pgMemoryStore{pool: pool}
}

type pgMemoryStore struct {
	pool *pgxpool.Pool
}

func (s *pgMemoryStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *pgMemoryStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres memory store requires pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS memories (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    content TEXT NOT NULL,
    importance SMALLINT NOT NULL DEFAULT 3,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS memories_user_created_idx ON memories(user_id, created_at DESC);
`)
	return err
}

func (s *pgMemoryStore) Insert(ctx context.Context, mem persistence.Memory) error {
	id := mem.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := mem.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO memories (id, user_id, content, importance, created_at)
VALUES ($1, $2, $3, $4, $5)`, id, mem.UserID, mem.Content, mem.Importance, createdAt)
	return err
}

func (s *pgMemoryStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	return err
}

// ListIDsForUser returns every memory id owned by userID without deleting
// anything, so the caller (C3) can delete the vector side first and only
// then delete the SQL rows.
func (s *pgMemoryStore) ListIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM memories WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteAllForUser removes every memory owned by userID and returns the
// deleted ids. C3's DeleteAll enumerates ids with ListIDsForUser before
// calling this and does not use the returned ids.
func (s *pgMemoryStore) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `DELETE FROM memories WHERE user_id = $1 RETURNING id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SearchKeyword matches memories whose content contains any of keywords
// (case-insensitive), for the keyword branch of C3's hybrid search. The
// caller is responsible for deriving keywords per the spec's candidate
// rule (bigrams for short queries, whitespace tokens or head/tail slices
// for longer ones).
func (s *pgMemoryStore) SearchKeyword(ctx context.Context, userID string, keywords []string, k int) ([]persistence.Memory, error) {
	if len(keywords) == 0 || k <= 0 {
		return []persistence.Memory{}, nil
	}

	var conds []string
	args := []any{userID}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		args = append(args, "%"+kw+"%")
		conds = append(conds, "content ILIKE $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return []persistence.Memory{}, nil
	}
	args = append(args, k)

	query := `
SELECT id, user_id, content, importance, created_at
FROM memories
WHERE user_id = $1 AND (` + strings.Join(conds, " OR ") + `)
ORDER BY importance DESC, created_at DESC
LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.Memory
	for rows.Next() {
		var m persistence.Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.Importance, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if out == nil {
		out = make([]persistence.Memory, 0)
	}
	return out, rows.Err()
}
