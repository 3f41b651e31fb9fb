package databases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkwell/internal/apperr"
	"inkwell/internal/observability"
	"inkwell/internal/persistence"
)

// NewPostgresChatStore returns a Postgres-backed persistence.ChatStore.
func NewPostgresChatStore(pool *pgxpool.Pool) persistence.ChatStore {
	return &pgChatStore{pool: pool}
}

type pgChatStore struct {
	pool *pgxpool.Pool
}

func (s *pgChatStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *pgChatStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres chat store requires pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS chat_messages (
    id UUID PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_archived BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS chat_messages_session_created_idx ON chat_messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS chat_messages_session_archived_idx ON chat_messages(session_id, is_archived);
`)
	return err
}

func scanMessage(row pgx.Row) (persistence.ChatMessage, error) {
	var msg persistence.ChatMessage
	if err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.CreatedAt, &msg.IsArchived); err != nil {
		return persistence.ChatMessage{}, err
	}
	return msg, nil
}

func (s *pgChatStore) AppendMessages(ctx context.Context, sessionID string, messages []persistence.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	log := observability.LoggerWithTrace(ctx)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, message := range messages {
		id := message.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := message.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO chat_messages (id, session_id, role, content, created_at, is_archived)
VALUES ($1, $2, $3, $4, $5, $6)`, id, sessionID, message.Role, message.Content, createdAt, message.IsArchived); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Debug().Str("session_id", sessionID).Int("count", len(messages)).Msg("chat_messages_appended")
	return nil
}

func (s *pgChatStore) ListMessages(ctx context.Context, sessionID string, limit int, includeArchived bool) ([]persistence.ChatMessage, error) {
	archivedClause := ""
	if !includeArchived {
		archivedClause = " AND is_archived = false"
	}

	query := `
SELECT id, session_id, role, content, created_at, is_archived
FROM chat_messages
WHERE session_id = $1` + archivedClause + `
ORDER BY created_at ASC, id ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `
SELECT id, session_id, role, content, created_at, is_archived FROM (
    SELECT id, session_id, role, content, created_at, is_archived
    FROM chat_messages
    WHERE session_id = $1` + archivedClause + `
    ORDER BY created_at DESC, id DESC
    LIMIT $2
) sub
ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if out == nil {
		out = make([]persistence.ChatMessage, 0)
	}
	return out, rows.Err()
}

func (s *pgChatStore) ListArchived(ctx context.Context, sessionID string) ([]persistence.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, session_id, role, content, created_at, is_archived
FROM chat_messages
WHERE session_id = $1 AND is_archived = true
ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if out == nil {
		out = make([]persistence.ChatMessage, 0)
	}
	return out, rows.Err()
}

func (s *pgChatStore) ArchiveMessages(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
UPDATE chat_messages SET is_archived = true
WHERE session_id = $1 AND id = ANY($2)`, sessionID, ids)
	return err
}

func (s *pgChatStore) Unarchive(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
UPDATE chat_messages SET is_archived = false
WHERE session_id = $1 AND id = ANY($2)`, sessionID, ids)
	return err
}

// InsertSummary inserts a compactor-authored system message timestamped one
// microsecond before the earliest retained message, so it sorts ahead of it
// without colliding on created_at ordering.
func (s *pgChatStore) InsertSummary(ctx context.Context, sessionID, content string, before persistence.ChatMessage) (persistence.ChatMessage, error) {
	id := uuid.NewString()
	createdAt := before.CreatedAt.Add(-time.Microsecond)
	row := s.pool.QueryRow(ctx, `
INSERT INTO chat_messages (id, session_id, role, content, created_at, is_archived)
VALUES ($1, $2, 'system', $3, $4, false)
RETURNING id, session_id, role, content, created_at, is_archived`, id, sessionID, content, createdAt)
	return scanMessage(row)
}

func (s *pgChatStore) DeleteSession(ctx context.Context, sessionID string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *pgChatStore) DeleteSessionsByUserPrefix(ctx context.Context, userIDPrefix string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chat_messages WHERE session_id LIKE $1`, userIDPrefix+"%")
	return err
}
