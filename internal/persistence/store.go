package persistence

import "context"

// ChatStore owns the chat_messages table: per-session append, chronological
// listing, archival (compactor), and session-scoped deletion.
type ChatStore interface {
	Init(ctx context.Context) error

	// AppendMessages inserts messages for sessionID in a single transaction.
	AppendMessages(ctx context.Context, sessionID string, messages []ChatMessage) error

	// ListMessages returns up to limit of the most recent messages for
	// sessionID in chronological order. When includeArchived is false,
	// archived messages are excluded (the assembly-time view).
	ListMessages(ctx context.Context, sessionID string, limit int, includeArchived bool) ([]ChatMessage, error)

	// ListArchived returns only archived messages for sessionID.
	ListArchived(ctx context.Context, sessionID string) ([]ChatMessage, error)

	// ArchiveMessages marks the given message ids as archived.
	ArchiveMessages(ctx context.Context, sessionID string, ids []string) error

	// Unarchive clears the archived flag on the given message ids.
	Unarchive(ctx context.Context, sessionID string, ids []string) error

	// InsertSummary inserts a system-role summary message timestamped
	// strictly before the earliest retained message.
	InsertSummary(ctx context.Context, sessionID, content string, before ChatMessage) (ChatMessage, error)

	// DeleteSession removes every message belonging to sessionID.
	DeleteSession(ctx context.Context, sessionID string) error

	// DeleteSessionsByUserPrefix removes every message for sessions whose id has
	// the given user-id prefix (scope=card deletion, spec §6).
	DeleteSessionsByUserPrefix(ctx context.Context, userIDPrefix string) error

	Close()
}

// MemoryStore owns the memories table: user-scoped CRUD plus keyword
// search. Vector search lives behind vectorstore.Gateway and is fused by
// the caller (C3), not by this interface.
type MemoryStore interface {
	Init(ctx context.Context) error

	Insert(ctx context.Context, mem Memory) error
	Delete(ctx context.Context, id string) error
	ListIDsForUser(ctx context.Context, userID string) ([]string, error)
	DeleteAllForUser(ctx context.Context, userID string) ([]string, error)

	// SearchKeyword returns up to k memories for userID whose content
	// matches any of keywords (disjunctive LIKE), ordered by importance
	// descending.
	SearchKeyword(ctx context.Context, userID string, keywords []string, k int) ([]Memory, error)

	Close()
}
