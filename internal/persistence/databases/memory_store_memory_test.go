package databases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/persistence"
)

func TestMemMemoryStore_InsertAndSearchKeyword(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMemoryStore()

	require.NoError(t, store.Insert(ctx, persistence.Memory{UserID: "u1", Content: "likes spicy food", Importance: 3}))
	require.NoError(t, store.Insert(ctx, persistence.Memory{UserID: "u1", Content: "works as an engineer", Importance: 5}))
	require.NoError(t, store.Insert(ctx, persistence.Memory{UserID: "u2", Content: "likes spicy food too", Importance: 4}))

	results, err := store.SearchKeyword(ctx, "u1", []string{"spicy", "engineer"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "works as an engineer", results[0].Content)
}

func TestMemMemoryStore_DeleteAllForUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMemoryStore()
	require.NoError(t, store.Insert(ctx, persistence.Memory{UserID: "u1", Content: "a"}))
	require.NoError(t, store.Insert(ctx, persistence.Memory{UserID: "u1", Content: "b"}))

	ids, err := store.DeleteAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	results, err := store.SearchKeyword(ctx, "u1", []string{"a"}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
