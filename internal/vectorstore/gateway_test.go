package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vectors [][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func openTestGateway(t *testing.T, embedder Embedder) *Gateway {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	g, err := Open(path, 3, embedder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Shutdown(context.Background()) })
	return g
}

func TestGateway_UpsertMemoryAndSearch(t *testing.T) {
	g := openTestGateway(t, &fakeEmbedder{})
	ctx := context.Background()

	g.UpsertMemory("m1", "user-1", "likes tea", []float32{1, 0, 0})
	g.UpsertMemory("m2", "user-2", "likes coffee", []float32{0, 1, 0})
	require.NoError(t, g.flush(ctx))

	hits, err := g.SearchMemory(ctx, "user-1", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].ID)
}

func TestGateway_SearchLoreFiltersBySet(t *testing.T) {
	g := openTestGateway(t, &fakeEmbedder{})
	ctx := context.Background()

	g.UpsertLore("l1", "book-a", "dragons live in the north", []float32{1, 0, 0})
	g.UpsertLore("l2", "book-b", "dragons live in the south", []float32{1, 0, 0})
	require.NoError(t, g.flush(ctx))

	hits, err := g.SearchLore(ctx, []string{"book-a"}, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "l1", hits[0].ID)
}

func TestGateway_DeleteRemovesPendingAndStored(t *testing.T) {
	g := openTestGateway(t, &fakeEmbedder{})
	ctx := context.Background()

	g.UpsertMemory("m1", "user-1", "temp fact", []float32{1, 0, 0})
	require.NoError(t, g.Delete(ctx, "m1"))
	require.NoError(t, g.flush(ctx))

	hits, err := g.SearchMemory(ctx, "user-1", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGateway_EmbedWrapsMismatchAsEmbeddingError(t *testing.T) {
	g := openTestGateway(t, &fakeEmbedder{vectors: [][]float32{{1, 2, 3}}})
	_, err := g.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}

func TestGateway_ExistsSimilar(t *testing.T) {
	g := openTestGateway(t, &fakeEmbedder{})
	ctx := context.Background()

	g.UpsertMemory("m1", "user-1", "owns a cat", []float32{1, 0, 0})
	require.NoError(t, g.flush(ctx))

	exists, err := g.ExistsSimilar(ctx, KindMemory, "user-1", []float32{1, 0, 0})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = g.ExistsSimilar(ctx, KindMemory, "user-1", []float32{0, 0, 1})
	require.NoError(t, err)
	assert.False(t, exists)
}
