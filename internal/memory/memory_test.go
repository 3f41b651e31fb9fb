package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/persistence/databases"
	"inkwell/internal/vectorstore"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func newTestStore(t *testing.T, embedder vectorstore.Embedder) *Store {
	t.Helper()
	gw, err := vectorstore.Open(filepath.Join(t.TempDir(), "v.db"), 3, embedder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return New(databases.NewMemoryMemoryStore(), gw)
}

func TestCreate_RollsBackOnEmbeddingFailure(t *testing.T) {
	store := newTestStore(t, &stubEmbedder{err: errors.New("upstream down")})
	_, err := store.Create(context.Background(), "u1", "likes tea", 3)
	require.Error(t, err)

	results, err := store.Search(context.Background(), "u1", "tea", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCreate_SucceedsAndIsSearchable(t *testing.T) {
	store := newTestStore(t, &stubEmbedder{vector: []float32{1, 0, 0}})
	_, err := store.Create(context.Background(), "u1", "owns a telescope", 3)
	require.NoError(t, err)

	results, err := store.Search(context.Background(), "u1", "telescope", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestDeriveKeywords_ShortQueryUsesBigrams(t *testing.T) {
	kws := deriveKeywords("abcd")
	assert.Contains(t, kws, "ab")
	assert.Contains(t, kws, "bc")
	assert.Contains(t, kws, "cd")
}

func TestDeriveKeywords_WhitespaceUsesTokens(t *testing.T) {
	kws := deriveKeywords("the quick brown fox jumps")
	assert.Contains(t, kws, "quick")
	assert.Contains(t, kws, "the")
	assert.Len(t, kws, 5)
}

func TestDeriveKeywords_NoWhitespaceUsesHeadTail(t *testing.T) {
	kws := deriveKeywords("abcdefghijklmnop")
	require.Len(t, kws, 2)
	assert.Equal(t, "abcde", kws[0])
	assert.Equal(t, "lmnop", kws[1])
}

func TestDeleteAll_RemovesFromBothStores(t *testing.T) {
	store := newTestStore(t, &stubEmbedder{vector: []float32{1, 0, 0}})
	_, err := store.Create(context.Background(), "u1", "fact one", 3)
	require.NoError(t, err)

	require.NoError(t, store.DeleteAll(context.Background(), "u1"))

	results, err := store.Search(context.Background(), "u1", "fact", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
