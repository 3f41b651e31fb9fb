// Package vectorstore implements C2: the embedding + similarity-search
// gateway that sits between the chat-assembly pipeline and the embedded
// ANN index. It owns the "record a memory/lore entry" and "find nearest
// neighbours" operations; C3 (memory) and C4 (lorebook) call through it
// rather than touching the underlying store directly.
package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/liliang-cn/sqvect/v2"

	"inkwell/internal/apperr"
	"inkwell/internal/observability"
)

// Kind distinguishes the two record families sharing one ANN index.
type Kind string

const (
	KindMemory Kind = "memory"
	KindLore   Kind = "lore"
)

// Embedder turns text into vectors. Implemented by internal/llmclient
// against the configured embedding model; kept as an interface here so
// vectorstore has no dependency on the LLM transport.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is one similarity-search result.
type Hit struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]string
}

const (
	embedTimeout        = 30 * time.Second
	defaultFlushPeriod  = 30 * time.Second
	defaultSimilarThres = 0.25
)

type pendingWrite struct {
	id       string
	vector   []float32
	content  string
	metadata map[string]string
}

// Gateway wraps a sqvect SQLiteStore with the record shape, flush queue,
// and timeouts the pipeline needs.
type Gateway struct {
	store    *sqvect.SQLiteStore
	embedder Embedder

	mu      sync.Mutex
	pending map[string]pendingWrite

	flushPeriod time.Duration
	stopCh      chan struct{}
	stoppedCh   chan struct{}
}

// Open creates (or reopens) the ANN index at path and starts its
// background flush loop. dim is the embedding dimensionality; pass 0 to
// auto-detect from the first upsert.
func Open(path string, dim int, embedder Embedder) (*Gateway, error) {
	store, err := sqvect.New(path, dim)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open: %w", err)
	}
	if err := store.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("vectorstore: init: %w", err)
	}

	g := &Gateway{
		store:       store,
		embedder:    embedder,
		pending:     make(map[string]pendingWrite),
		flushPeriod: defaultFlushPeriod,
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
	go g.flushLoop()
	return g, nil
}

func (g *Gateway) flushLoop() {
	defer close(g.stoppedCh)
	ticker := time.NewTicker(g.flushPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := g.flush(context.Background()); err != nil {
				observability.LoggerWithTrace(context.Background()).Error().Err(err).Msg("vectorstore_flush_failed")
			}
		case <-g.stopCh:
			return
		}
	}
}

// Shutdown stops the flush loop and synchronously flushes any pending
// writes before returning.
func (g *Gateway) Shutdown(ctx context.Context) error {
	close(g.stopCh)
	<-g.stoppedCh
	if err := g.flush(ctx); err != nil {
		return err
	}
	return g.store.Close()
}

func (g *Gateway) flush(ctx context.Context) error {
	g.mu.Lock()
	if len(g.pending) == 0 {
		g.mu.Unlock()
		return nil
	}
	batch := make([]*sqvect.Embedding, 0, len(g.pending))
	for id, w := range g.pending {
		batch = append(batch, &sqvect.Embedding{
			ID:       id,
			Vector:   w.vector,
			Content:  w.content,
			Metadata: w.metadata,
		})
	}
	g.pending = make(map[string]pendingWrite)
	g.mu.Unlock()

	return g.store.UpsertBatch(ctx, batch)
}

// Embed converts texts to vectors in the order the Embedder returns them
// (llmclient.Client places each vector at its response index). The gateway
// checks that one vector came back per text and wraps any failure as
// apperr.ErrEmbedding.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	vectors, err := g.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", apperr.ErrEmbedding, len(texts), len(vectors))
	}
	return vectors, nil
}

func metadataFor(kind Kind, ownerID string, extra map[string]string) map[string]string {
	md := map[string]string{"kind": string(kind), "owner_id": ownerID}
	for k, v := range extra {
		md[k] = v
	}
	return md
}

// UpsertMemory queues a memory record for the next flush. If the queue
// already holds this id, the queued record is replaced, keeping the latest
// vector.
func (g *Gateway) UpsertMemory(id, userID, content string, vector []float32) {
	g.enqueue(id, content, vector, metadataFor(KindMemory, userID, nil))
}

// UpsertLore queues a lorebook-entry record.
func (g *Gateway) UpsertLore(id, lorebookID, content string, vector []float32) {
	g.enqueue(id, content, vector, metadataFor(KindLore, lorebookID, nil))
}

func (g *Gateway) enqueue(id, content string, vector []float32, metadata map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[id] = pendingWrite{id: id, vector: vector, content: content, metadata: metadata}
}

// Delete removes a record immediately, including any not-yet-flushed
// pending write for the same id.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
	return g.store.Delete(ctx, id)
}

// SearchMemory returns the k nearest memory records owned by userID.
func (g *Gateway) SearchMemory(ctx context.Context, userID string, query []float32, k int) ([]Hit, error) {
	return g.search(ctx, query, k, map[string]string{"kind": string(KindMemory), "owner_id": userID})
}

// SearchLore returns up to k nearest lore entries whose lorebook id is in
// lorebookIDs. sqvect's metadata filter is exact-match-per-key, so set
// membership across lorebooks is applied after a broader kind-scoped
// fetch.
func (g *Gateway) SearchLore(ctx context.Context, lorebookIDs []string, query []float32, k int) ([]Hit, error) {
	if len(lorebookIDs) == 0 || k <= 0 {
		return nil, nil
	}
	allowed := make(map[string]struct{}, len(lorebookIDs))
	for _, id := range lorebookIDs {
		allowed[id] = struct{}{}
	}

	candidates, err := g.searchRaw(ctx, query, k*len(lorebookIDs)+k, map[string]string{"kind": string(KindLore)})
	if err != nil {
		return nil, err
	}

	out := make([]Hit, 0, k)
	for _, c := range candidates {
		if _, ok := allowed[c.Metadata["owner_id"]]; !ok {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (g *Gateway) search(ctx context.Context, query []float32, k int, filter map[string]string) ([]Hit, error) {
	return g.searchRaw(ctx, query, k, filter)
}

func (g *Gateway) searchRaw(ctx context.Context, query []float32, k int, filter map[string]string) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	results, err := g.store.Search(ctx, query, sqvect.SearchOptions{TopK: k, Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	out := make([]Hit, len(results))
	for i, r := range results {
		out[i] = Hit{ID: r.ID, Content: r.Content, Score: r.Score, Metadata: r.Metadata}
	}
	return out, nil
}

// ExistsSimilar reports whether any record owned by ownerID of the given
// kind is within the default cosine-distance threshold of query, used by
// C8 to avoid persisting a near-duplicate fact.
func (g *Gateway) ExistsSimilar(ctx context.Context, kind Kind, ownerID string, query []float32) (bool, error) {
	hits, err := g.search(ctx, query, 1, map[string]string{"kind": string(kind), "owner_id": ownerID})
	if err != nil {
		return false, err
	}
	if len(hits) == 0 {
		return false, nil
	}
	return (1 - hits[0].Score) < defaultSimilarThres, nil
}
