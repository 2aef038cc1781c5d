package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/reverie/memory"
)

// Embedder wraps another embedder with a ristretto cache keyed by
// text. Importance scoring, grouping, and related-memory queries embed
// the same texts repeatedly within a single tick, so the inner
// embedder is the hot path worth fronting.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps the inner embedder with a cache of roughly maxEntries
// embeddings. maxEntries 0 defaults to 4096.
func New(inner memory.Embedder, maxEntries int64) (*Embedder, error) {
	if maxEntries == 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached embedding for text, computing and caching
// it on a miss. Cached vectors are shared; callers must not mutate
// them.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		if embedding, ok := cached.([]float32); ok {
			return embedding, nil
		}
	}
	embedding, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, embedding, 1)
	return embedding, nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
