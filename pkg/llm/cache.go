package llm

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/NathanLabbe/local-rag/internal/types"
)

// CachedEmbedder memoizes vectors by exact text. The cache is unbounded and
// lives as long as the value. Concurrent misses for the same text may each
// call the backend; the last writer wins and every writer stores the same vector.
type CachedEmbedder struct {
	next types.Embedder

	mu      sync.RWMutex
	vectors map[string][]float32

	hits   atomic.Int64
	misses atomic.Int64
}

var _ types.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(next types.Embedder) *CachedEmbedder {
	return &CachedEmbedder{
		next:    next,
		vectors: make(map[string][]float32),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.RLock()
	vec, ok := c.vectors[text]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return clone(vec), nil
	}

	c.misses.Add(1)
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.vectors[text] = clone(vec)
	c.mu.Unlock()

	return vec, nil
}

func (c *CachedEmbedder) Dimension() int {
	return c.next.Dimension()
}

func (c *CachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

// Stats reports cache hits, misses and the number of cached texts.
func (c *CachedEmbedder) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	size = len(c.vectors)
	c.mu.RUnlock()
	return c.hits.Load(), c.misses.Load(), size
}

// callers own the returned slice
func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
