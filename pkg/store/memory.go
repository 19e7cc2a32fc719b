package store

import (
	"context"
	"sync"

	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

// MemoryStore keeps chunks in process memory. Contents are lost on Close.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
	index     map[string]int
}

var _ types.VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. A dimension of 0 is fixed by the
// first chunk added.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		index:     make(map[string]int),
	}
}

func (s *MemoryStore) Add(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for _, c := range chunks {
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if err := checkDimension(c.Embedding, dim); err != nil {
			return err
		}
	}
	s.dimension = dim

	for _, c := range chunks {
		e := entry{
			id:        c.ID,
			content:   c.Content,
			embedding: append([]float32(nil), c.Embedding...),
			metadata:  c.Metadata,
		}
		if i, ok := s.index[c.ID]; ok {
			s.entries[i] = e
			continue
		}
		s.index[c.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, embedding []float32, k int) ([]models.StoreHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if err := checkDimension(embedding, s.dimension); err != nil {
		return nil, err
	}
	return nearest(s.entries, embedding, k), nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	deleted := 0
	for _, e := range s.entries {
		if e.metadata.DocumentID == documentID {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	s.index = make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		s.index[e.id] = i
	}
	return deleted, nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]models.ChunkMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ChunkMetadata, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.metadata)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.index = make(map[string]int)
	return nil
}
