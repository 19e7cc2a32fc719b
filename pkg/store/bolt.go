package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

type BoltConfig struct {
	Path       string
	Collection string // bucket name
	VectorDim  int
}

// BoltStore persists chunks in a bbolt bucket and searches a copy held in
// memory by brute force.
type BoltStore struct {
	config BoltConfig
	db     *bbolt.DB
	bucket []byte

	mu      sync.RWMutex
	entries []entry // insertion order
}

var _ types.VectorStore = (*BoltStore)(nil)

type storedChunk struct {
	Vector   []float32            `json:"v"`
	Content  string               `json:"c"`
	Metadata models.ChunkMetadata `json:"m"`
}

func NewBoltStore(config BoltConfig) (*BoltStore, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("bolt store path is required")
	}
	if config.Collection == "" {
		config.Collection = DefaultCollection
	}

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := bbolt.Open(config.Path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", config.Path, err)
	}

	s := &BoltStore{
		config: config,
		db:     db,
		bucket: []byte(config.Collection),
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", config.Collection, err)
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	return s, nil
}

func (s *BoltStore) load() error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, v []byte) error {
			var stored storedChunk
			if err := json.Unmarshal(v, &stored); err != nil {
				logger.Warn("skipping corrupt chunk %s: %v", k, err)
				return nil
			}
			s.entries = append(s.entries, entry{
				id:        string(k),
				content:   stored.Content,
				embedding: stored.Vector,
				metadata:  stored.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return err
	}

	// Keys sort "doc_10" before "doc_2"; rebuild the order chunks were added in.
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i].metadata, s.entries[j].metadata
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.ChunkID < b.ChunkID
	})
	return nil
}

func (s *BoltStore) Add(_ context.Context, chunks []models.Chunk) error {
	for _, c := range chunks {
		if err := checkDimension(c.Embedding, s.config.VectorDim); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, c := range chunks {
			data, err := json.Marshal(storedChunk{
				Vector:   c.Embedding,
				Content:  c.Content,
				Metadata: c.Metadata,
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(c.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	// Mirror the committed write in memory.
	byID := make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		byID[e.id] = i
	}
	for _, c := range chunks {
		e := entry{
			id:        c.ID,
			content:   c.Content,
			embedding: append([]float32(nil), c.Embedding...),
			metadata:  c.Metadata,
		}
		if i, ok := byID[c.ID]; ok {
			s.entries[i] = e
			continue
		}
		byID[c.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

func (s *BoltStore) Query(_ context.Context, embedding []float32, k int) ([]models.StoreHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if err := checkDimension(embedding, s.config.VectorDim); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return nearest(s.entries, embedding, k), nil
}

func (s *BoltStore) DeleteDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doomed []string
	for _, e := range s.entries {
		if e.metadata.DocumentID == documentID {
			doomed = append(doomed, e.id)
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, id := range doomed {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.metadata.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	s.entries = kept

	return len(doomed), nil
}

func (s *BoltStore) ListAll(_ context.Context) ([]models.ChunkMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ChunkMetadata, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.metadata)
	}
	return out, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
