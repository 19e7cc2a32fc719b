package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
	"github.com/NathanLabbe/local-rag/pkg/config"
)

func chunk(docID, docName string, idx int, vec ...float32) models.Chunk {
	return models.Chunk{
		ID:        models.ChunkID(docID, idx),
		Content:   fmt.Sprintf("%s chunk %d", docName, idx),
		Embedding: vec,
		Metadata: models.ChunkMetadata{
			DocumentID:   docID,
			DocumentName: docName,
			ChunkID:      idx,
			Source:       "uploaded",
			CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func seed(t *testing.T, s types.VectorStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []models.Chunk{
		chunk("doc-a", "alpha.txt", 0, 1, 0, 0),
		chunk("doc-a", "alpha.txt", 1, 0.9, 0.1, 0),
		chunk("doc-a", "alpha.txt", 2, 0, 1, 0),
	}))
	require.NoError(t, s.Add(ctx, []models.Chunk{
		chunk("doc-b", "beta.txt", 0, 0, 0, 1),
		chunk("doc-b", "beta.txt", 1, 0.5, 0.5, 0),
	}))
}

// runStoreSuite checks the behaviour every backend must share.
func runStoreSuite(t *testing.T, open func(t *testing.T) types.VectorStore) {
	ctx := context.Background()

	t.Run("empty query", func(t *testing.T) {
		s := open(t)
		hits, err := s.Query(ctx, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("nearest first", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		hits, err := s.Query(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)

		assert.Equal(t, "doc-a_0", hits[0].ID)
		assert.InDelta(t, 0.0, hits[0].Distance, 1e-6)
		assert.Equal(t, "alpha.txt chunk 0", hits[0].Content)
		assert.Equal(t, "alpha.txt", hits[0].Metadata.DocumentName)
		assert.Equal(t, "uploaded", hits[0].Metadata.Source)

		assert.Equal(t, "doc-a_1", hits[1].ID)
		assert.Equal(t, 1, hits[1].Metadata.ChunkID)
		assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)
	})

	t.Run("delete removes only that document", func(t *testing.T) {
		s := open(t)
		seed(t, s)

		deleted, err := s.DeleteDocument(ctx, "doc-a")
		require.NoError(t, err)
		assert.Equal(t, 3, deleted)

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		for _, m := range all {
			assert.Equal(t, "doc-b", m.DocumentID)
		}

		hits, err := s.Query(ctx, []float32{1, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
		for _, h := range hits {
			assert.NotEqual(t, "doc-a", h.Metadata.DocumentID)
		}

		deleted, err = s.DeleteDocument(ctx, "doc-a")
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})

	t.Run("rejects wrong dimension", func(t *testing.T) {
		s := open(t)
		seed(t, s)
		err := s.Add(ctx, []models.Chunk{chunk("doc-c", "gamma.txt", 0, 1, 2)})
		assert.Error(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) types.VectorStore {
		s := NewMemoryStore(3)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryStore_TiesKeepInsertionOrder(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []models.Chunk{
		chunk("doc", "d", 0, 0, 1),
		chunk("doc", "d", 1, 0, 1),
		chunk("doc", "d", 2, 0, 1),
	}))

	hits, err := s.Query(ctx, []float32{0, 2}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.Metadata.ChunkID)
	}
}

func TestBoltStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) types.VectorStore {
		s, err := NewBoltStore(BoltConfig{
			Path:      filepath.Join(t.TempDir(), "nested", "rag.db"),
			VectorDim: 3,
		})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBoltStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag.db")
	ctx := context.Background()

	s, err := NewBoltStore(BoltConfig{Path: path, VectorDim: 3})
	require.NoError(t, err)
	seed(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewBoltStore(BoltConfig{Path: path, VectorDim: 3})
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	hits, err := reopened.Query(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b_0", hits[0].ID)
	assert.Equal(t, "beta.txt chunk 0", hits[0].Content)
}

func TestBoltStore_TiesFollowChunkIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag.db")
	ctx := context.Background()

	chunks := make([]models.Chunk, 12)
	for i := range chunks {
		chunks[i] = chunk("doc", "d", i, 0, 1)
	}

	s, err := NewBoltStore(BoltConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, chunks))

	assertOrder := func(s *BoltStore) {
		t.Helper()
		hits, err := s.Query(ctx, []float32{0, 3}, len(chunks))
		require.NoError(t, err)
		require.Len(t, hits, len(chunks))
		for i, h := range hits {
			assert.Equal(t, i, h.Metadata.ChunkID)
		}
	}

	assertOrder(s)
	require.NoError(t, s.Close())

	reopened, err := NewBoltStore(BoltConfig{Path: path})
	require.NoError(t, err)
	defer reopened.Close()
	assertOrder(reopened)
}

func TestPGVectorStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	runStoreSuite(t, func(t *testing.T) types.VectorStore {
		ctx := context.Background()
		collection := fmt.Sprintf("test_chunks_%d", time.Now().UnixNano())
		s, err := NewPGVectorStore(ctx, PGVectorConfig{
			ConnString: dsn,
			Collection: collection,
			VectorDim:  3,
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+s.table)
			s.Close()
		})
		return s
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.StoreConfig{Backend: "memory"}, 3)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(ctx, config.StoreConfig{Backend: "bolt", Path: filepath.Join(t.TempDir(), "x.db")}, 3)
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())

	_, err = New(ctx, config.StoreConfig{Backend: "chroma"}, 3)
	assert.Error(t, err)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, cosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 1.0, cosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2.0, cosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 1.0, cosineDistance([]float32{0, 0}, []float32{1, 0}), 1e-9)
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "abc", sanitizeUTF8("a\xffb\x00c"))
	assert.Equal(t, "héllo", sanitizeUTF8("héllo"))
}
