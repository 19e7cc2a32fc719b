package types

import (
	"context"

	"github.com/NathanLabbe/local-rag/internal/models"
)

// Core interfaces

// VectorStore holds chunks for one collection.
type VectorStore interface {
	// Add stores a batch of chunks. Every chunk must carry an embedding of
	// the store's dimension.
	Add(ctx context.Context, chunks []models.Chunk) error
	// Query returns up to k hits ordered by ascending cosine distance.
	Query(ctx context.Context, embedding []float32, k int) ([]models.StoreHit, error)
	// DeleteDocument removes every chunk of documentID and reports how many were removed.
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	ListAll(ctx context.Context) ([]models.ChunkMetadata, error)
	Close() error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
}

type Generator interface {
	Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error)
}

type Chunker interface {
	Split(text string) []string
}
