package store

import (
	"context"
	"fmt"

	"github.com/NathanLabbe/local-rag/internal/types"
	"github.com/NathanLabbe/local-rag/pkg/config"
)

const DefaultCollection = "document_chunks"

// New opens the backend named by cfg.Backend. dim is the embedding
// dimension every stored vector must have.
func New(ctx context.Context, cfg config.StoreConfig, dim int) (types.VectorStore, error) {
	switch cfg.Backend {
	case "pgvector":
		return NewPGVectorStore(ctx, PGVectorConfig{
			ConnString: cfg.URL,
			Collection: cfg.Collection,
			VectorDim:  dim,
			BatchSize:  cfg.BatchSize,
		})
	case "bolt", "":
		return NewBoltStore(BoltConfig{
			Path:       cfg.Path,
			Collection: cfg.Collection,
			VectorDim:  dim,
		})
	case "memory":
		return NewMemoryStore(dim), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}
