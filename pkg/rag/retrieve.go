package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

const DefaultTopK = 5

// Retriever finds the chunks most relevant to a query.
type Retriever struct {
	embedder types.Embedder
	store    types.VectorStore
}

func NewRetriever(embedder types.Embedder, store types.VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns up to k chunks whose relevance (1 - cosine distance) is at
// least threshold, most relevant first. Equal scores keep store order.
// Nothing clearing the threshold is an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, threshold float64) ([]models.SearchResult, error) {
	results := []models.SearchResult{}
	if strings.TrimSpace(query) == "" {
		return results, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error("embed query: %v", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.store.Query(ctx, vec, k)
	if err != nil {
		logger.Error("vector store query (k=%d): %v", k, err)
		return nil, fmt.Errorf("%w: %w", models.ErrRetrievalUnavailable, err)
	}

	seen := make(map[string]bool, len(hits))
	for _, hit := range hits {
		relevance := 1 - hit.Distance
		// A zero vector has no direction; pgvector reports NaN for it.
		if math.IsNaN(relevance) || relevance < threshold || seen[hit.ID] {
			continue
		}
		seen[hit.ID] = true
		results = append(results, models.SearchResult{
			Content:      hit.Content,
			DocumentID:   hit.Metadata.DocumentID,
			DocumentName: hit.Metadata.DocumentName,
			ChunkID:      hit.Metadata.ChunkID,
			Source:       hit.Metadata.Source,
			Relevance:    relevance,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})

	logger.Debug("retrieved %d of %d hits for %q (threshold %.2f)", len(results), len(hits), query, threshold)
	return results, nil
}
