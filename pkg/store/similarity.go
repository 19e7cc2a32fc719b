package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/NathanLabbe/local-rag/internal/models"
)

// cosineDistance is 1 - cosine similarity, in [0, 2]. A zero vector is at
// distance 1 from everything.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

type entry struct {
	id        string
	content   string
	embedding []float32
	metadata  models.ChunkMetadata
}

// nearest ranks entries by ascending distance to query. Ties keep the order
// of entries.
func nearest(entries []entry, query []float32, k int) []models.StoreHit {
	hits := make([]models.StoreHit, 0, len(entries))
	for _, e := range entries {
		hits = append(hits, models.StoreHit{
			ID:       e.id,
			Content:  e.content,
			Metadata: e.metadata,
			Distance: cosineDistance(query, e.embedding),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

func checkDimension(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty embedding")
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, len(vec))
	}
	return nil
}
