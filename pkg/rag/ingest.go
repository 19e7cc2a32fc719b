// Package rag holds the ingestion and question-answering pipeline: chunk,
// embed and store documents on the write path, retrieve and synthesize
// answers on the read path.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

const defaultEmbedConcurrency = 4

type PipelineConfig struct {
	// Concurrency caps in-flight embedding calls per document.
	Concurrency int
}

// Pipeline turns raw document text into stored, embedded chunks.
type Pipeline struct {
	chunker  types.Chunker
	embedder types.Embedder
	store    types.VectorStore
	config   PipelineConfig

	now   func() time.Time
	newID func() string
}

func NewPipeline(chunker types.Chunker, embedder types.Embedder, store types.VectorStore, config PipelineConfig) *Pipeline {
	if config.Concurrency <= 0 {
		config.Concurrency = defaultEmbedConcurrency
	}
	return &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		config:   config,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Ingest stores content as a new document. On failure some chunks may
// already be stored; delete the returned document id and retry.
func (p *Pipeline) Ingest(ctx context.Context, content, name, source string) (models.Document, error) {
	if strings.TrimSpace(name) == "" {
		return models.Document{}, fmt.Errorf("%w: %w: document name is required", models.ErrIngestionFailed, models.ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return models.Document{}, fmt.Errorf("%w: %w: document %q has no text content", models.ErrIngestionFailed, models.ErrInvalidInput, name)
	}

	doc := models.Document{
		ID:        p.newID(),
		Name:      name,
		Source:    source,
		CreatedAt: p.now().UTC(),
	}

	pieces := p.chunker.Split(content)
	if len(pieces) == 0 {
		return doc, fmt.Errorf("%w: chunker produced no chunks for non-empty document %q", models.ErrIngestionFailed, name)
	}
	logger.Debug("document %s (%s): %d chunks", doc.ID, name, len(pieces))

	chunks := make([]models.Chunk, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for i, text := range pieces {
		g.Go(func() error {
			vec, err := p.embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			chunks[i] = models.Chunk{
				ID:        models.ChunkID(doc.ID, i),
				Content:   text,
				Embedding: vec,
				Metadata: models.ChunkMetadata{
					DocumentID:   doc.ID,
					DocumentName: doc.Name,
					ChunkID:      i,
					Source:       doc.Source,
					CreatedAt:    doc.CreatedAt,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("ingest %s (%s): %v", doc.ID, name, err)
		return doc, fmt.Errorf("%w: document %q: %w", models.ErrIngestionFailed, name, err)
	}

	if err := p.store.Add(ctx, chunks); err != nil {
		logger.Error("ingest %s (%s): store %d chunks: %v", doc.ID, name, len(chunks), err)
		return doc, fmt.Errorf("%w: document %q: store chunks: %w", models.ErrIngestionFailed, name, err)
	}

	doc.ChunkCount = len(chunks)
	logger.Info("ingested %q as %s (%d chunks, source %s)", name, doc.ID, doc.ChunkCount, source)
	return doc, nil
}

// IngestAll ingests each source document independently. Failures do not stop
// the remaining documents; they are joined into the returned error.
func (p *Pipeline) IngestAll(ctx context.Context, sources []models.SourceDocument, progress func(done, total int)) ([]models.Document, error) {
	var (
		docs []models.Document
		errs []error
	)
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		doc, err := p.Ingest(ctx, src.Content, src.Name, src.Source)
		if err != nil {
			errs = append(errs, err)
		} else {
			docs = append(docs, doc)
		}
		if progress != nil {
			progress(i+1, len(sources))
		}
	}
	return docs, errors.Join(errs...)
}

// ListDocuments groups stored chunk metadata back into documents, newest first.
func (p *Pipeline) ListDocuments(ctx context.Context) ([]models.Document, error) {
	metas, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks: %w", models.ErrRetrievalUnavailable, err)
	}

	byID := make(map[string]*models.Document)
	var order []string
	for _, m := range metas {
		doc, ok := byID[m.DocumentID]
		if !ok {
			doc = &models.Document{
				ID:        m.DocumentID,
				Name:      m.DocumentName,
				Source:    m.Source,
				CreatedAt: m.CreatedAt,
			}
			byID[m.DocumentID] = doc
			order = append(order, m.DocumentID)
		}
		doc.ChunkCount++
	}

	docs := make([]models.Document, 0, len(order))
	for _, id := range order {
		docs = append(docs, *byID[id])
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].Name < docs[j].Name
	})
	return docs, nil
}

// DeleteDocument removes every chunk of id. Deletes and ingests of the same
// id are not serialized here; callers that need strict consistency must do it.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) (int, error) {
	if strings.TrimSpace(id) == "" {
		return 0, fmt.Errorf("%w: document id is required", models.ErrInvalidInput)
	}
	n, err := p.store.DeleteDocument(ctx, id)
	if err != nil {
		logger.Error("delete document %s: %v", id, err)
		return 0, fmt.Errorf("%w: delete document %s: %w", models.ErrRetrievalUnavailable, id, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	logger.Info("deleted document %s (%d chunks)", id, n)
	return n, nil
}
