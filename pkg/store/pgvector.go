package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

type PGVectorConfig struct {
	ConnString string
	Collection string // table name
	VectorDim  int
	BatchSize  int
}

// PGVectorStore keeps chunks in a Postgres table with a pgvector column and
// lets the database rank them by cosine distance.
type PGVectorStore struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
	table  string
}

var _ types.VectorStore = (*PGVectorStore)(nil)

func NewPGVectorStore(ctx context.Context, config PGVectorConfig) (*PGVectorStore, error) {
	if config.Collection == "" {
		config.Collection = DefaultCollection
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PGVectorStore{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.Collection}.Sanitize(),
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PGVectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			document_name TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			embedding vector(%d) NOT NULL
		)`, vs.table, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createDocIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`,
		pgx.Identifier{vs.config.Collection + "_document_idx"}.Sanitize(), vs.table)
	if _, err := vs.pool.Exec(ctx, createDocIndex); err != nil {
		return fmt.Errorf("failed to create document index: %w", err)
	}

	// hnsw rather than ivfflat: ivfflat built over an empty table has no
	// useful centroids and misses rows.
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{vs.config.Collection + "_embedding_idx"}.Sanitize(), vs.table)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Add writes all chunks in one transaction, queued in batches of BatchSize.
func (vs *PGVectorStore) Add(ctx context.Context, chunks []models.Chunk) error {
	for _, c := range chunks {
		if err := checkDimension(c.Embedding, vs.config.VectorDim); err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, document_name, chunk_index, source, content, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			document_name = EXCLUDED.document_name,
			source = EXCLUDED.source`,
		vs.table)

	for start := 0; start < len(chunks); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(chunks))

		batch := &pgx.Batch{}
		for _, c := range chunks[start:end] {
			batch.Queue(stmt,
				c.ID,
				c.Metadata.DocumentID,
				sanitizeUTF8(c.Metadata.DocumentName),
				c.Metadata.ChunkID,
				sanitizeUTF8(c.Metadata.Source),
				sanitizeUTF8(c.Content),
				c.Metadata.CreatedAt,
				pgvector.NewVector(c.Embedding),
			)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks %d-%d: %w", start, end-1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (vs *PGVectorStore) Query(ctx context.Context, queryEmbedding []float32, limit int) ([]models.StoreHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, content, document_id, document_name, chunk_index, source, created_at,
			embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vs.table)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.StoreHit
	for rows.Next() {
		var hit models.StoreHit
		err := rows.Scan(
			&hit.ID,
			&hit.Content,
			&hit.Metadata.DocumentID,
			&hit.Metadata.DocumentName,
			&hit.Metadata.ChunkID,
			&hit.Metadata.Source,
			&hit.Metadata.CreatedAt,
			&hit.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return hits, nil
}

func (vs *PGVectorStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := vs.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, vs.table), documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (vs *PGVectorStore) ListAll(ctx context.Context) ([]models.ChunkMetadata, error) {
	rows, err := vs.pool.Query(ctx, fmt.Sprintf(`
		SELECT document_id, document_name, chunk_index, source, created_at
		FROM %s
		ORDER BY document_id, chunk_index`, vs.table))
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var out []models.ChunkMetadata
	for rows.Next() {
		var m models.ChunkMetadata
		if err := rows.Scan(&m.DocumentID, &m.DocumentName, &m.ChunkID, &m.Source, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (vs *PGVectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

// sanitizeUTF8 drops invalid UTF-8 bytes and NULs, which Postgres TEXT rejects.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.ReplaceAll(s, "\x00", "")
}
