package models

import (
	"strconv"
	"time"
)

// Document is one ingested source. Its chunks live in the vector store.
type Document struct {
	ID         string    `json:"document_id"`
	Name       string    `json:"document_name"`
	Source     string    `json:"source"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkMetadata is denormalized onto every stored chunk so retrieval can
// show provenance without a second lookup.
type ChunkMetadata struct {
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	ChunkID      int       `json:"chunk_id"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

type Chunk struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  ChunkMetadata
}

// ChunkID builds the store key for the idx-th chunk of a document.
func ChunkID(documentID string, idx int) string {
	return documentID + "_" + strconv.Itoa(idx)
}

// StoreHit is a raw nearest-neighbour match. Distance is cosine distance.
type StoreHit struct {
	ID       string
	Content  string
	Metadata ChunkMetadata
	Distance float64
}

// SourceDocument is raw text handed to the ingestion pipeline by a source
// (upload, web crawl, drive).
type SourceDocument struct {
	Name    string
	Source  string
	Content string
}
