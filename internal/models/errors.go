package models

import "errors"

var (
	// ErrInvalidChunking is returned for chunk parameters that can never
	// produce a valid split, such as overlap >= size.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrEmbeddingUnavailable means the embedding backend could not be reached
	// or returned malformed output. Retryable.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrIngestionFailed may leave a partial document behind; delete by
	// document id and retry.
	ErrIngestionFailed = errors.New("ingestion failed")

	// ErrRetrievalUnavailable is a store connectivity failure, not an empty result.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	ErrGenerationTimeout = errors.New("generation timed out")
	ErrGenerationFailed  = errors.New("generation failed")

	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
