package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

const (
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultEmbeddingModel = "nomic-embed-text"
)

// EmbedderConfig configures the Ollama embedding backend.
type EmbedderConfig struct {
	Model      string
	BaseURL    string // Ollama server URL
	Dimension  int    // expected vector size, 0 skips the check
	HTTPClient *http.Client
}

// Embedder turns text into vectors through Ollama's embeddings endpoint.
type Embedder struct {
	config EmbedderConfig
	llm    *ollama.LLM
}

var _ types.Embedder = (*Embedder)(nil)

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = DefaultEmbeddingModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultOllamaURL
	}

	opts := []ollama.Option{
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	}
	if config.HTTPClient != nil {
		opts = append(opts, ollama.WithHTTPClient(config.HTTPClient))
	}

	emb, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config: config,
		llm:    emb,
	}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama %s: %w", models.ErrEmbeddingUnavailable, e.config.Model, err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("%w: ollama %s returned %d vectors for one input",
			models.ErrEmbeddingUnavailable, e.config.Model, len(embeddings))
	}
	return checkVector(embeddings[0], e.config.Dimension, "ollama "+e.config.Model)
}

func (e *Embedder) Dimension() int {
	return e.config.Dimension
}

func (e *Embedder) ModelName() string {
	return e.config.Model
}

// checkVector rejects empty vectors and, when dim > 0, vectors of the wrong size.
func checkVector(vec []float32, dim int, backend string) ([]float32, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty vector", models.ErrEmbeddingUnavailable, backend)
	}
	if dim > 0 && len(vec) != dim {
		return nil, fmt.Errorf("%w: %s returned %d dimensions, expected %d",
			models.ErrEmbeddingUnavailable, backend, len(vec), dim)
	}
	return vec, nil
}
