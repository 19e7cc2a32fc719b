package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

// TransformersConfig configures a sentence-transformers sidecar that serves
// POST /vectors {"text": ...} -> {"vector": [...]}.
type TransformersConfig struct {
	BaseURL    string
	Model      string // informational, the sidecar picks its own model
	Dimension  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

type TransformersEmbedder struct {
	config TransformersConfig
	client *http.Client
}

var _ types.Embedder = (*TransformersEmbedder)(nil)

type vectorsRequest struct {
	Text string `json:"text"`
}

type vectorsResponse struct {
	Vector []float32 `json:"vector"`
}

func NewTransformersEmbedder(config TransformersConfig) (*TransformersEmbedder, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("transformers base URL is required")
	}
	if config.Model == "" {
		config.Model = "sentence-transformers"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &TransformersEmbedder{config: config, client: client}, nil
}

func (e *TransformersEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(vectorsRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/vectors", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: transformers: %w", models.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: transformers returned status %d: %s",
			models.ErrEmbeddingUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out vectorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: transformers: decode response: %w", models.ErrEmbeddingUnavailable, err)
	}

	return checkVector(out.Vector, e.config.Dimension, "transformers")
}

func (e *TransformersEmbedder) Dimension() int {
	return e.config.Dimension
}

func (e *TransformersEmbedder) ModelName() string {
	return e.config.Model
}
