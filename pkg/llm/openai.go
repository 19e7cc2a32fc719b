package llm

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

// OpenAIConfig configures any OpenAI-compatible embeddings API.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty means api.openai.com
	Model      string
	Dimension  int
	HTTPClient *http.Client
}

type OpenAIEmbedder struct {
	config OpenAIConfig
	client *openai.Client
}

var _ types.Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(config OpenAIConfig) (*OpenAIEmbedder, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("an API key is required for the OpenAI embedding API")
	}
	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}
	if config.Dimension == 0 {
		config.Dimension = 1536
		if config.Model == string(openai.LargeEmbedding3) {
			config.Dimension = 3072
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.HTTPClient != nil {
		clientConfig.HTTPClient = config.HTTPClient
	}

	return &OpenAIEmbedder{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.config.Model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai %s: %w", models.ErrEmbeddingUnavailable, e.config.Model, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: openai %s returned no embedding data", models.ErrEmbeddingUnavailable, e.config.Model)
	}
	return checkVector(resp.Data[0].Embedding, e.config.Dimension, "openai "+e.config.Model)
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.config.Dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}
