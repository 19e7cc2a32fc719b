package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

const (
	DefaultChatModel         = "llama3"
	DefaultGenerationTimeout = 4 * time.Minute
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string        // Ollama server URL
	Timeout     time.Duration // per generation call
	HTTPClient  *http.Client
}

// ChatEngine generates answers with an Ollama model.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

var _ types.Generator = (*ChatEngine)(nil)

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = DefaultChatModel
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultOllamaURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultGenerationTimeout
	}

	opts := []ollama.Option{
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	}
	if config.HTTPClient != nil {
		opts = append(opts, ollama.WithHTTPClient(config.HTTPClient))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// Generate runs one non-streaming completion. A call that exceeds the
// configured timeout fails with ErrGenerationTimeout, any other failure with
// ErrGenerationFailed.
func (ce *ChatEngine) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = ce.config.Model
	}

	genCtx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	start := time.Now()
	text, err := llms.GenerateFromSinglePrompt(genCtx, ce.llm, req.Prompt,
		llms.WithModel(model),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return models.GenerateResponse{}, fmt.Errorf("%w: model %s after %s: %w",
				models.ErrGenerationTimeout, model, time.Since(start).Round(time.Millisecond), err)
		}
		return models.GenerateResponse{}, fmt.Errorf("%w: model %s: %w", models.ErrGenerationFailed, model, err)
	}

	logger.Debug("generated %d chars with %s in %s", len(text), model, time.Since(start).Round(time.Millisecond))

	return models.GenerateResponse{Text: text, Model: model}, nil
}

func (ce *ChatEngine) Model() string {
	return ce.config.Model
}
