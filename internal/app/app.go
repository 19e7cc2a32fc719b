// Package app wires configuration into the running set of components shared
// by the CLI and the HTTP server.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
	"github.com/NathanLabbe/local-rag/pkg/config"
	"github.com/NathanLabbe/local-rag/pkg/drive"
	"github.com/NathanLabbe/local-rag/pkg/llm"
	"github.com/NathanLabbe/local-rag/pkg/processor"
	"github.com/NathanLabbe/local-rag/pkg/rag"
	"github.com/NathanLabbe/local-rag/pkg/scraper"
	"github.com/NathanLabbe/local-rag/pkg/store"
)

// SupportedExtensions are the file types accepted for upload and local ingest.
var SupportedExtensions = []string{".txt", ".md", ".markdown", ".html", ".htm"}

type App struct {
	Config      *config.Config
	Embedder    *llm.CachedEmbedder
	Store       types.VectorStore
	Pipeline    *rag.Pipeline
	Retriever   *rag.Retriever
	Synthesizer *rag.Synthesizer
}

// New builds every component from cfg and opens the vector store. Chunking
// settings are checked before any backend is touched.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	proc, err := newProcessor(cfg.Processor)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding backend: %w", err)
	}

	generator, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("generation backend: %w", err)
	}

	vs, err := store.New(ctx, cfg.Store, embedder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("%w: open %s store: %w", models.ErrRetrievalUnavailable, cfg.Store.Backend, err)
	}

	logger.Debug("using %s embeddings (%s, dim %d), %s store, model %s",
		cfg.Embedding.Provider, embedder.ModelName(), embedder.Dimension(), cfg.Store.Backend, generator.Model())
	return assemble(cfg, proc, embedder, vs, generator), nil
}

// NewWithComponents wires already constructed backends. The embedder is
// wrapped in a cache.
func NewWithComponents(cfg *config.Config, embedder types.Embedder, vs types.VectorStore, generator types.Generator) (*App, error) {
	proc, err := newProcessor(cfg.Processor)
	if err != nil {
		return nil, err
	}
	return assemble(cfg, proc, embedder, vs, generator), nil
}

func newProcessor(cfg config.ProcessorConfig) (*processor.Processor, error) {
	return processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
}

func assemble(cfg *config.Config, proc *processor.Processor, embedder types.Embedder, vs types.VectorStore, generator types.Generator) *App {
	cached, ok := embedder.(*llm.CachedEmbedder)
	if !ok {
		cached = llm.NewCachedEmbedder(embedder)
	}

	retriever := rag.NewRetriever(cached, vs)
	return &App{
		Config:    cfg,
		Embedder:  cached,
		Store:     vs,
		Pipeline:  rag.NewPipeline(proc, cached, vs, rag.PipelineConfig{Concurrency: cfg.Embedding.Concurrency}),
		Retriever: retriever,
		Synthesizer: rag.NewSynthesizer(retriever, generator,
			rag.NewSettings(cfg.LLM.SystemPrompt, cfg.LLM.Model),
			rag.SynthesizerConfig{TopK: cfg.Retrieval.TopK, Threshold: cfg.Retrieval.ScoreThreshold}),
	}
}

func newEmbedder(cfg config.EmbeddingConfig) (*llm.CachedEmbedder, error) {
	var (
		e   types.Embedder
		err error
	)
	switch cfg.Provider {
	case "ollama", "":
		e, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
		})
	case "transformers":
		e, err = llm.NewTransformersEmbedder(llm.TransformersConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	case "openai":
		e, err = llm.NewOpenAIEmbedder(llm.OpenAIConfig{
			APIKey:    os.Getenv(cfg.APIKeyEnv),
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	default:
		err = fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return llm.NewCachedEmbedder(e), nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// NewScraper returns a crawler configured from the scraper section. A
// negative maxDepth keeps the configured depth.
func (a *App) NewScraper(maxDepth int, onProgress func(string)) (*scraper.Scraper, error) {
	cfg := a.Config.Scraper
	if maxDepth < 0 {
		maxDepth = cfg.MaxDepth
	}
	return scraper.NewWithConfig(scraper.ScraperConfig{
		MaxDepth:          maxDepth,
		RateLimit:         cfg.RateLimit,
		IgnorePatterns:    cfg.IgnorePatterns,
		AllowedExtensions: cfg.AllowedExtensions,
		Timeout:           cfg.Timeout,
		OnProgress:        onProgress,
	})
}

// IngestWeb crawls url and ingests every page.
func (a *App) IngestWeb(ctx context.Context, url string, maxDepth int, progress func(done, total int)) ([]models.Document, error) {
	s, err := a.NewScraper(maxDepth, nil)
	if err != nil {
		return nil, err
	}
	pages, err := s.Scrape(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: crawl %s: %w", models.ErrIngestionFailed, url, err)
	}
	return a.Pipeline.IngestAll(ctx, pages, progress)
}

// IngestDrive ingests the user's Drive files, optionally limited to a folder.
func (a *App) IngestDrive(ctx context.Context, folderID string, progress func(done, total int)) ([]models.Document, error) {
	src, err := drive.NewSource(ctx, drive.Config{
		CredentialsFile: a.Config.Drive.CredentialsFile,
		TokenFile:       a.Config.Drive.TokenFile,
		PageSize:        a.Config.Drive.PageSize,
		RateLimit:       a.Config.Drive.RateLimit,
	})
	if err != nil {
		return nil, err
	}
	return a.ingestDriveSource(ctx, src, folderID, progress)
}

func (a *App) ingestDriveSource(ctx context.Context, src *drive.Source, folderID string, progress func(done, total int)) ([]models.Document, error) {
	files, err := src.Fetch(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("%w: google drive: %w", models.ErrIngestionFailed, err)
	}
	return a.Pipeline.IngestAll(ctx, files, progress)
}

// ReadDocument converts an uploaded or local file into a source document.
// HTML is reduced to its readable text.
func ReadDocument(name string, data []byte, source string) (models.SourceDocument, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !isSupported(ext) {
		return models.SourceDocument{}, fmt.Errorf("%w: unsupported file type %q (supported: %s)",
			models.ErrInvalidInput, ext, strings.Join(SupportedExtensions, ", "))
	}
	if !utf8.Valid(data) {
		return models.SourceDocument{}, fmt.Errorf("%w: %s is not valid UTF-8 text", models.ErrInvalidInput, name)
	}

	content := string(data)
	if ext == ".html" || ext == ".htm" {
		_, text, err := scraper.ExtractText(bytes.NewReader(data))
		if err != nil {
			return models.SourceDocument{}, fmt.Errorf("%w: %s: %w", models.ErrInvalidInput, name, err)
		}
		content = text
	}

	return models.SourceDocument{Name: filepath.Base(name), Source: source, Content: content}, nil
}

func isSupported(ext string) bool {
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// IngestUpload ingests one uploaded file.
func (a *App) IngestUpload(ctx context.Context, name string, data []byte) (models.Document, error) {
	doc, err := ReadDocument(name, data, "uploaded")
	if err != nil {
		return models.Document{}, err
	}
	return a.Pipeline.Ingest(ctx, doc.Content, doc.Name, doc.Source)
}

// IsClientError reports whether err was caused by bad input rather than a
// backend failure.
func IsClientError(err error) bool {
	return errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrInvalidChunking)
}
