package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/internal/types"
)

const (
	NoDocumentsMessage = "No relevant documents found."
	NoContextMessage   = "I couldn't find any relevant information in your documents to answer that question."

	timeoutApology = "Sorry, the language model took too long to respond. Please try again in a moment."
	failureApology = "Sorry, I couldn't generate an answer right now. The most relevant documents I found are listed in the sources."

	// ErrorCodeTimeout and ErrorCodeFailed are the Answer.Error values for a
	// degraded generation.
	ErrorCodeTimeout = "generation_timeout"
	ErrorCodeFailed  = "generation_failed"

	previewRunes = 500
)

type SynthesizerConfig struct {
	TopK      int
	Threshold float64
}

// AnswerRequest is one question. Zero TopK and nil Threshold fall back to the
// synthesizer defaults.
type AnswerRequest struct {
	Query         string
	History       []models.ChatTurn
	UseLLM        bool
	SkipRetrieval bool
	TopK          int
	Threshold     *float64
}

// Synthesizer answers questions from retrieved context, optionally through
// the generation backend.
type Synthesizer struct {
	retriever *Retriever
	generator types.Generator
	settings  *Settings
	config    SynthesizerConfig
}

func NewSynthesizer(retriever *Retriever, generator types.Generator, settings *Settings, config SynthesizerConfig) *Synthesizer {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if settings == nil {
		settings = NewSettings("", "")
	}
	return &Synthesizer{
		retriever: retriever,
		generator: generator,
		settings:  settings,
		config:    config,
	}
}

func (s *Synthesizer) Settings() *Settings {
	return s.settings
}

// Answer runs retrieval and, when asked to, generation. Generation failures
// degrade into an apology with Answer.Error set; only retrieval failures are
// returned as errors.
func (s *Synthesizer) Answer(ctx context.Context, req AnswerRequest) (models.Answer, error) {
	if strings.TrimSpace(req.Query) == "" {
		return models.Answer{}, fmt.Errorf("%w: query is required", models.ErrInvalidInput)
	}

	results := []models.SearchResult{}
	if !req.SkipRetrieval {
		k := req.TopK
		if k <= 0 {
			k = s.config.TopK
		}
		threshold := s.config.Threshold
		if req.Threshold != nil {
			threshold = *req.Threshold
		}

		var err error
		results, err = s.retriever.Retrieve(ctx, req.Query, k, threshold)
		if err != nil {
			return models.Answer{}, err
		}
	}

	if !req.UseLLM {
		if len(results) == 0 {
			return models.Answer{Text: NoDocumentsMessage, Sources: results}, nil
		}
		return models.Answer{Text: listResults(results), Sources: results}, nil
	}

	if !req.SkipRetrieval && len(results) == 0 {
		logger.Debug("no context cleared the threshold for %q, skipping generation", req.Query)
		return models.Answer{Text: NoContextMessage, Sources: results}, nil
	}

	in := PromptInput{
		System:   s.settings.Get().SystemPrompt,
		History:  req.History,
		Question: req.Query,
	}
	if !req.SkipRetrieval {
		in.Context = results
	}

	resp, err := s.generator.Generate(ctx, models.GenerateRequest{
		Model:  s.settings.Get().Model,
		Prompt: BuildPrompt(in),
	})
	if err != nil {
		logger.Error("generation for %q: %v", req.Query, err)
		answer := models.Answer{Text: failureApology, Sources: results, Error: ErrorCodeFailed}
		if errors.Is(err, models.ErrGenerationTimeout) {
			answer.Text = timeoutApology
			answer.Error = ErrorCodeTimeout
		}
		return answer, nil
	}

	return models.Answer{Text: strings.TrimSpace(resp.Text), Sources: results}, nil
}

// listResults renders retrieved chunks as a plain answer when generation is off.
func listResults(results []models.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant passages:\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s (relevance: %.2f)\n%s\n", i+1, r.DocumentName, r.Relevance, preview(r.Content, previewRunes))
	}
	return strings.TrimRight(b.String(), "\n")
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
