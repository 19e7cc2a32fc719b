// Package testutil has in-process stand-ins for the embedding and
// generation backends.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/NathanLabbe/local-rag/internal/models"
)

// KeywordEmbedder embeds text as keyword counts plus a small constant
// component, so related texts land close together and no vector is zero.
type KeywordEmbedder struct {
	Keywords []string
	Err      error

	mu    sync.Mutex
	calls int
}

func NewKeywordEmbedder(keywords ...string) *KeywordEmbedder {
	return &KeywordEmbedder{Keywords: keywords}
}

func (e *KeywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)
	vec := make([]float32, len(e.Keywords)+1)
	for i, kw := range e.Keywords {
		vec[i] = float32(strings.Count(lower, kw))
	}
	vec[len(e.Keywords)] = 0.01
	return vec, nil
}

func (e *KeywordEmbedder) Dimension() int    { return len(e.Keywords) + 1 }
func (e *KeywordEmbedder) ModelName() string { return "keywords" }

func (e *KeywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Generator records requests and answers with Text, or fails with Err.
type Generator struct {
	Text string
	Err  error

	mu       sync.Mutex
	requests []models.GenerateRequest
}

func (g *Generator) Generate(_ context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.Err != nil {
		return models.GenerateResponse{}, g.Err
	}
	return models.GenerateResponse{Text: g.Text, Model: req.Model}, nil
}

func (g *Generator) Requests() []models.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.GenerateRequest(nil), g.requests...)
}
