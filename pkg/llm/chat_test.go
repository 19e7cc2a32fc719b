package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/pkg/llm"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestNewWithConfig(t *testing.T) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{BaseURL: "http://localhost:1234"})
	require.NoError(t, err)
	assert.Equal(t, llm.DefaultChatModel, engine.Model())

	_, err = llm.NewWithConfig(llm.ChatConfig{Temperature: 3})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{MaxTokens: -1})
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"mistral","message":{"role":"assistant","content":"Paris."},"done":true}` + "\n"))
	}))
	defer server.Close()

	engine, err := llm.NewWithConfig(llm.ChatConfig{BaseURL: server.URL, Model: "llama3"})
	require.NoError(t, err)

	resp, err := engine.Generate(context.Background(), models.GenerateRequest{
		Model:  "mistral",
		Prompt: "What is the capital of France?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", resp.Text)
	assert.Equal(t, "mistral", resp.Model)

	assert.Equal(t, "mistral", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "What is the capital of France?", got.Messages[0].Content)
}

func TestGenerate_DefaultModel(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":{"role":"assistant","content":"ok"},"done":true}` + "\n"))
	}))
	defer server.Close()

	engine, err := llm.NewWithConfig(llm.ChatConfig{BaseURL: server.URL, Model: "phi3"})
	require.NoError(t, err)

	resp, err := engine.Generate(context.Background(), models.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "phi3", resp.Model)
	assert.Equal(t, "phi3", got.Model)
}

func TestGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model crashed"}` + "\n"))
	}))
	defer server.Close()

	engine, err := llm.NewWithConfig(llm.ChatConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), models.GenerateRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, models.ErrGenerationFailed)
	assert.NotErrorIs(t, err, models.ErrGenerationTimeout)
}

func TestGenerate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	engine, err := llm.NewWithConfig(llm.ChatConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), models.GenerateRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, models.ErrGenerationTimeout)
	assert.NotErrorIs(t, err, models.ErrGenerationFailed)
}
