package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/pkg/llm"
)

func newOllamaEmbeddings(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestEmbedder_Embed(t *testing.T) {
	server := newOllamaEmbeddings(t, http.StatusOK, `{"embedding":[0.1,0.2,0.3]}`)

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		BaseURL:   server.URL,
		Model:     "nomic-embed-text",
		Dimension: 3,
	})
	require.NoError(t, err)

	vec, err := emb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 3, emb.Dimension())
	assert.Equal(t, "nomic-embed-text", emb.ModelName())
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	server := newOllamaEmbeddings(t, http.StatusOK, `{"embedding":[0.1,0.2,0.3]}`)

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{BaseURL: server.URL, Dimension: 768})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "expected 768")
}

func TestEmbedder_BackendError(t *testing.T) {
	server := newOllamaEmbeddings(t, http.StatusInternalServerError, `{"error":"model not loaded"}`)

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestEmbedder_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{BaseURL: url})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

func TestTransformersEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vectors", r.URL.Path)
		var req struct {
			Text string `json:"text"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Text == "broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"vector": []float32{1, 0}})
	}))
	defer server.Close()

	emb, err := llm.NewTransformersEmbedder(llm.TransformersConfig{BaseURL: server.URL + "/", Dimension: 2})
	require.NoError(t, err)

	vec, err := emb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)

	_, err = emb.Embed(context.Background(), "broken")
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "status 500")

	_, err = llm.NewTransformersEmbedder(llm.TransformersConfig{})
	assert.Error(t, err)
}

func TestOpenAIEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,0.5,0.5,0.5]}]}`))
	}))
	defer server.Close()

	emb, err := llm.NewOpenAIEmbedder(llm.OpenAIConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL + "/v1",
		Dimension: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", emb.ModelName())

	vec, err := emb.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, vec)
}

func TestOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := llm.NewOpenAIEmbedder(llm.OpenAIConfig{})
	assert.Error(t, err)
}

type countingEmbedder struct {
	calls atomic.Int64
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) Dimension() int    { return 2 }
func (c *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder_ServesRepeatsFromCache(t *testing.T) {
	backend := &countingEmbedder{}
	cache := llm.NewCachedEmbedder(backend)
	ctx := context.Background()

	first, err := cache.Embed(ctx, "same text")
	require.NoError(t, err)
	second, err := cache.Embed(ctx, "same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, backend.calls.Load())

	hits, misses, size := cache.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
	assert.Equal(t, 1, size)
	assert.Equal(t, 2, cache.Dimension())
	assert.Equal(t, "counting", cache.ModelName())
}

func TestCachedEmbedder_ExactKeys(t *testing.T) {
	backend := &countingEmbedder{}
	cache := llm.NewCachedEmbedder(backend)
	ctx := context.Background()

	a, err := cache.Embed(ctx, "abc")
	require.NoError(t, err)
	b, err := cache.Embed(ctx, "abc ")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.EqualValues(t, 2, backend.calls.Load())
}

func TestCachedEmbedder_ReturnsCopies(t *testing.T) {
	cache := llm.NewCachedEmbedder(&countingEmbedder{})
	ctx := context.Background()

	vec, err := cache.Embed(ctx, "abc")
	require.NoError(t, err)
	vec[0] = 999

	again, err := cache.Embed(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, float32(3), again[0])
}

func TestCachedEmbedder_DoesNotCacheErrors(t *testing.T) {
	backend := &countingEmbedder{err: models.ErrEmbeddingUnavailable}
	cache := llm.NewCachedEmbedder(backend)

	_, err := cache.Embed(context.Background(), "abc")
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
	_, _, size := cache.Stats()
	assert.Zero(t, size)
}

func TestCachedEmbedder_Concurrent(t *testing.T) {
	backend := &countingEmbedder{}
	cache := llm.NewCachedEmbedder(backend)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := cache.Embed(context.Background(), "shared")
			assert.NoError(t, err)
			assert.Equal(t, []float32{6, 1}, vec)
		}()
	}
	wg.Wait()

	_, _, size := cache.Stats()
	assert.Equal(t, 1, size)
	assert.GreaterOrEqual(t, backend.calls.Load(), int64(1))
}
