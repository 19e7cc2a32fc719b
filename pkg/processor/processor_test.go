package processor_test

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/pkg/processor"
)

func TestSplit_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("A", 2500)

	chunks, err := processor.Split(text, 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 1000)
	}
	for i := 0; i < 2; i++ {
		assert.Equal(t, chunks[i][800:], chunks[i+1][:200], "chunks %d and %d should share 200 chars", i, i+1)
	}
}

func TestSplit_CountsRunes(t *testing.T) {
	text := strings.Repeat("é", 2500)

	chunks, err := processor.Split(text, 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph here."

	chunks, err := processor.Split(text, 30, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"First paragraph here.", "Second paragraph here."}, chunks)
}

func TestSplit_SmallInputIsOneChunk(t *testing.T) {
	chunks, err := processor.Split("  A short note.\n", 1000, 200)
	require.NoError(t, err)
	assert.Equal(t, []string{"A short note."}, chunks)
}

func TestSplit_WordsOverlap(t *testing.T) {
	words := make([]string, 50)
	for i := range words {
		words[i] = fmt.Sprintf("w%02d", i)
	}
	text := strings.Join(words, " ")

	chunks, err := processor.Split(text, 20, 8)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	assert.Equal(t, "w00 w01 w02 w03 w04", chunks[0])
	assert.Equal(t, "w03 w04 w05 w06 w07", chunks[1])

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 20)
		if i > 0 {
			prev := strings.Fields(chunks[i-1])
			assert.Contains(t, c, prev[len(prev)-1], "chunk %d should carry context from chunk %d", i, i-1)
		}
	}

	joined := strings.Join(chunks, " ")
	for _, w := range words {
		assert.Contains(t, joined, w)
	}
}

func TestSplit_SentencesBeforeWords(t *testing.T) {
	text := "Go is fun. Rust is fast! Is Zig next? Nobody knows."

	chunks, err := processor.Split(text, 25, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go is fun. Rust is fast!", "Is Zig next?", "Nobody knows."}, chunks)
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120)

	first, err := processor.Split(text, 300, 60)
	require.NoError(t, err)
	second, err := processor.Split(text, 300, 60)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestSplit_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t"} {
		chunks, err := processor.Split(text, 100, 10)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestSplit_InvalidParameters(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap above size", 100, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processor.Split("text", tt.size, tt.overlap)
			assert.ErrorIs(t, err, models.ErrInvalidChunking)
		})
	}
}

func TestNewWithConfig(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: processor.DefaultOverlap(100)})
	require.NoError(t, err)
	assert.Len(t, p.Split(strings.Repeat("B", 250)), 4)

	// Zero overlap is honoured, not replaced by a default.
	p, err = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100})
	require.NoError(t, err)
	chunks := p.Split(strings.Repeat("B", 250))
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("B", 50), chunks[2])

	_, err = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: 300})
	assert.ErrorIs(t, err, models.ErrInvalidChunking)

	_, err = processor.NewWithConfig(processor.ProcessorConfig{})
	assert.ErrorIs(t, err, models.ErrInvalidChunking)
}

func TestDefaultOverlap(t *testing.T) {
	assert.Equal(t, 200, processor.DefaultOverlap(1000))
	assert.Equal(t, 30, processor.DefaultOverlap(150))
	assert.Equal(t, 0, processor.DefaultOverlap(4))
}
