package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/NathanLabbe/local-rag/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// boundaries are tried largest first. A piece that still does not fit after
// the last level is hard cut.
var boundaries = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Processor splits document text into overlapping chunks. Sizes are
// measured in runes.
type Processor struct {
	config ProcessorConfig
}

// DefaultOverlap is the overlap used when none is configured: 200 for the
// default size, a fifth of the size otherwise.
func DefaultOverlap(size int) int {
	if size == DefaultChunkSize {
		return DefaultChunkOverlap
	}
	return size / 5
}

// NewWithConfig validates config as given. A zero overlap is kept.
func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if err := validate(config.ChunkSize, config.ChunkOverlap); err != nil {
		return nil, err
	}
	return &Processor{config: config}, nil
}

// Split returns the chunks of text. Empty or whitespace-only input yields nil.
func (p *Processor) Split(text string) []string {
	s := splitter{size: p.config.ChunkSize, overlap: p.config.ChunkOverlap}
	return s.run(text)
}

// Split is the stateless form of Processor.Split.
func Split(text string, chunkSize, chunkOverlap int) ([]string, error) {
	if err := validate(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	s := splitter{size: chunkSize, overlap: chunkOverlap}
	return s.run(text), nil
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidChunking, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrInvalidChunking, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", models.ErrInvalidChunking, overlap, size)
	}
	return nil
}

type splitter struct {
	size    int
	overlap int
	chunks  []string
}

func (s *splitter) run(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.chunks = nil
	s.split(text, 0)
	return s.chunks
}

func (s *splitter) split(text string, level int) {
	if level >= len(boundaries) {
		s.hardCut(text)
		return
	}

	var fitting []string
	for _, part := range splitKeep(text, boundaries[level]) {
		if runeLen(part) <= s.size {
			fitting = append(fitting, part)
			continue
		}
		s.merge(fitting)
		fitting = nil
		s.split(part, level+1)
	}
	s.merge(fitting)
}

// merge packs consecutive parts into chunks of at most size runes. When a
// chunk is emitted, parts are dropped from the front until what remains fits
// in the overlap; that remainder starts the next chunk.
func (s *splitter) merge(parts []string) {
	var current []string
	total := 0

	for _, part := range parts {
		n := runeLen(part)
		if total+n > s.size && len(current) > 0 {
			s.emit(strings.Join(current, ""))
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, part)
		total += n
	}

	if len(current) > 0 {
		s.emit(strings.Join(current, ""))
	}
}

// hardCut slides a size-wide window with step size-overlap.
func (s *splitter) hardCut(text string) {
	runes := []rune(text)
	step := s.size - s.overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+s.size, len(runes))
		s.emit(string(runes[start:end]))
	}
}

func (s *splitter) emit(chunk string) {
	chunk = strings.TrimSpace(chunk)
	if chunk != "" {
		s.chunks = append(s.chunks, chunk)
	}
}

// splitKeep splits text after every occurrence of any separator, keeping the
// separator attached to the preceding part.
func splitKeep(text string, seps []string) []string {
	var parts []string
	for len(text) > 0 {
		idx, sepLen := -1, 0
		for _, sep := range seps {
			if i := strings.Index(text, sep); i >= 0 && (idx < 0 || i < idx) {
				idx, sepLen = i, len(sep)
			}
		}
		if idx < 0 {
			parts = append(parts, text)
			break
		}
		parts = append(parts, text[:idx+sepLen])
		text = text[idx+sepLen:]
	}
	return parts
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
