package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SearchResult is one retrieved chunk with its relevance (1 - cosine distance).
type SearchResult struct {
	Content      string  `json:"content"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkID      int     `json:"chunk_id"`
	Source       string  `json:"source"`
	Relevance    float64 `json:"relevance"`
}

// Answer is what the synthesizer hands back to callers. Error is set only
// when generation degraded into an apology.
type Answer struct {
	Text    string         `json:"answer"`
	Sources []SearchResult `json:"sources"`
	Error   string         `json:"error,omitempty"`
}

// GenerateRequest is the typed contract for the text-generation backend.
// An empty Model means the backend default.
type GenerateRequest struct {
	Model  string
	Prompt string
}

type GenerateResponse struct {
	Text  string
	Model string
}
