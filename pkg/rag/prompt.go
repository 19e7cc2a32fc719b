package rag

import (
	"fmt"
	"strings"

	"github.com/NathanLabbe/local-rag/internal/models"
)

// maxHistoryTurns bounds how much prior conversation goes into a prompt.
const maxHistoryTurns = 10

const (
	contextInstruction = "Answer the question based on the following context. " +
		"If the context doesn't contain relevant information to answer the question, " +
		"say so and don't make up an answer."
	plainInstruction = "Answer the question. If you don't know the answer, say so and don't make up an answer."
)

// PromptInput is everything that goes into a generation prompt. A nil
// Context produces a prompt with no context block at all.
type PromptInput struct {
	System   string
	History  []models.ChatTurn
	Context  []models.SearchResult
	Question string
}

func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	if s := strings.TrimSpace(in.System); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}

	if in.Context != nil {
		b.WriteString(contextInstruction)
	} else {
		b.WriteString(plainInstruction)
	}
	b.WriteString("\n\n")

	history := in.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", roleLabel(turn.Role), strings.TrimSpace(turn.Content))
		}
		b.WriteString("\n")
	}

	if in.Context != nil {
		b.WriteString("Context:\n")
		for i, r := range in.Context {
			fmt.Fprintf(&b, "[%d] (source: %s)\n%s\n\n", i+1, r.DocumentName, strings.TrimSpace(r.Content))
		}
	}

	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", strings.TrimSpace(in.Question))
	return b.String()
}

func roleLabel(role string) string {
	switch role {
	case models.RoleAssistant:
		return "Assistant"
	default:
		return "User"
	}
}
