package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
	"github.com/NathanLabbe/local-rag/pkg/rag"
)

var (
	askNoLLM         bool
	askSkipRetrieval bool
	askTopK          int
	askThreshold     float64
)

var askCmd = &cobra.Command{
	Use:   `ask "question"`,
	Short: "Ask one question about the ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		req := answerRequest(cmd, strings.Join(args, " "), nil)
		answer, err := ask(cmd.Context(), a.Synthesizer, req)
		if err != nil {
			return err
		}
		printAnswer(answer)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively with your documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		color.Cyan("\nChat with your documents (type 'exit' to quit)")

		scanner := bufio.NewScanner(os.Stdin)
		userPrompt := color.New(color.FgGreen).PrintfFunc()
		var history []models.ChatTurn

		for {
			userPrompt("\nYou: ")
			if !scanner.Scan() {
				break
			}

			query := strings.TrimSpace(scanner.Text())
			if query == "" {
				continue
			}
			if strings.EqualFold(query, "exit") || strings.EqualFold(query, "quit") {
				break
			}

			answer, err := ask(cmd.Context(), a.Synthesizer, answerRequest(cmd, query, history))
			if err != nil {
				color.Red("Error: %v", err)
				continue
			}
			printAnswer(answer)

			history = append(history,
				models.ChatTurn{Role: models.RoleUser, Content: query},
				models.ChatTurn{Role: models.RoleAssistant, Content: answer.Text})
		}
		return scanner.Err()
	},
}

func init() {
	for _, c := range []*cobra.Command{askCmd, chatCmd} {
		c.Flags().BoolVar(&askNoLLM, "no-llm", false, "list matching passages instead of generating an answer")
		c.Flags().BoolVar(&askSkipRetrieval, "skip-retrieval", false, "ask the model directly without document context")
		c.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of passages to retrieve (default from config)")
		c.Flags().Float64Var(&askThreshold, "threshold", 0, "minimum relevance in [0,1] (default from config)")
		rootCmd.AddCommand(c)
	}
}

func answerRequest(cmd *cobra.Command, query string, history []models.ChatTurn) rag.AnswerRequest {
	req := rag.AnswerRequest{
		Query:         query,
		History:       history,
		UseLLM:        !askNoLLM,
		SkipRetrieval: askSkipRetrieval,
		TopK:          askTopK,
	}
	if cmd.Flags().Changed("threshold") {
		t := askThreshold
		req.Threshold = &t
	}
	return req
}

func ask(ctx context.Context, s *rag.Synthesizer, req rag.AnswerRequest) (models.Answer, error) {
	// Debug lines would tear through the spinner.
	if logger.IsVerbose() {
		return s.Answer(ctx, req)
	}
	label := " Searching documents..."
	if req.UseLLM {
		label = " Thinking..."
	}
	spinner := getSpinner(label)
	defer spinner.Finish()
	return s.Answer(ctx, req)
}

func printAnswer(answer models.Answer) {
	assistant := color.New(color.FgCyan).PrintfFunc()
	if answer.Error != "" {
		color.Yellow("\n%s", answer.Text)
	} else {
		assistant("\nAssistant: ")
		fmt.Println(answer.Text)
	}

	if len(answer.Sources) == 0 {
		return
	}
	color.New(color.Faint).Println("\nSources:")
	for i, src := range answer.Sources {
		color.New(color.Faint).Printf("  [%d] %s (chunk %d, relevance %.2f)\n", i+1, src.DocumentName, src.ChunkID, src.Relevance)
	}
}
