package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fridaylabs/friday-kb/internal/logging"
	"github.com/fridaylabs/friday-kb/internal/provider"
	"github.com/fridaylabs/friday-kb/internal/rag"
)

// NewAskCmd constructs the `fridaykb ask` command, which answers a single
// question from the knowledge base and prints the result to stdout.
func NewAskCmd() *cobra.Command {
	var showCitations bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question answered from your knowledge base",
		Long: `Ask a natural language question. The most relevant chunks from your
ingested documents are retrieved and passed to the LLM as context, and the
answer is grounded in that context only.

Examples:
  fridaykb ask "when does my lease expire?"
  fridaykb ask --citations "what did the Q3 report say about revenue?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			kb, closeKB, err := buildKnowledgeBase(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeKB()

			engine, err := rag.NewEngine(kb.index, provider.NewCompletion(chatModel), topKFromEnv())
			if err != nil {
				return fmt.Errorf("ask: failed to create query engine: %w", err)
			}

			question := strings.Join(args, " ")
			answer, err := engine.Answer(ctx, question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), answer.Text)
			if showCitations && len(answer.Citations) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), "Sources:")
				for _, c := range answer.Citations {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s (chunk %d)\n", c.Source, c.Sequence)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showCitations, "citations", false, "Print the source chunks the answer was grounded on")

	return cmd
}
