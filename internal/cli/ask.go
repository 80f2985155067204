package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/askmycourse/internal/models"
	"github.com/spf13/cobra"
)

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed lectures",
	Long: `Ask a question about the indexed lectures and get an answer with the lecture
moments it was based on.

Questions in the same session see the earlier questions and answers, so
follow-ups like "can you give an example?" work.

Examples:
  askmycourse ask "What is backpropagation?"
  askmycourse ask "Can you give an example?" --session study-group`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "chat session ID (default: server default session)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	answer, err := apiClient.Ask(context.Background(), args[0], askSession)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Println(answer.Answer)
	if len(answer.Sources) == 0 {
		return nil
	}

	fmt.Println("\nSources:")
	for _, src := range answer.Sources {
		fmt.Printf("  - %s\n", formatSource(src))
		if verbose {
			fmt.Printf("    %s\n", src.PageContent)
		}
	}
	return nil
}

// formatSource renders a chunk citation as "source @ start-end".
func formatSource(doc models.Document) string {
	return fmt.Sprintf("%s @ %s-%s",
		doc.Metadata.Source,
		models.FormatTimestamp(doc.Metadata.StartTime),
		models.FormatTimestamp(doc.Metadata.EndTime))
}
