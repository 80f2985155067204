package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show the questions and answers of a chat session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	session := ""
	if len(args) == 1 {
		session = args[0]
	}

	turns, err := apiClient.History(context.Background(), session)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(turns) == 0 {
		fmt.Println("No history for this session")
		return nil
	}

	for _, turn := range turns {
		fmt.Printf("Q%d: %s\n", turn.Position+1, turn.Question)
		fmt.Printf("A%d: %s\n\n", turn.Position+1, turn.Answer)
	}
	return nil
}
