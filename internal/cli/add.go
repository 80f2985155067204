package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var addWait bool

var addCmd = &cobra.Command{
	Use:   "add <youtube-url>",
	Short: "Add a lecture video",
	Long: `Add a lecture video. The server downloads it, transcribes it, and indexes
the transcript in the background.

Use --wait to follow the lecture through Transcribing, Indexing and Indexed.

Examples:
  askmycourse add https://www.youtube.com/watch?v=aircAruvnKk
  askmycourse add https://youtu.be/aircAruvnKk --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().BoolVarP(&addWait, "wait", "w", false, "wait until the lecture is indexed")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fileID, err := apiClient.AddLecture(ctx, args[0])
	if err != nil {
		return fmt.Errorf("add lecture: %w", err)
	}

	fmt.Printf("Added lecture %s\n", fileID)
	if !addWait {
		fmt.Printf("Use 'askmycourse lectures' to follow its status.\n")
		return nil
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunLectureProgress(apiClient, fileID)
	}
	return waitForLecture(ctx, apiClient, fileID)
}
