package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var lecturesCmd = &cobra.Command{
	Use:   "lectures [file-id]",
	Short: "List lectures or show one lecture",
	Long: `List lectures that have started transcription, or show one lecture with its
status history.

Examples:
  askmycourse lectures
  askmycourse lectures 6f1c...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLectures,
}

func runLectures(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	if len(args) == 1 {
		return showLecture(ctx, args[0])
	}

	lectures, err := apiClient.ListLectures(ctx)
	if err != nil {
		return fmt.Errorf("list lectures: %w", err)
	}
	if len(lectures) == 0 {
		fmt.Println("No lectures found")
		return nil
	}

	fmt.Printf("%-36s %-13s %s\n", "ID", "STATUS", "TITLE")
	fmt.Println("------------------------------------------------------------------------")
	for _, l := range lectures {
		fmt.Printf("%-36s %-13s %s\n", l.ID, l.Status, l.Title)
		if verbose {
			fmt.Printf("  %s\n", l.Source)
		}
	}
	return nil
}

func showLecture(ctx context.Context, fileID string) error {
	lecture, err := apiClient.GetLecture(ctx, fileID)
	if err != nil {
		return fmt.Errorf("get lecture: %w", err)
	}

	fmt.Printf("Lecture: %s\n", fileID)
	if lecture.Title != nil {
		fmt.Printf("  Title: %s\n", *lecture.Title)
	}
	if lecture.Source != nil {
		fmt.Printf("  Source: %s\n", *lecture.Source)
	}
	status := lecture.StatusName()
	if status == "" {
		status = "Importing"
	}
	fmt.Printf("  Status: %s\n", status)

	if len(lecture.StatusHistory) > 0 {
		fmt.Println("\nHistory:")
		for _, change := range lecture.StatusHistory {
			fmt.Printf("  %s  %s\n", change.At.Format(time.RFC3339), change.Status)
		}
	}
	return nil
}
