package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect pipeline stage jobs",
	Long: `List recent pipeline stage jobs or inspect a specific job by ID.

Examples:
  askmycourse jobs           # List recent jobs
  askmycourse jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "max jobs to list")
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s %-19s %-10s %s\n", "ID", "METHOD", "STATUS", "CREATED")
	fmt.Println("----------------------------------------------------------------------------------")

	for _, job := range jobs {
		fmt.Printf("%-36s %-19s %-10s %s\n", job.ID, job.Method, job.Status, job.CreatedAt.Format("15:04:05"))
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", id)
	fmt.Printf("  Method: %s\n", job.Method)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Attempts: %d\n", job.Attempts)
	if len(job.WaitOn) > 0 {
		fmt.Printf("  Waits on: %v\n", job.WaitOn)
	}
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		if job.StartedAt != nil {
			fmt.Printf("  Duration: %s\n", job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond))
		}
	}

	if job.Error != nil && *job.Error != "" {
		fmt.Printf("  Error: %s\n", *job.Error)
	}

	if len(job.Args) > 0 {
		printJSONBlock("Args", job.Args)
	}
	if len(job.Output) > 0 {
		printJSONBlock("Output", job.Output)
	}

	return nil
}

func printJSONBlock(title string, v any) {
	data, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		return
	}
	fmt.Printf("\n%s:\n  %s\n", title, data)
}
