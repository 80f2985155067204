package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/raphaelgruber/askmycourse/internal/client"
	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lecture counts and server statistics",
	Long: `Show lecture counts by status and the server's runtime statistics:
call counts and timings for transcription, embeddings, generation, vector
search, database queries and stage jobs, plus LLM token usage.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printLectureCounts(stats)
	fmt.Println()
	printServerStats(&stats.Metrics)
	return nil
}

func printLectureCounts(stats *client.Stats) {
	fmt.Printf("Lectures\n")
	fmt.Printf("═══════════════════════════════════════\n")
	if len(stats.Lectures) == 0 {
		fmt.Println("  none")
		return
	}
	statuses := make([]string, 0, len(stats.Lectures))
	for status := range stats.Lectures {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Printf("  %-13s %d\n", status, stats.Lectures[status])
	}
}

// printServerStats displays server runtime statistics.
func printServerStats(stats *metrics.Snapshot) {
	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", stats.UptimeSeconds)

	sections := []struct {
		title  string
		op     *metrics.OperationSnapshot
		tokens bool
	}{
		{"Transcription", stats.Transcription, false},
		{"Embeddings", stats.Embedding, false},
		{"LLM Generate", stats.LLMGenerate, true},
		{"Vector Search", stats.VectorSearch, false},
		{"DB Query", stats.DBQuery, false},
		{"Stage Jobs", stats.StageJob, false},
	}
	for _, s := range sections {
		if s.op == nil {
			continue
		}
		fmt.Printf("\n%s:\n", s.title)
		printOpStats(s.op)
		if s.tokens {
			printTokenStats(s.op)
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	if op.Failures > 0 {
		fmt.Printf("  Failed: %d\n", op.Failures)
	}
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Printf(", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Println()

	fmt.Printf("  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Printf(", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Println()
}
