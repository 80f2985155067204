// Package cli provides the command-line interface for askmycourse.
package cli

import (
	"github.com/raphaelgruber/askmycourse/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "askmycourse",
	Short: "Ask questions about your course lectures",
	Long: `askmycourse ingests lecture videos (download, transcription, chunking and
indexing) and answers questions about them, citing the lecture moments it used.

All commands talk to a running askmycourse-server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $ASKMYCOURSE_SERVER_URL or http://localhost:8585)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(lecturesCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
}
