// Package cli provides the command-line interface for inkwell.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/inkwell-go/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	// API client, created before every command runs
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Research-backed content generation",
	Long: `Inkwell generates long-form articles through a research and refinement
pipeline: it plans an outline, searches the web per section, drafts, and
grades each draft until it passes or the search budget runs out.

The CLI talks to a running inkwell server. Point it at one with --server
or the INKWELL_SERVER_URL environment variable.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server URL (default from INKWELL_SERVER_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(announceCmd)
	rootCmd.AddCommand(statsCmd)
}
