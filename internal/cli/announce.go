package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/inkwell-go/internal/client"
)

var (
	announceDetails    string
	announceGuidelines string
)

var announceCmd = &cobra.Command{
	Use:   "announce <event>",
	Short: "Compose a short announcement",
	Long: `Compose a short announcement for an event. The server drafts the text,
grades it, and revises once if the first draft fails. No web research
is involved; the result returns synchronously.

Examples:
  inkwell announce "v2.0 release" --details "New pipeline, faster grading"
  inkwell announce "office move" --details "We moved to Berlin" --guidelines "casual tone"`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnounce,
}

func init() {
	announceCmd.Flags().StringVar(&announceDetails, "details", "", "facts the announcement must cover")
	announceCmd.Flags().StringVar(&announceGuidelines, "guidelines", "", "tone and style guidance")
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ann, err := apiClient.Announce(ctx, client.AnnounceRequest{
		Event:      args[0],
		Details:    announceDetails,
		Guidelines: announceGuidelines,
	})
	if err != nil {
		return fmt.Errorf("announce: %w", err)
	}

	fmt.Println(ann.Text)

	if !ann.Pass && verbose {
		fmt.Println("\nGrader did not pass the final draft. Missing:")
		for _, q := range ann.FollowUpQueries {
			fmt.Printf("  - %s\n", q)
		}
	}
	return nil
}
