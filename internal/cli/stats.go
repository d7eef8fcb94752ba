package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show task counts by status and server operation timings.

Examples:
  inkwell stats
  inkwell stats --verbose`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	stats, err := apiClient.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Println("Tasks:")
	if len(stats.Tasks) == 0 {
		fmt.Println("  none")
	} else {
		statuses := make([]string, 0, len(stats.Tasks))
		for s := range stats.Tasks {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Printf("  %-14s %d\n", s, stats.Tasks[s])
		}
	}

	if verbose && len(stats.Metrics) > 0 {
		var pretty map[string]any
		if err := json.Unmarshal(stats.Metrics, &pretty); err == nil {
			raw, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Printf("\nMetrics:\n%s\n", raw)
		}
	}
	return nil
}
