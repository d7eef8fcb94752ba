package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <task-id>",
	Short: "Rerun a finished generation task",
	Long: `Rerun a finished task with the same topic. Outline, sections, and the
document are discarded and the pipeline runs again. Settings can be
overridden with the same flags as generate; a running task is refused.

Examples:
  inkwell regenerate ab12cd34
  inkwell regenerate ab12cd34 --depth 3
  inkwell regenerate ab12cd34 --profile writing.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runRegenerate,
}

func init() {
	regenerateCmd.Flags().IntVarP(&generateDepth, "depth", "d", 0, "max refinement iterations per section")
	regenerateCmd.Flags().IntVarP(&generateQueries, "queries", "q", 0, "search queries per research round")
	regenerateCmd.Flags().StringVar(&generateGuidelines, "guidelines", "", "writing guidelines for the drafter")
	regenerateCmd.Flags().StringVar(&generateOrganization, "organization", "", "document organization instructions")
	regenerateCmd.Flags().StringVarP(&generateProfile, "profile", "p", "", "YAML profile file with writing settings")
	regenerateCmd.Flags().StringVarP(&generateOutputFile, "output", "o", "", "write the finished document to a file")
	regenerateCmd.Flags().BoolVar(&generateDetach, "detach", false, "restart the job and return immediately")
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	req, err := buildGenerateRequest("")
	if err != nil {
		return err
	}

	ctx := context.Background()
	task, err := apiClient.Regenerate(ctx, args[0], req)
	if err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}

	fmt.Printf("Restarted task %s\n", task.TaskID)

	if generateDetach {
		fmt.Printf("Use 'inkwell status %s' to check progress.\n", task.TaskID)
		return nil
	}

	final, err := waitForTask(ctx, task)
	if err != nil {
		return err
	}
	return writeResult(final)
}
