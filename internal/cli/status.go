package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/inkwell-go/internal/client"
)

var (
	statusWatch bool
	statusFull  bool
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the state of a generation task",
	Long: `Show the current state of a generation task, including outline,
per-section refinement results, and the finished document once available.

Examples:
  inkwell status ab12cd34
  inkwell status ab12cd34 --watch
  inkwell status ab12cd34 --full`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "stream updates until the task finishes")
	statusCmd.Flags().BoolVar(&statusFull, "full", false, "print the finished document")
}

func runStatus(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	ctx := context.Background()

	if statusWatch {
		return apiClient.Watch(ctx, taskID, func(t client.Task) error {
			fmt.Printf("[%3.0f%%] %-13s %s\n", t.Progress*100, t.Status, t.Step)
			return nil
		})
	}

	task, err := apiClient.GetArticle(ctx, taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	printTask(task)
	return nil
}

func printTask(task *client.Task) {
	fmt.Printf("Task: %s\n", task.TaskID)
	fmt.Printf("  Topic: %s\n", task.Topic)
	fmt.Printf("  Status: %s\n", task.Status)
	fmt.Printf("  Progress: %.0f%%\n", task.Progress*100)
	if task.Step != "" {
		fmt.Printf("  Step: %s\n", task.Step)
	}
	fmt.Printf("  Created: %s\n", task.CreatedAt.Format(time.RFC3339))
	if !task.ExpiresAt.IsZero() {
		fmt.Printf("  Expires: %s\n", task.ExpiresAt.Format(time.RFC3339))
	}

	if task.Error != nil && *task.Error != "" {
		if task.ErrorKind != "" {
			fmt.Printf("  Error (%s): %s\n", task.ErrorKind, *task.Error)
		} else {
			fmt.Printf("  Error: %s\n", *task.Error)
		}
	}

	if task.Outline != nil {
		fmt.Printf("\nOutline: %s\n", task.Outline.Title)
		for _, s := range task.Outline.Sections {
			marker := " "
			if s.RequiresResearch {
				marker = "*"
			}
			fmt.Printf("  %d. %s %s\n", s.Index+1, marker, s.Title)
		}
	}

	if len(task.Sections) > 0 {
		fmt.Println("\nSections:")
		for _, s := range task.Sections {
			line := fmt.Sprintf("  %d. %s", s.Index+1, s.Title)
			if s.RequiresResearch {
				line += fmt.Sprintf(" (%d iterations, %s, %d sources)",
					s.Iterations, s.Termination, len(s.Sources))
			}
			fmt.Println(line)
		}
	}

	if task.Document != "" {
		if statusFull {
			fmt.Println()
			fmt.Println(task.Document)
		} else {
			fmt.Printf("\nDocument: %d characters (use --full to print)\n", len(task.Document))
		}
	}
}
