package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/inkwell-go/internal/client"
)

var (
	generateDepth        int
	generateQueries      int
	generateGuidelines   string
	generateOrganization string
	generateProfile      string
	generateOutputFile   string
	generateDetach       bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <topic>",
	Short: "Generate a research-backed article",
	Long: `Generate an article on a topic. The server plans an outline, researches
each body section via web search, and refines drafts until they pass
grading or the search depth budget is exhausted.

Writing style can be tuned per invocation with flags, or loaded from a
YAML profile file with fields max_search_depth, number_of_queries,
writing_guidelines, and organization.

Examples:
  inkwell generate "The economics of remote work"
  inkwell generate "Rust vs Go" --depth 3 --queries 4
  inkwell generate "Q3 market recap" --profile writing.yaml -o recap.md
  inkwell generate "AI in healthcare" --detach`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().IntVarP(&generateDepth, "depth", "d", 0, "max refinement iterations per section")
	generateCmd.Flags().IntVarP(&generateQueries, "queries", "q", 0, "search queries per research round")
	generateCmd.Flags().StringVar(&generateGuidelines, "guidelines", "", "writing guidelines for the drafter")
	generateCmd.Flags().StringVar(&generateOrganization, "organization", "", "document organization instructions")
	generateCmd.Flags().StringVarP(&generateProfile, "profile", "p", "", "YAML profile file with writing settings")
	generateCmd.Flags().StringVarP(&generateOutputFile, "output", "o", "", "write the finished document to a file")
	generateCmd.Flags().BoolVar(&generateDetach, "detach", false, "start the job and return immediately")
}

// writingProfile mirrors the generate request fields so a profile file can
// set any subset. Flags override profile values.
type writingProfile struct {
	MaxSearchDepth    int    `yaml:"max_search_depth"`
	NumberOfQueries   int    `yaml:"number_of_queries"`
	WritingGuidelines string `yaml:"writing_guidelines"`
	Organization      string `yaml:"organization"`
}

func buildGenerateRequest(topic string) (client.GenerateRequest, error) {
	req := client.GenerateRequest{Topic: topic}

	if generateProfile != "" {
		raw, err := os.ReadFile(generateProfile)
		if err != nil {
			return req, fmt.Errorf("read profile: %w", err)
		}
		var profile writingProfile
		if err := yaml.Unmarshal(raw, &profile); err != nil {
			return req, fmt.Errorf("parse profile %s: %w", generateProfile, err)
		}
		req.MaxSearchDepth = profile.MaxSearchDepth
		req.NumberOfQueries = profile.NumberOfQueries
		req.WritingGuidelines = profile.WritingGuidelines
		req.Organization = profile.Organization
	}

	if generateDepth > 0 {
		req.MaxSearchDepth = generateDepth
	}
	if generateQueries > 0 {
		req.NumberOfQueries = generateQueries
	}
	if generateGuidelines != "" {
		req.WritingGuidelines = generateGuidelines
	}
	if generateOrganization != "" {
		req.Organization = generateOrganization
	}
	return req, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req, err := buildGenerateRequest(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	task, err := apiClient.CreateArticle(ctx, req)
	if err != nil {
		return fmt.Errorf("start generation: %w", err)
	}

	fmt.Printf("Started task %s\n", task.TaskID)

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

// waitForTask blocks until the task reaches a terminal state. On a TTY it
// renders the interactive progress bar; otherwise it prints step lines.
func waitForTask(ctx context.Context, task *client.Task) (*client.Task, error) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return runTaskProgress(apiClient, task)
	}
	return watchPlain(ctx, task)
}

// watchPlain streams snapshots and prints one line per step change.
func watchPlain(ctx context.Context, task *client.Task) (*client.Task, error) {
	final := task
	lastStep := ""
	err := apiClient.Watch(ctx, task.TaskID, func(t client.Task) error {
		if t.Step != lastStep {
			fmt.Printf("[%3.0f%%] %s\n", t.Progress*100, t.Step)
			lastStep = t.Step
		}
		final = &t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("watch task: %w", err)
	}
	if final.Status == "error" {
		return nil, taskError(final)
	}
	return final, nil
}

func taskError(task *client.Task) error {
	msg := "unknown error"
	if task.Error != nil {
		msg = *task.Error
	}
	if task.ErrorKind != "" {
		return fmt.Errorf("generation failed (%s): %s", task.ErrorKind, msg)
	}
	return fmt.Errorf("generation failed: %s", msg)
}

// writeResult prints the document or writes it to the output file.
func writeResult(task *client.Task) error {
	if task == nil || task.Document == "" {
		return nil
	}
	if generateOutputFile != "" {
		if err := os.WriteFile(generateOutputFile, []byte(task.Document), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("Wrote %s\n", generateOutputFile)
		return nil
	}
	fmt.Println()
	fmt.Println(task.Document)
	return nil
}
