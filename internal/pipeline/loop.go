package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/inkwell-go/internal/models"
)

// StepFunc receives advisory step labels as the loop moves through its
// stages. May be nil.
type StepFunc func(step string)

// Loop drives one section through the refinement state machine:
//
//	QUERY_GEN → RESEARCH → DRAFT → GRADE → {DONE | RESEARCH(requeued)}
//
// Query generation runs only on the very first pass; on a failing grade the
// grader's follow-up queries feed the next research pass directly. The loop
// is strictly sequential within one section and safe to run concurrently
// across sections.
type Loop struct {
	stages     Stages
	researcher *Researcher
}

// NewLoop creates a refinement loop over the given collaborators.
func NewLoop(stages Stages, researcher *Researcher) *Loop {
	return &Loop{stages: stages, researcher: researcher}
}

// Run refines a section until the grader passes it or the search depth
// budget is exhausted. The input section is taken by value; each iteration
// produces a new snapshot and the final one is returned. Stage failures
// propagate unretried; retry lives at the collaborator call sites.
func (l *Loop) Run(ctx context.Context, section models.Section, cfg Config, onStep StepFunc) (models.Section, error) {
	if err := cfg.Validate(); err != nil {
		return section, fmt.Errorf("loop config: %w", err)
	}
	report := func(format string, args ...any) {
		if onStep != nil {
			onStep(fmt.Sprintf(format, args...))
		}
	}

	report("generating queries: %s", section.Title)
	queries, err := l.stages.Queries.GenerateQueries(ctx, section.Description, cfg.NumberOfQueries, cfg.Organization)
	if err != nil {
		return section, fmt.Errorf("generate queries for %q: %w", section.Title, err)
	}

	for {
		report("researching: %s", section.Title)
		researchContext, sources, err := l.researcher.Research(ctx, queries)
		if err != nil {
			return section, fmt.Errorf("research for %q: %w", section.Title, err)
		}
		section.Sources = mergeSources(section.Sources, sources)

		report("drafting: %s", section.Title)
		draft, err := l.stages.Drafter.DraftSection(ctx, section.Title, section.Description, researchContext, section.Content, cfg.WritingGuidelines)
		if err != nil {
			return section, fmt.Errorf("draft %q: %w", section.Title, err)
		}
		section.Content = draft

		report("grading: %s", section.Title)
		verdict, err := l.stages.Grader.GradeSection(ctx, section.Description, draft)
		if err != nil {
			return section, fmt.Errorf("grade %q: %w", section.Title, err)
		}

		if verdict.Pass {
			section.Termination = models.TerminationGradedPass
			slog.Info("section passed", "section", section.Title, "iterations", section.Iterations)
			return section, nil
		}

		section.Iterations++
		if section.Iterations >= cfg.MaxSearchDepth {
			// Budget exhaustion reaches DONE exactly like a pass; the
			// termination reason is the only difference visible downstream.
			section.Termination = models.TerminationBudgetExhausted
			slog.Info("section budget exhausted", "section", section.Title, "iterations", section.Iterations)
			return section, nil
		}

		slog.Debug("section requeued", "section", section.Title, "iteration", section.Iterations, "follow_up_queries", len(verdict.FollowUpQueries))
		queries = verdict.FollowUpQueries
	}
}
