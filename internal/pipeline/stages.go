// Package pipeline implements the iterative content generation pipeline:
// outline planning, per-section research/draft/grade refinement, and final
// document assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/inkwell-go/internal/llm"
	"github.com/raphaelgruber/inkwell-go/internal/models"
	"github.com/raphaelgruber/inkwell-go/internal/retry"
	"github.com/raphaelgruber/inkwell-go/internal/search"
)

// Config is the per-job configuration consumed by the pipeline. Validated
// by the caller before any section begins.
type Config struct {
	// MaxSearchDepth bounds research/draft/grade cycles per section.
	// A value of 1 grades each section once with no opportunity to loop.
	MaxSearchDepth int
	// NumberOfQueries is generated for a section's first research pass.
	NumberOfQueries int
	// WritingGuidelines is free-text style guidance passed to the drafter.
	WritingGuidelines string
	// Organization is document-level structural guidance for planning
	// and query generation.
	Organization string
	// SectionConcurrency caps how many section loops run at once.
	SectionConcurrency int
}

// Validate checks the numeric bounds.
func (c Config) Validate() error {
	if c.MaxSearchDepth < 1 {
		return fmt.Errorf("max search depth must be >= 1, got %d", c.MaxSearchDepth)
	}
	if c.NumberOfQueries < 1 {
		return fmt.Errorf("number of queries must be >= 1, got %d", c.NumberOfQueries)
	}
	return nil
}

// OutlineGenerator plans the sections of a document.
type OutlineGenerator interface {
	GenerateOutline(ctx context.Context, topic, organization string) (models.Outline, error)
}

// QueryGenerator produces search queries for a section's first pass.
type QueryGenerator interface {
	GenerateQueries(ctx context.Context, topic string, count int, organization string) ([]string, error)
}

// Drafter writes or revises section text. A non-empty existingDraft must be
// synthesized with the new context, not discarded.
type Drafter interface {
	DraftSection(ctx context.Context, title, description, researchContext, existingDraft, guidelines string) (string, error)
}

// Grader evaluates a draft against its brief.
type Grader interface {
	GradeSection(ctx context.Context, description, draft string) (models.Verdict, error)
}

// Stages bundles the model-backed collaborators of the refinement loop.
type Stages struct {
	Outline OutlineGenerator
	Queries QueryGenerator
	Drafter Drafter
	Grader  Grader
}

// StagesFromModel builds the stage set from a single LLM model, which
// implements all four contracts.
func StagesFromModel(m *llm.Model) Stages {
	return Stages{Outline: m, Queries: m, Drafter: m, Grader: m}
}

// Transient reports whether an error came from provider throttling and is
// worth retrying. Malformed-output errors are excluded explicitly: a bad
// prompt will not self-correct.
func Transient(err error) bool {
	if errors.Is(err, llm.ErrMalformedOutput) {
		return false
	}
	return errors.Is(err, llm.ErrThrottled) || errors.Is(err, search.ErrThrottled)
}

// WithRetry wraps every stage with the retry policy so throttled calls back
// off uniformly across the pipeline.
func WithRetry(s Stages, p retry.Policy) Stages {
	return Stages{
		Outline: retryOutline{s.Outline, p},
		Queries: retryQueries{s.Queries, p},
		Drafter: retryDrafter{s.Drafter, p},
		Grader:  retryGrader{s.Grader, p},
	}
}

type retryOutline struct {
	next   OutlineGenerator
	policy retry.Policy
}

func (r retryOutline) GenerateOutline(ctx context.Context, topic, organization string) (models.Outline, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (models.Outline, error) {
		return r.next.GenerateOutline(ctx, topic, organization)
	})
}

type retryQueries struct {
	next   QueryGenerator
	policy retry.Policy
}

func (r retryQueries) GenerateQueries(ctx context.Context, topic string, count int, organization string) ([]string, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) ([]string, error) {
		return r.next.GenerateQueries(ctx, topic, count, organization)
	})
}

type retryDrafter struct {
	next   Drafter
	policy retry.Policy
}

func (r retryDrafter) DraftSection(ctx context.Context, title, description, researchContext, existingDraft, guidelines string) (string, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
		return r.next.DraftSection(ctx, title, description, researchContext, existingDraft, guidelines)
	})
}

type retryGrader struct {
	next   Grader
	policy retry.Policy
}

func (r retryGrader) GradeSection(ctx context.Context, description, draft string) (models.Verdict, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (models.Verdict, error) {
		return r.next.GradeSection(ctx, description, draft)
	})
}

// WithRetryComposer wraps the announcement composer with the same policy.
// It lives outside Stages because only the announcer consumes it, but
// composing is an external-model call like every stage and backs off the
// same way.
func WithRetryComposer(c Composer, p retry.Policy) Composer {
	return retryComposer{c, p}
}

type retryComposer struct {
	next   Composer
	policy retry.Policy
}

func (r retryComposer) ComposeAnnouncement(ctx context.Context, event, details, guidelines string) (string, error) {
	return retry.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
		return r.next.ComposeAnnouncement(ctx, event, details, guidelines)
	})
}
