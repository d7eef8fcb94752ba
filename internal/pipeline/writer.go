package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/raphaelgruber/inkwell-go/internal/models"
)

// ProgressFunc receives body-completion fraction (0..1) and an advisory
// step label. Called after every stage transition; may be nil.
type ProgressFunc func(fraction float64, step string)

// Writer runs the whole document pipeline: outline planning, concurrent
// per-section refinement, and final assembly.
type Writer struct {
	stages Stages
	loop   *Loop
}

// NewWriter creates a document writer.
func NewWriter(stages Stages, researcher *Researcher) *Writer {
	return &Writer{
		stages: stages,
		loop:   NewLoop(stages, researcher),
	}
}

// PlanOutline produces the section plan for a topic.
func (w *Writer) PlanOutline(ctx context.Context, topic string, cfg Config) (models.Outline, error) {
	return w.stages.Outline.GenerateOutline(ctx, topic, cfg.Organization)
}

// GenerateBody runs the refinement loop for every researching section.
// Sections have no data dependency on each other, so loops run concurrently
// up to cfg.SectionConcurrency. The first loop error cancels the remaining
// work and fails the batch; completion order is otherwise unspecified.
func (w *Writer) GenerateBody(ctx context.Context, outline models.Outline, cfg Config, onProgress ProgressFunc) ([]models.Section, error) {
	body := outline.BodySections()
	if len(body) == 0 {
		return nil, nil
	}

	concurrency := cfg.SectionConcurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	if concurrency > len(body) {
		concurrency = len(body)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		completed atomic.Int32
		firstErr  error
		errOnce   sync.Once
	)
	done := make([]models.Section, len(body))

	report := func(step string) {
		if onProgress != nil {
			onProgress(float64(completed.Load())/float64(len(body)), step)
		}
	}

	type workItem struct {
		pos     int
		section models.Section
	}
	workChan := make(chan workItem, len(body))
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workChan {
				if ctx.Err() != nil {
					return
				}

				section, err := w.loop.Run(ctx, item.section, cfg, report)
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}

				done[item.pos] = section
				n := completed.Add(1)
				slog.Info("section complete", "section", section.Title, "termination", section.Termination, "progress", fmt.Sprintf("%d/%d", n, len(body)))
				report("completed: " + section.Title)
			}
		}()
	}

	for i, s := range body {
		workChan <- workItem{pos: i, section: s}
	}
	close(workChan)

	// Join: assembly must wait for every section to reach DONE.
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generate body: %w", err)
	}
	return done, nil
}

// Finalize drafts the introduction and conclusion from the completed body
// sections and assembles the full document. Intro and conclusion never
// research; their context is the body itself.
func (w *Writer) Finalize(ctx context.Context, outline models.Outline, body []models.Section, cfg Config, onProgress ProgressFunc) ([]models.Section, string, error) {
	digest := bodyDigest(body)

	byIndex := make(map[int]models.Section, len(outline.Sections))
	for _, s := range body {
		byIndex[s.Index] = s
	}

	for _, planned := range outline.Sections {
		if planned.RequiresResearch {
			continue
		}
		if onProgress != nil {
			onProgress(1, "drafting: "+planned.Title)
		}
		content, err := w.stages.Drafter.DraftSection(ctx, planned.Title, planned.Description, digest, "", cfg.WritingGuidelines)
		if err != nil {
			return nil, "", fmt.Errorf("draft %q: %w", planned.Title, err)
		}
		planned.Content = content
		byIndex[planned.Index] = planned
	}

	sections := make([]models.Section, 0, len(byIndex))
	for _, s := range byIndex {
		sections = append(sections, s)
	}
	slices.SortFunc(sections, func(a, b models.Section) int {
		return a.Index - b.Index
	})

	return sections, AssembleDocument(outline.Title, sections), nil
}

// bodyDigest concatenates completed body sections for intro/conclusion
// synthesis.
func bodyDigest(body []models.Section) string {
	var b strings.Builder
	for _, s := range body {
		fmt.Fprintf(&b, "%s:\n%s\n\n", s.Title, s.Content)
	}
	return strings.TrimSpace(b.String())
}

// AssembleDocument joins sections in reading order into one markdown
// document with a deduplicated source list.
func AssembleDocument(title string, sections []models.Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.Title, s.Content)
	}

	var sources []models.Source
	for _, s := range sections {
		sources = mergeSources(sources, s.Sources)
	}
	if len(sources) > 0 {
		b.WriteString("## Sources\n\n")
		for _, src := range sources {
			if src.Date != "" {
				fmt.Fprintf(&b, "- %s — %s (%s)\n", src.Title, src.URL, src.Date)
			} else {
				fmt.Fprintf(&b, "- %s — %s\n", src.Title, src.URL)
			}
		}
	}

	return strings.TrimSpace(b.String()) + "\n"
}
