package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/inkwell-go/internal/models"
)

// outlineItem is the wire shape of one planned section.
type outlineItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// gradeResult is the wire shape of the grader verdict.
type gradeResult struct {
	Grade           string   `json:"grade"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// GenerateOutline plans the sections of a document about topic. The first
// and last returned sections are marked as non-researching by NewOutline.
func (m *Model) GenerateOutline(ctx context.Context, topic, organization string) (models.Outline, error) {
	systemPrompt := `You are a research article planner. Plan the sections of a long-form article.
Respond with a JSON array only, no prose: [{"title": "...", "description": "..."}]
- The first section must be an introduction and the last a conclusion.
- Each description is a short research brief for that section (1-2 sentences).
- Plan between 4 and 8 sections.`

	userPrompt := fmt.Sprintf(`Topic: %s

Organizational guidance:
%s

Sections:`, topic, orDefault(organization, "none"))

	completion, err := m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return models.Outline{}, fmt.Errorf("generate outline: %w", err)
	}

	var items []outlineItem
	if err := decodeStructured(completion, &items); err != nil {
		return models.Outline{}, fmt.Errorf("generate outline: %w", err)
	}
	if len(items) < 3 {
		return models.Outline{}, fmt.Errorf("generate outline: %w: %d sections, need at least 3", ErrMalformedOutput, len(items))
	}

	sections := make([]models.Section, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Title) == "" {
			return models.Outline{}, fmt.Errorf("generate outline: %w: section with empty title", ErrMalformedOutput)
		}
		sections = append(sections, models.Section{
			Title:       strings.TrimSpace(it.Title),
			Description: strings.TrimSpace(it.Description),
		})
	}

	return models.NewOutline(topic, sections), nil
}

// GenerateQueries produces exactly count search queries covering distinct
// facets of a section topic.
func (m *Model) GenerateQueries(ctx context.Context, topic string, count int, organization string) ([]string, error) {
	systemPrompt := fmt.Sprintf(`You are a research assistant. Generate web search queries for researching a section of an article.
Respond with a JSON array of exactly %d query strings, no prose: ["...", "..."]
Each query must target a distinct facet of the topic.`, count)

	userPrompt := fmt.Sprintf(`Section topic:
%s

Document context:
%s

Queries:`, topic, orDefault(organization, "none"))

	completion, err := m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}

	var queries []string
	if err := decodeStructured(completion, &queries); err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}
	if len(queries) < count {
		return nil, fmt.Errorf("generate queries: %w: got %d queries, want %d", ErrMalformedOutput, len(queries), count)
	}
	queries = queries[:count]
	for i, q := range queries {
		if strings.TrimSpace(q) == "" {
			return nil, fmt.Errorf("generate queries: %w: empty query at %d", ErrMalformedOutput, i)
		}
		queries[i] = strings.TrimSpace(q)
	}

	return queries, nil
}

// DraftSection writes or revises one section. When existingDraft is
// non-empty, the prompt instructs the model to synthesize the prior draft
// with the new research context rather than discard it.
func (m *Model) DraftSection(ctx context.Context, title, description, researchContext, existingDraft, guidelines string) (string, error) {
	systemPrompt := `You are a long-form article writer. Write one section of an article in markdown.
Write only the section body, no heading: the title is rendered separately.
Ground every claim in the provided research context.`

	var b strings.Builder
	fmt.Fprintf(&b, "Section title: %s\n\nSection brief:\n%s\n\n", title, description)
	if guidelines != "" {
		fmt.Fprintf(&b, "Writing guidelines:\n%s\n\n", guidelines)
	}
	fmt.Fprintf(&b, "Research context:\n%s\n\n", orDefault(researchContext, "none"))
	if existingDraft != "" {
		fmt.Fprintf(&b, `Existing draft:
%s

Revise the existing draft by weaving in what the new research context adds.
Keep everything from the existing draft that is still accurate.

Revised section:`, existingDraft)
	} else {
		b.WriteString("Section:")
	}

	draft, err := m.GenerateWithSystem(ctx, systemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("draft section: %w", err)
	}
	if strings.TrimSpace(draft) == "" {
		return "", fmt.Errorf("draft section: %w: empty draft", ErrMalformedOutput)
	}
	return strings.TrimSpace(draft), nil
}

// GradeSection evaluates a draft against its brief and returns a pass/fail
// verdict with follow-up queries on failure.
func (m *Model) GradeSection(ctx context.Context, description, draft string) (models.Verdict, error) {
	systemPrompt := `You are a strict article reviewer. Grade a section draft against its research brief.
Respond with JSON only, no prose: {"grade": "pass"|"fail", "follow_up_queries": ["..."]}
- "pass" when the draft covers the brief with specific, sourced information.
- "fail" when information gaps remain; then follow_up_queries must contain
  at least one search query targeting a concrete missing fact, not a
  restatement of the original topic.`

	userPrompt := fmt.Sprintf(`Section brief:
%s

Draft:
%s

Verdict:`, description, draft)

	completion, err := m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("grade section: %w", err)
	}

	var result gradeResult
	if err := decodeStructured(completion, &result); err != nil {
		return models.Verdict{}, fmt.Errorf("grade section: %w", err)
	}

	switch result.Grade {
	case "pass":
		return models.Verdict{Pass: true}, nil
	case "fail":
		queries := make([]string, 0, len(result.FollowUpQueries))
		for _, q := range result.FollowUpQueries {
			if strings.TrimSpace(q) != "" {
				queries = append(queries, strings.TrimSpace(q))
			}
		}
		if len(queries) == 0 {
			return models.Verdict{}, fmt.Errorf("grade section: %w: fail verdict without follow-up queries", ErrMalformedOutput)
		}
		return models.Verdict{Pass: false, FollowUpQueries: queries}, nil
	default:
		return models.Verdict{}, fmt.Errorf("grade section: %w: grade %q", ErrMalformedOutput, result.Grade)
	}
}

// ComposeAnnouncement writes a short event announcement from the supplied
// facts. Single-shot: no research loop.
func (m *Model) ComposeAnnouncement(ctx context.Context, event, details, guidelines string) (string, error) {
	systemPrompt := `You are an event announcement writer. Compose a concise announcement in markdown.
Use only the facts provided; do not invent dates, places, or names.`

	userPrompt := fmt.Sprintf(`Event: %s

Facts:
%s

Style guidelines:
%s

Announcement:`, event, details, orDefault(guidelines, "neutral, friendly"))

	text, err := m.GenerateWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("compose announcement: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("compose announcement: %w: empty completion", ErrMalformedOutput)
	}
	return strings.TrimSpace(text), nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
