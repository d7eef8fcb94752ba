package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/inkwell-go/internal/models"
)

// Composer writes single-shot announcement text.
type Composer interface {
	ComposeAnnouncement(ctx context.Context, event, details, guidelines string) (string, error)
}

// Announcer is the no-research path: compose from supplied facts, grade
// once, and revise a single time if the grade fails. No loop, no budget.
type Announcer struct {
	composer Composer
	drafter  Drafter
	grader   Grader
}

// NewAnnouncer creates an announcement composer.
func NewAnnouncer(composer Composer, drafter Drafter, grader Grader) *Announcer {
	return &Announcer{composer: composer, drafter: drafter, grader: grader}
}

// Compose writes an announcement and returns the final text along with the
// grader's verdict on it.
func (a *Announcer) Compose(ctx context.Context, event, details, guidelines string) (string, models.Verdict, error) {
	text, err := a.composer.ComposeAnnouncement(ctx, event, details, guidelines)
	if err != nil {
		return "", models.Verdict{}, fmt.Errorf("compose: %w", err)
	}

	brief := fmt.Sprintf("An announcement for %q covering: %s", event, details)
	verdict, err := a.grader.GradeSection(ctx, brief, text)
	if err != nil {
		return "", models.Verdict{}, fmt.Errorf("grade announcement: %w", err)
	}
	if verdict.Pass {
		return text, verdict, nil
	}

	// One revision pass, using the identified gaps as extra context.
	gaps := "Address these gaps:\n- " + strings.Join(verdict.FollowUpQueries, "\n- ")
	revised, err := a.drafter.DraftSection(ctx, event, brief, gaps, text, guidelines)
	if err != nil {
		return "", models.Verdict{}, fmt.Errorf("revise announcement: %w", err)
	}

	finalVerdict, err := a.grader.GradeSection(ctx, brief, revised)
	if err != nil {
		return "", models.Verdict{}, fmt.Errorf("grade revision: %w", err)
	}
	return revised, finalVerdict, nil
}
