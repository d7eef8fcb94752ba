package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/raphaelgruber/inkwell-go/internal/models"
	"github.com/raphaelgruber/inkwell-go/internal/retry"
	"github.com/raphaelgruber/inkwell-go/internal/search"
)

// noRetry keeps tests fast: single attempt, no sleeping.
func noRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 1}
}

// stubQueries returns a fixed query list and counts invocations.
type stubQueries struct {
	mu      sync.Mutex
	calls   int
	queries []string
	err     error
}

func (s *stubQueries) GenerateQueries(ctx context.Context, topic string, count int, organization string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.queries, nil
}

// stubDrafter produces numbered drafts and records the existing draft
// passed on each call.
type stubDrafter struct {
	mu       sync.Mutex
	calls    int
	existing []string
	err      error
}

func (s *stubDrafter) DraftSection(ctx context.Context, title, description, researchContext, existingDraft, guidelines string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	s.existing = append(s.existing, existingDraft)
	return fmt.Sprintf("draft %d of %s", s.calls, title), nil
}

// scriptGrader pops verdicts in order; once the script is exhausted it
// passes everything.
type scriptGrader struct {
	mu       sync.Mutex
	calls    int
	verdicts []models.Verdict
	err      error
}

func (s *scriptGrader) GradeSection(ctx context.Context, description, draft string) (models.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return models.Verdict{}, s.err
	}
	if len(s.verdicts) == 0 {
		return models.Verdict{Pass: true}, nil
	}
	v := s.verdicts[0]
	s.verdicts = s.verdicts[1:]
	return v, nil
}

func fail(queries ...string) models.Verdict {
	return models.Verdict{Pass: false, FollowUpQueries: queries}
}

func pass() models.Verdict {
	return models.Verdict{Pass: true}
}

// stubProvider serves canned results per query and logs the order queries
// were issued in.
type stubProvider struct {
	mu      sync.Mutex
	issued  []string
	results map[string][]search.Result
	errs    map[string]error
}

func (s *stubProvider) Search(ctx context.Context, query string) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued = append(s.issued, query)
	if err, ok := s.errs[query]; ok {
		return nil, err
	}
	return s.results[query], nil
}

func (s *stubProvider) issuedQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.issued...)
}

// stubOutline returns a fixed outline.
type stubOutline struct {
	outline models.Outline
	err     error
}

func (s *stubOutline) GenerateOutline(ctx context.Context, topic, organization string) (models.Outline, error) {
	if s.err != nil {
		return models.Outline{}, s.err
	}
	return s.outline, nil
}

func hit(title, url, content string) search.Result {
	return search.Result{Title: title, URL: url, Content: content, PublishedDate: "2025-06-01"}
}

func testConfig(depth int) Config {
	return Config{
		MaxSearchDepth:     depth,
		NumberOfQueries:    2,
		SectionConcurrency: 2,
	}
}

func researchSection(title string) models.Section {
	return models.Section{
		Index:            1,
		Title:            title,
		Description:      "brief for " + title,
		RequiresResearch: true,
	}
}
