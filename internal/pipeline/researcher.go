package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/raphaelgruber/inkwell-go/internal/models"
	"github.com/raphaelgruber/inkwell-go/internal/retry"
	"github.com/raphaelgruber/inkwell-go/internal/search"
)

// Researcher executes a batch of search queries and reduces the raw hits
// into one context string. It holds no state between calls; each loop
// re-entry invokes it with a fresh query list.
type Researcher struct {
	provider   search.Provider
	policy     retry.Policy
	charBudget int
}

// NewResearcher creates a researcher with a per-source character budget.
func NewResearcher(provider search.Provider, policy retry.Policy, charBudget int) *Researcher {
	if charBudget <= 0 {
		charBudget = 4000
	}
	return &Researcher{
		provider:   provider,
		policy:     policy,
		charBudget: charBudget,
	}
}

// Research runs all queries in parallel and reduces the results. A failed
// individual query is logged and skipped; the batch succeeds with whatever
// was collected, down to an empty context string. Duplicate sources across
// queries are collapsed by URL.
func (r *Researcher) Research(ctx context.Context, queries []string) (string, []models.Source, error) {
	type queryResult struct {
		results []search.Result
		err     error
	}

	resultsByQuery := make([]queryResult, len(queries))
	var wg sync.WaitGroup

	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			results, err := retry.Do(ctx, r.policy, func(ctx context.Context) ([]search.Result, error) {
				return r.provider.Search(ctx, q)
			})
			resultsByQuery[i] = queryResult{results: results, err: err}
		}(i, q)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return "", nil, fmt.Errorf("research: %w", err)
	}

	// Reduce in query order so context composition is deterministic.
	seen := make(map[string]bool)
	var sources []models.Source
	var b strings.Builder

	for i, qr := range resultsByQuery {
		if qr.err != nil {
			slog.Warn("search query failed, skipping", "query", queries[i], "error", qr.err)
			continue
		}
		for _, hit := range qr.results {
			if hit.URL == "" || seen[hit.URL] {
				continue
			}
			seen[hit.URL] = true

			sources = append(sources, models.Source{
				Title: hit.Title,
				URL:   hit.URL,
				Date:  hit.PublishedDate,
			})

			content := truncateToBudget(hit.Content, r.charBudget)
			fmt.Fprintf(&b, "Source: %s (%s)\n%s\n\n", hit.Title, hit.URL, content)
		}
	}

	slog.Debug("research batch reduced", "queries", len(queries), "sources", len(sources), "context_len", b.Len())
	return strings.TrimSpace(b.String()), sources, nil
}

// truncateToBudget caps content at budget bytes, backing up to a rune
// boundary so a multi-byte character is never split.
func truncateToBudget(content string, budget int) string {
	if len(content) <= budget {
		return content
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

// mergeSources appends new citations, collapsing duplicates by URL.
func mergeSources(existing, fresh []models.Source) []models.Source {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s.URL] = true
	}
	for _, s := range fresh {
		if !seen[s.URL] {
			seen[s.URL] = true
			existing = append(existing, s)
		}
	}
	return existing
}
