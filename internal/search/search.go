// Package search provides web search providers for the research stage.
package search

import (
	"context"
	"errors"
)

// ErrThrottled marks rate-limit responses from the search provider.
var ErrThrottled = errors.New("search throttled")

// Result is one raw search hit.
type Result struct {
	Title         string
	URL           string
	Content       string
	PublishedDate string
}

// Provider executes a single search query. Implementations hold no
// per-request state and are safe for concurrent use.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}
