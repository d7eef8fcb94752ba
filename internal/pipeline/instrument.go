package pipeline

import (
	"context"

	"github.com/raphaelgruber/inkwell-go/internal/metrics"
	"github.com/raphaelgruber/inkwell-go/internal/search"
)

// TimedProvider wraps a search provider with per-query timing. Model call
// timing is recorded by the model wrapper itself, which also sees token
// usage; search only has wall time.
func TimedProvider(p search.Provider, c *metrics.Collector) search.Provider {
	return timedProvider{p, c}
}

type timedProvider struct {
	next search.Provider
	c    *metrics.Collector
}

func (t timedProvider) Search(ctx context.Context, query string) ([]search.Result, error) {
	var results []search.Result
	err := t.c.Time(metrics.OpSearch, func() error {
		var err error
		results, err = t.next.Search(ctx, query)
		return err
	})
	return results, err
}
