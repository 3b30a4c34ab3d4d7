// Package pipeline runs the discover and enrich stages over the catalog.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zl-scraper/internal/fetcher"
	"github.com/sells-group/zl-scraper/internal/resilience"
)

// errPersist marks a store failure inside a scheduled task. Unlike fetch
// and parse failures it aborts the stage.
var errPersist = eris.New("pipeline: persist failed")

// fetchChain wraps a Fetcher with the retry controller.
type fetchChain struct {
	fetcher fetcher.Fetcher
	retry   resilience.RetryConfig
}

func newFetchChain(f fetcher.Fetcher, cfg resilience.RetryConfig, stage string) fetchChain {
	if cfg.OnAttempt == nil {
		cfg.OnAttempt = resilience.AttemptLogger(stage)
	}
	return fetchChain{fetcher: f, retry: cfg}
}

// get fetches url, repeating the whole tier waterfall on transient failure.
func (c fetchChain) get(ctx context.Context, url string) (*fetcher.Response, error) {
	return resilience.DoVal(ctx, c.retry, url, func(ctx context.Context) (*fetcher.Response, error) {
		return c.fetcher.Fetch(ctx, url)
	})
}
