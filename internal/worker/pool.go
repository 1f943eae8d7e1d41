// Package worker implements the per-record enrichment pipeline and the
// bounded fetch pool it fans out through.
package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openweb-labs/enricher/internal/enrich"
)

// FetchPool bounds in-flight page fetches across a whole job, independent of
// how many records are processed in parallel.
type FetchPool struct {
	sem chan struct{}
}

// NewFetchPool creates a pool with the given concurrency ceiling.
func NewFetchPool(size int) *FetchPool {
	if size <= 0 {
		size = 1
	}
	return &FetchPool{sem: make(chan struct{}, size)}
}

// PageResult is one settled fetch from a batch.
type PageResult struct {
	URL    string
	Result enrich.FetchResult
	Err    error
}

// FetchAll dispatches every URL through the pool and waits for all of them to
// settle. One failed fetch never aborts its siblings; errors come back in the
// corresponding PageResult. The caller bounds the batch via ctx.
func (p *FetchPool) FetchAll(
	ctx context.Context,
	fetcher enrich.PageFetcher,
	urls []string,
	timeout time.Duration,
) []PageResult {
	results := make([]PageResult, len(urls))
	g := new(errgroup.Group)
	for i, u := range urls {
		results[i].URL = u
		g.Go(func() error {
			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return nil
			}
			defer func() { <-p.sem }()
			res, err := fetcher.Fetch(ctx, u, timeout)
			results[i].Result = res
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait() // goroutines report through results, never an error
	return results
}
