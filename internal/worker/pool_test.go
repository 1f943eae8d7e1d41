package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openweb-labs/enricher/internal/enrich"
)

type fakeFetcher struct {
	mu    sync.Mutex
	fetch func(ctx context.Context, url string, timeout time.Duration) (enrich.FetchResult, error)
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (enrich.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.fetch != nil {
		return f.fetch(ctx, url, timeout)
	}
	return enrich.FetchResult{URL: url, StatusCode: 200}, nil
}

func TestFetchAllSettlesEveryURL(t *testing.T) {
	fetcher := &fakeFetcher{
		fetch: func(_ context.Context, url string, _ time.Duration) (enrich.FetchResult, error) {
			if url == "https://bad.example" {
				return enrich.FetchResult{}, errors.New("boom")
			}
			return enrich.FetchResult{URL: url, StatusCode: 200, Body: []byte("ok")}, nil
		},
	}
	pool := NewFetchPool(2)

	urls := []string{"https://a.example", "https://bad.example", "https://c.example"}
	results := pool.FetchAll(context.Background(), fetcher, urls, time.Second)

	require.Len(t, results, 3)
	require.Equal(t, urls[0], results[0].URL)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err, "a failed fetch settles with its error")
	require.NoError(t, results[2].Err, "siblings are unaffected by a failure")
}

func TestFetchAllBoundsConcurrency(t *testing.T) {
	const limit = 2
	var inflight, peak atomic.Int64

	fetcher := &fakeFetcher{
		fetch: func(context.Context, string, time.Duration) (enrich.FetchResult, error) {
			cur := inflight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inflight.Add(-1)
			return enrich.FetchResult{}, nil
		},
	}
	pool := NewFetchPool(limit)

	urls := make([]string, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.org/%d", i)
	}
	pool.FetchAll(context.Background(), fetcher, urls, time.Second)

	require.LessOrEqual(t, peak.Load(), int64(limit))
}

func TestFetchAllCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{}
	pool := NewFetchPool(1)
	results := pool.FetchAll(ctx, fetcher, []string{"https://a.example", "https://b.example"}, time.Second)

	require.Len(t, results, 2)
	for _, r := range results {
		if r.Err != nil {
			require.ErrorIs(t, r.Err, context.Canceled)
		}
	}
}
