// Package brave implements the search client against the Brave web search API.
package brave

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openweb-labs/enricher/internal/enrich"
	"github.com/openweb-labs/enricher/internal/metrics"
)

const defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Config controls search client behavior.
type Config struct {
	// APIKey is the subscription token. Empty is a supported mode: every
	// search returns zero hits without touching the network.
	APIKey   string
	Endpoint string
	// RPS and Burst bound the request rate against the metered API.
	RPS   float64
	Burst int
	// Timeout applies per HTTP request.
	Timeout time.Duration
	// BackoffBase seeds the single retry delay for transient failures.
	BackoffBase time.Duration
}

// Factory builds per-job clients that share one rate limiter and transport,
// so concurrent jobs still respect the API-level rate cap.
type Factory struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewFactory constructs a Factory.
func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// ForJob returns a client charging calls against the given budget.
func (f *Factory) ForJob(budget *enrich.Budget) *Client {
	return &Client{
		cfg:     f.cfg,
		http:    f.http,
		limiter: f.limiter,
		budget:  budget,
		logger:  f.logger,
	}
}

// Client issues one external search call per query string, enforcing the
// job-wide query budget and the shared rate limit. A quota rejection latches:
// every later call for the job short-circuits without network I/O.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	budget  *enrich.Budget
	quota   atomic.Bool
	logger  *zap.Logger
}

type braveResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
	Results []braveResult `json:"results"`
}

// Search performs one web search. Once the budget is exhausted it
// short-circuits with enrich.ErrBudgetExhausted without issuing a call.
func (c *Client) Search(ctx context.Context, query string, count int) ([]enrich.SearchHit, error) {
	if c.cfg.APIKey == "" {
		// Running without a credential is a supported degraded mode.
		return nil, nil
	}
	if c.quota.Load() {
		return nil, enrich.ErrQuotaExceeded
	}
	if c.budget != nil && !c.budget.TryAcquire() {
		return nil, enrich.ErrBudgetExhausted
	}

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}

	hits, err := c.searchOnce(ctx, query, count)
	if err != nil && isTransient(err) {
		c.logger.Warn("transient search failure, retrying once",
			zap.String("query", query), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("search retry: %w", ctx.Err())
		case <-time.After(backoff(c.cfg.BackoffBase)):
		}
		hits, err = c.searchOnce(ctx, query, count)
	}
	switch {
	case err == nil:
		metrics.ObserveSearch("ok")
	case errors.Is(err, enrich.ErrQuotaExceeded):
		c.quota.Store(true)
		metrics.ObserveSearch("quota")
	case errors.Is(err, enrich.ErrMalformedResponse):
		metrics.ObserveSearch("malformed")
	default:
		metrics.ObserveSearch("error")
	}
	return hits, err
}

func (c *Client) searchOnce(ctx context.Context, query string, count int) ([]enrich.SearchHit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(count))
	q.Set("result_filter", "web")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("X-Subscription-Token", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("search request: %w", err)}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("search status %d: %w", resp.StatusCode, enrich.ErrQuotaExceeded)
	case resp.StatusCode >= 500:
		return nil, &transientError{err: fmt.Errorf("search status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("search status %d: %w", resp.StatusCode, enrich.ErrMalformedResponse)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("read search response: %w", err)}
	}
	var payload braveResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", enrich.ErrMalformedResponse)
	}

	results := payload.Web.Results
	if len(results) == 0 {
		results = payload.Results
	}
	hits := make([]enrich.SearchHit, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		hits = append(hits, enrich.SearchHit{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Description,
		})
	}
	return hits, nil
}

// transientError marks failures eligible for the single bounded retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func backoff(base time.Duration) time.Duration {
	jitter, err := rand.Int(rand.Reader, big.NewInt(int64(base)))
	if err != nil {
		return base
	}
	return base + time.Duration(jitter.Int64())
}
