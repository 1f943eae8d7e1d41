// Package collyfetcher implements PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/openweb-labs/enricher/internal/enrich"
	"github.com/openweb-labs/enricher/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// MaxBodyBytes caps how much of a page is read. Search result pages past
	// a few MB are never worth scanning for emails.
	MaxBodyBytes int
}

const defaultMaxBodyBytes = 2 << 20

// hostLike decides whether a bare string plausibly names a host and path.
var hostLike = regexp.MustCompile(`\.[a-z]{2,}(/|$)`)

// Fetcher implements enrich.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET with the given timeout. Non-text content
// is rejected so binary pages never reach the extractor.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (enrich.FetchResult, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		metrics.ObservePageFetch("invalid_url")
		return enrich.FetchResult{}, err
	}

	var (
		result   enrich.FetchResult
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.MaxBodySize = f.cfg.MaxBodyBytes
	collector.WithTransport(f.transport)

	collector.OnResponse(func(r *colly.Response) {
		result = enrich.FetchResult{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := runCollector(ctx, collector, target, &fetchErr); err != nil {
		metrics.ObservePageFetch("error")
		return enrich.FetchResult{}, err
	}
	if !textual(result.ContentType) {
		metrics.ObservePageFetch("non_text")
		return enrich.FetchResult{}, fmt.Errorf("fetch %s: unsupported content type %q", target, result.ContentType)
	}
	metrics.ObservePageFetch("ok")
	return result, nil
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("fetch %s: %w", url, *fetchErr)
		}
		return nil
	}
}

// NormalizeURL fills in a missing scheme for host-like strings and rejects
// values that cannot name a page. Search snippets routinely carry bare
// hostnames.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return "", fmt.Errorf("empty url")
	case strings.HasPrefix(trimmed, "//"):
		return "https:" + trimmed, nil
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		return trimmed, nil
	case hostLike.MatchString(trimmed):
		return "https://" + trimmed, nil
	default:
		return "", fmt.Errorf("invalid url %q", raw)
	}
}

func textual(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	for _, ok := range []string{"html", "text/", "xml", "json"} {
		if strings.Contains(ct, ok) {
			return true
		}
	}
	return false
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
