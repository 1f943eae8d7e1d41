// Package metrics exposes Prometheus collectors for the enricher service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchesTotal         *prometheus.CounterVec
	pagesFetchedTotal     *prometheus.CounterVec
	emailsFoundTotal      prometheus.Counter
	jobsTotal             *prometheus.CounterVec
	recordsProcessedTotal *prometheus.CounterVec
	rateLimitDelaySeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_searches_total",
				Help: "Total search API calls, labeled by result.",
			},
			[]string{"result"},
		)

		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_pages_fetched_total",
				Help: "Total result pages fetched, labeled by status.",
			},
			[]string{"status"},
		)

		emailsFoundTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "enricher_emails_found_total",
				Help: "Total email candidates accepted into outcomes.",
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_jobs_total",
				Help: "Total jobs finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		recordsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_records_processed_total",
				Help: "Total records processed, labeled by outcome status.",
			},
			[]string{"status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "enricher_search_rate_limit_delay_seconds",
				Help:    "Histogram of search rate limit wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearch increments the search counter for the given result class.
func ObserveSearch(result string) {
	if searchesTotal != nil {
		searchesTotal.WithLabelValues(result).Inc()
	}
}

// ObservePageFetch increments the page fetch counter.
func ObservePageFetch(status string) {
	if pagesFetchedTotal != nil {
		pagesFetchedTotal.WithLabelValues(status).Inc()
	}
}

// AddEmailsFound adds accepted email candidates to the running total.
func AddEmailsFound(n int) {
	if emailsFoundTotal != nil && n > 0 {
		emailsFoundTotal.Add(float64(n))
	}
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	if jobsTotal != nil {
		jobsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveRecord increments the record counter for the given outcome status.
func ObserveRecord(status string) {
	if recordsProcessedTotal != nil {
		recordsProcessedTotal.WithLabelValues(status).Inc()
	}
}

// ObserveRateLimitDelay records a search rate limit wait.
func ObserveRateLimitDelay(d time.Duration) {
	if rateLimitDelaySeconds != nil {
		rateLimitDelaySeconds.Observe(d.Seconds())
	}
}
