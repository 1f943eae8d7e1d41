// Package enrich defines core types shared across subsystems.
package enrich

import (
	"context"
	"time"
)

// JobStatus represents the lifecycle state of an enrichment job.
type JobStatus string

// Job status values persisted in the job state document.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether a job in this status will make no further progress.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// OutcomeStatus classifies the result of processing a single record.
type OutcomeStatus string

// Outcome status values written to the outcome table.
const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomePartial OutcomeStatus = "partial"
	OutcomeFailed  OutcomeStatus = "failed"
)

// OwnerRecord is one ingested owner/entity row. It is immutable once created.
type OwnerRecord struct {
	ID        string            `json:"id"`
	Owners    []string          `json:"owners"`
	Corporate bool              `json:"corporate"`
	// Extra carries pass-through spreadsheet columns verbatim into the export.
	Extra     map[string]string `json:"extra,omitempty"`
}

// SearchHit is one result returned by the search client for a query.
type SearchHit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// EmailCandidate is a normalized email plus where it was found.
type EmailCandidate struct {
	Email     string `json:"email"`
	OwnerName string `json:"owner_name"`
	SourceURL string `json:"source_url"`
	Snippet   string `json:"snippet"`
}

// OutcomeCounters tracks per-record work performed and failures seen.
type OutcomeCounters struct {
	QueriesIssued int  `json:"queries_issued"`
	PagesFetched  int  `json:"pages_fetched"`
	Errors        int  `json:"errors"`
	Truncated     bool `json:"truncated"`
}

// RecordOutcome is the per-record result, written exactly once per record.
type RecordOutcome struct {
	RecordID   string           `json:"record_id"`
	Status     OutcomeStatus    `json:"status"`
	Emails     []EmailCandidate `json:"emails"`
	Counters   OutcomeCounters  `json:"counters"`
	Diagnostic string           `json:"diagnostic,omitempty"`
}

// JobConfig is the configuration snapshot taken at submission.
type JobConfig struct {
	ResultsPerQuery    int     `json:"results_per_query" mapstructure:"results_per_query"`
	MaxQueries         int     `json:"max_queries" mapstructure:"max_queries"`
	MaxEmailsPerRecord int     `json:"max_emails_per_record" mapstructure:"max_emails_per_record"`
	FetchTimeoutSec    float64 `json:"fetch_timeout_seconds" mapstructure:"fetch_timeout_seconds"`
	ScrapeEnabled      bool    `json:"scrape_enabled" mapstructure:"scrape_enabled"`
}

// FetchTimeout returns the per-page timeout as a duration.
func (c JobConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec * float64(time.Second))
}

// Validate rejects nonsensical resource caps before a job starts.
func (c JobConfig) Validate() error {
	if c.ResultsPerQuery <= 0 {
		return invalidConfigf("results_per_query must be > 0")
	}
	if c.MaxQueries < 0 {
		return invalidConfigf("max_queries must be >= 0")
	}
	if c.MaxEmailsPerRecord <= 0 {
		return invalidConfigf("max_emails_per_record must be > 0")
	}
	if c.FetchTimeoutSec <= 0 {
		return invalidConfigf("fetch_timeout_seconds must be > 0")
	}
	if c.ScrapeEnabled && c.MaxQueries == 0 {
		return invalidConfigf("scrape_enabled requires max_queries > 0")
	}
	return nil
}

// JobState describes one whole run. Owned and mutated only by the engine.
type JobState struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	Config       JobConfig  `json:"config"`
	TotalRecords int        `json:"total_records"`
	Processed    int        `json:"processed_records"`
	EmailsFound  int        `json:"emails_found"`
	ErrorText    string     `json:"error_text,omitempty"`
	Submitted    time.Time  `json:"submitted_at"`
	Started      *time.Time `json:"started_at,omitempty"`
	Finished     *time.Time `json:"finished_at,omitempty"`
}

// FetchResult is the body retrieved for one result URL.
type FetchResult struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// SearchClient issues one external search call per query string.
type SearchClient interface {
	Search(ctx context.Context, query string, count int) ([]SearchHit, error)
}

// PageFetcher retrieves one page body subject to a timeout.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (FetchResult, error)
}

// Clock abstracts wall time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job identifiers.
type IDGenerator interface {
	NewID() string
}
