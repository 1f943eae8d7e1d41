package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openweb-labs/enricher/internal/enrich"
)

// stage labels the record state machine for logging.
type stage string

const (
	stageQuerying   stage = "querying"
	stageFetching   stage = "fetching"
	stageExtracting stage = "extracting"
)

// A record's fetch batch gets this many fetch-timeouts before the processor
// moves on, so one slow site cannot stall the job indefinitely.
const fetchDeadlineFactor = 3

// LogFunc appends one line to the job log.
type LogFunc func(format string, args ...any)

// Processor drives a single OwnerRecord through querying, fetching and
// extracting. Errors never escape: every record resolves to a RecordOutcome.
type Processor struct {
	search  enrich.SearchClient
	fetcher enrich.PageFetcher
	pool    *FetchPool
	cfg     enrich.JobConfig
	logf    LogFunc
	logger  *zap.Logger
}

// NewProcessor constructs a Processor for one job.
func NewProcessor(
	search enrich.SearchClient,
	fetcher enrich.PageFetcher,
	pool *FetchPool,
	cfg enrich.JobConfig,
	logf LogFunc,
	logger *zap.Logger,
) *Processor {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		search:  search,
		fetcher: fetcher,
		pool:    pool,
		cfg:     cfg,
		logf:    logf,
		logger:  logger,
	}
}

type recordRun struct {
	record    enrich.OwnerRecord
	emails    *enrich.EmailSet
	counters  enrich.OutcomeCounters
	seenURLs  map[string]struct{}
	queriesOK int
	fetchesOK int
	budgetDry bool
	quotaHit  bool
}

// Process runs the state machine for one record.
func (p *Processor) Process(ctx context.Context, rec enrich.OwnerRecord) enrich.RecordOutcome {
	queries := enrich.PlanQueries(rec)
	if len(queries) == 0 {
		p.logf("record %s: no usable owner name, skipping", rec.ID)
		return enrich.RecordOutcome{
			RecordID:   rec.ID,
			Status:     enrich.OutcomeFailed,
			Diagnostic: "no usable owner name",
		}
	}

	run := &recordRun{
		record:   rec,
		emails:   enrich.NewEmailSet(p.cfg.MaxEmailsPerRecord),
		seenURLs: make(map[string]struct{}),
	}

	for _, query := range queries {
		if ctx.Err() != nil || run.emails.Full() || run.budgetDry || run.quotaHit {
			break
		}
		p.runQuery(ctx, run, query)
	}

	run.counters.Truncated = run.emails.Truncated()
	outcome := enrich.RecordOutcome{
		RecordID: rec.ID,
		Status:   run.deriveStatus(),
		Emails:   run.emails.Emails(),
		Counters: run.counters,
	}
	outcome.Diagnostic = run.diagnostic()
	p.logf("record %s: %s, %d emails, %d queries, %d pages, %d errors",
		rec.ID, outcome.Status, len(outcome.Emails),
		run.counters.QueriesIssued, run.counters.PagesFetched, run.counters.Errors)
	return outcome
}

func (p *Processor) runQuery(ctx context.Context, run *recordRun, query string) {
	hits, err := p.search.Search(ctx, query, p.cfg.ResultsPerQuery)
	switch {
	case errors.Is(err, enrich.ErrBudgetExhausted):
		run.budgetDry = true
		p.logf("record %s: search budget exhausted", run.record.ID)
		return
	case errors.Is(err, enrich.ErrQuotaExceeded):
		run.quotaHit = true
		run.counters.QueriesIssued++
		run.counters.Errors++
		p.logf("record %s: search quota exceeded, stopping search", run.record.ID)
		return
	case errors.Is(err, enrich.ErrMalformedResponse):
		run.counters.QueriesIssued++
		run.counters.Errors++
		p.logf("record %s: malformed search response for %q, continuing", run.record.ID, query)
		return
	case err != nil:
		run.counters.QueriesIssued++
		run.counters.Errors++
		p.logger.Warn("search failed",
			zap.String("record_id", run.record.ID),
			zap.String("stage", string(stageQuerying)),
			zap.Error(err))
		p.logf("record %s: search failed for %q: %v", run.record.ID, query, err)
		return
	}

	run.counters.QueriesIssued++
	if len(hits) == 0 {
		p.logf("record %s: no results for %q", run.record.ID, query)
		return
	}
	run.queriesOK++
	p.logf("record %s: %d results for %q", run.record.ID, len(hits), query)

	fresh := p.scanSnippets(run, query, hits)
	if p.cfg.ScrapeEnabled && !run.emails.Full() && len(fresh) > 0 {
		p.fetchAndExtract(ctx, run, query, fresh)
	}
}

// scanSnippets extracts emails from titles, snippets and URLs before any page
// is fetched, and returns the hits not seen earlier in this record.
func (p *Processor) scanSnippets(run *recordRun, owner string, hits []enrich.SearchHit) []enrich.SearchHit {
	var fresh []enrich.SearchHit
	for _, hit := range hits {
		if _, dup := run.seenURLs[hit.URL]; dup {
			continue
		}
		run.seenURLs[hit.URL] = struct{}{}
		fresh = append(fresh, hit)

		combined := strings.Join([]string{hit.Title, hit.Snippet, hit.URL}, " ")
		for _, email := range enrich.ExtractEmails(combined) {
			if run.emails.Add(enrich.EmailCandidate{
				Email:     email,
				OwnerName: owner,
				SourceURL: hit.URL,
				Snippet:   hit.Snippet,
			}) {
				p.logf("record %s: found %s in result snippet (%s)", run.record.ID, email, hit.URL)
			}
		}
	}
	return fresh
}

func (p *Processor) fetchAndExtract(ctx context.Context, run *recordRun, owner string, hits []enrich.SearchHit) {
	urls := make([]string, len(hits))
	snippets := make(map[string]string, len(hits))
	for i, hit := range hits {
		urls[i] = hit.URL
		snippets[hit.URL] = hit.Snippet
	}

	batchCtx, cancel := context.WithTimeout(ctx, fetchDeadlineFactor*p.cfg.FetchTimeout())
	defer cancel()

	p.logf("record %s: fetching %d pages", run.record.ID, len(urls))
	p.logger.Debug("dispatching fetch batch",
		zap.String("record_id", run.record.ID),
		zap.String("stage", string(stageFetching)),
		zap.Int("urls", len(urls)))
	results := p.pool.FetchAll(batchCtx, p.fetcher, urls, p.cfg.FetchTimeout())

	for _, page := range results {
		if page.Err != nil {
			run.counters.Errors++
			p.logf("record %s: fetch error for %s: %v", run.record.ID, page.URL, page.Err)
			continue
		}
		run.counters.PagesFetched++
		run.fetchesOK++
		p.logger.Debug("extracting page text",
			zap.String("record_id", run.record.ID),
			zap.String("stage", string(stageExtracting)),
			zap.String("url", page.URL))
		// Pages are scanned even once the cap is reached: a rejected add is
		// what records that candidates were dropped for the cap.
		text := enrich.PageText(page.Result.Body, page.Result.ContentType)
		for _, email := range enrich.ExtractEmails(text) {
			added := run.emails.Add(enrich.EmailCandidate{
				Email:     email,
				OwnerName: owner,
				SourceURL: page.URL,
				Snippet:   snippets[page.URL],
			})
			if added {
				p.logf("record %s: found %s on page %s", run.record.ID, email, page.URL)
			}
			if !added && run.emails.Full() {
				break
			}
		}
	}
}

func (r *recordRun) deriveStatus() enrich.OutcomeStatus {
	switch {
	case r.queriesOK == 0 && r.fetchesOK == 0:
		return enrich.OutcomeFailed
	case r.counters.Errors > 0:
		return enrich.OutcomePartial
	default:
		return enrich.OutcomeOK
	}
}

func (r *recordRun) diagnostic() string {
	switch {
	case r.counters.QueriesIssued == 0 && r.budgetDry:
		return "no queries attempted"
	case r.quotaHit:
		return "search quota exceeded"
	case r.queriesOK == 0 && r.fetchesOK == 0:
		return "no search results yielded contacts"
	case r.counters.Errors > 0:
		return fmt.Sprintf("%d of %d operations failed",
			r.counters.Errors, r.counters.QueriesIssued+r.counters.PagesFetched+r.counters.Errors)
	default:
		return ""
	}
}
