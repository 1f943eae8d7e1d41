// Package engine owns the lifecycle of enrichment jobs: submission,
// execution, cancellation and status/log reads.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openweb-labs/enricher/internal/enrich"
	"github.com/openweb-labs/enricher/internal/metrics"
	storefs "github.com/openweb-labs/enricher/internal/store/fs"
	"github.com/openweb-labs/enricher/internal/worker"
)

// SearchFactory builds a per-job search client charging against a budget.
type SearchFactory interface {
	ForJob(budget *enrich.Budget) enrich.SearchClient
}

// SearchFactoryFunc adapts a function to the SearchFactory interface.
type SearchFactoryFunc func(budget *enrich.Budget) enrich.SearchClient

// ForJob calls the wrapped function.
func (f SearchFactoryFunc) ForJob(budget *enrich.Budget) enrich.SearchClient {
	return f(budget)
}

// Config controls engine-level concurrency.
type Config struct {
	// FetchConcurrency caps in-flight page fetches per job.
	FetchConcurrency int
	// RecordConcurrency caps records processed in parallel within a job.
	// Sequential (1) is the safe default given the shared search quota.
	RecordConcurrency int
}

// Engine drives jobs through the record processor and the result store.
type Engine struct {
	store    *storefs.Store
	searches SearchFactory
	fetcher  enrich.PageFetcher
	clock    enrich.Clock
	idGen    enrich.IDGenerator
	cfg      Config
	logger   *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

type job struct {
	mu       sync.Mutex
	state    enrich.JobState
	writer   *storefs.JobWriter
	cancel   context.CancelFunc
	fatalErr error
	done     chan struct{}
}

// New constructs an Engine.
func New(
	store *storefs.Store,
	searches SearchFactory,
	fetcher enrich.PageFetcher,
	clock enrich.Clock,
	idGen enrich.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	if cfg.RecordConcurrency <= 0 {
		cfg.RecordConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		searches: searches,
		fetcher:  fetcher,
		clock:    clock,
		idGen:    idGen,
		cfg:      cfg,
		logger:   logger,
		jobs:     make(map[string]*job),
	}
}

// Submit validates the configuration, persists the initial job state and
// starts the runner goroutine. The job outlives the submission context.
func (e *Engine) Submit(records []enrich.OwnerRecord, cfg enrich.JobConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	now := e.clock.Now()
	state := enrich.JobState{
		ID:           e.idGen.NewID(),
		Status:       enrich.JobStatusQueued,
		Config:       cfg,
		TotalRecords: len(records),
		Submitted:    now,
	}
	writer, err := e.store.CreateJob(state)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		state:  state,
		writer: writer,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.mu.Lock()
	e.jobs[state.ID] = j
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx, j, records)
	}()
	return state.ID, nil
}

// Status returns a snapshot of the job state. Jobs not resident in memory
// (e.g. after a restart) are recovered from the store.
func (e *Engine) Status(jobID string) (enrich.JobState, error) {
	e.mu.RLock()
	j, ok := e.jobs[jobID]
	e.mu.RUnlock()
	if !ok {
		return e.store.ReadState(jobID)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state, nil
}

// Tail returns new complete log lines starting at the byte offset.
func (e *Engine) Tail(jobID string, offset int64) ([]string, int64, error) {
	return e.store.TailLog(jobID, offset)
}

// Cancel requests cooperative cancellation. The runner observes it between
// records and between fetch batches; it never kills work pre-emptively.
func (e *Engine) Cancel(jobID string) error {
	e.mu.RLock()
	j, ok := e.jobs[jobID]
	e.mu.RUnlock()
	if !ok {
		return enrich.ErrJobNotFound
	}
	j.cancel()
	return nil
}

// Wait blocks until every submitted job has finished or ctx expires.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine wait: %w", ctx.Err())
	}
}

func (e *Engine) run(ctx context.Context, j *job, records []enrich.OwnerRecord) {
	defer close(j.done)
	defer j.writer.Close() //nolint:errcheck // terminal state already persisted

	logger := e.logger.Named("job").With(zap.String("job_id", j.state.ID))

	e.transition(j, func(s *enrich.JobState) {
		s.Status = enrich.JobStatusRunning
		started := e.clock.Now()
		s.Started = &started
	})
	e.appendLog(j, fmt.Sprintf("job started: %d records, scrape=%t, max_queries=%d, max_emails=%d",
		len(records), j.state.Config.ScrapeEnabled, j.state.Config.MaxQueries, j.state.Config.MaxEmailsPerRecord))

	budget := enrich.NewBudget(j.state.Config.MaxQueries)
	pool := worker.NewFetchPool(e.cfg.FetchConcurrency)
	proc := worker.NewProcessor(
		e.searches.ForJob(budget),
		e.fetcher,
		pool,
		j.state.Config,
		func(format string, args ...any) { e.appendLog(j, fmt.Sprintf(format, args...)) },
		logger,
	)

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.RecordConcurrency)
	for _, rec := range records {
		if ctx.Err() != nil || j.fatal() != nil {
			break
		}
		g.Go(func() error {
			outcome := proc.Process(ctx, rec)
			e.commit(j, rec, outcome)
			return nil
		})
	}
	_ = g.Wait() // record errors never escape the processor

	e.finish(ctx, j, logger)
}

// commit durably appends the outcome before advancing the processed counter,
// so the counter is always a true lower bound on durable progress. Writes are
// serialized under the job mutex to keep the single-writer discipline even
// when record concurrency is enabled.
func (e *Engine) commit(j *job, rec enrich.OwnerRecord, outcome enrich.RecordOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fatalErr != nil {
		return
	}
	if err := j.writer.AppendOutcome(outcome, rec.Extra); err != nil {
		j.fatalErr = err
		j.cancel()
		return
	}
	j.state.Processed++
	j.state.EmailsFound += len(outcome.Emails)
	if err := j.writer.WriteState(j.state); err != nil {
		j.fatalErr = err
		j.cancel()
		return
	}
	metrics.ObserveRecord(string(outcome.Status))
	metrics.AddEmailsFound(len(outcome.Emails))
}

func (e *Engine) finish(ctx context.Context, j *job, logger *zap.Logger) {
	fatal := j.fatal()
	var status enrich.JobStatus
	switch {
	case fatal != nil:
		status = enrich.JobStatusFailed
	case ctx.Err() != nil:
		status = enrich.JobStatusCancelled
	default:
		status = enrich.JobStatusCompleted
	}

	e.transition(j, func(s *enrich.JobState) {
		s.Status = status
		finished := e.clock.Now()
		s.Finished = &finished
		if fatal != nil {
			s.ErrorText = fatal.Error()
		}
	})

	switch status {
	case enrich.JobStatusFailed:
		// Best effort: the store itself may be what failed.
		j.mu.Lock()
		_ = j.writer.AppendLog(fmt.Sprintf("job failed: %v", fatal))
		j.mu.Unlock()
		logger.Error("job failed", zap.Error(fatal))
	case enrich.JobStatusCancelled:
		e.appendLog(j, "job cancelled")
		logger.Info("job cancelled")
	default:
		j.mu.Lock()
		processed, emails := j.state.Processed, j.state.EmailsFound
		j.mu.Unlock()
		e.appendLog(j, fmt.Sprintf("job completed: %d records processed, %d emails found", processed, emails))
		logger.Info("job completed", zap.Int("processed", processed), zap.Int("emails", emails))
	}
	metrics.ObserveJob(string(status))
}

// transition mutates state under the job mutex and persists the snapshot.
// A failed state write after a fatal error is unrecoverable and only logged.
func (e *Engine) transition(j *job, mutate func(*enrich.JobState)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	mutate(&j.state)
	if err := j.writer.WriteState(j.state); err != nil {
		if j.fatalErr == nil {
			j.fatalErr = err
		}
		e.logger.Error("state write failed", zap.String("job_id", j.state.ID), zap.Error(err))
	}
}

func (e *Engine) appendLog(j *job, line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fatalErr != nil {
		return
	}
	if err := j.writer.AppendLog(line); err != nil {
		j.fatalErr = err
		j.cancel()
		e.logger.Error("log append failed", zap.String("job_id", j.state.ID), zap.Error(err))
	}
}

func (j *job) fatal() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fatalErr
}
