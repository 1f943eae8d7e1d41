package enrich

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrBudgetExhausted is returned by the search client once the job-wide
	// query budget is spent. No external call is made.
	ErrBudgetExhausted = errors.New("search query budget exhausted")

	// ErrQuotaExceeded signals the external API rejected us (429/401-style).
	// Remaining search for the job stops; prior outcomes stand.
	ErrQuotaExceeded = errors.New("search API quota exceeded")

	// ErrMalformedResponse marks an unexpected search payload shape. Treated
	// as zero hits for the query.
	ErrMalformedResponse = errors.New("malformed search response")

	// ErrInvalidConfig rejects a job at submission.
	ErrInvalidConfig = errors.New("invalid job config")

	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
)

// StorageError wraps a result-store failure, the one fatal error class.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func invalidConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
