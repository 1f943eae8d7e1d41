// Package fs implements the file-backed result store. Each job owns a
// directory holding an append-only log, a progressive outcome table and an
// atomically-replaced state document, so a separate process can recover job
// status and output without the engine resident in memory.
package fs

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/openweb-labs/enricher/internal/enrich"
)

const (
	stateFile    = "state.json"
	logFile      = "run.log"
	outcomesFile = "outcomes.csv"
)

var outcomeHeader = []string{
	"record_id", "status", "queries_issued", "pages_fetched",
	"errors", "truncated", "diagnostic", "emails_json", "extra_json",
}

var jobIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Store roots all job directories under a base directory.
type Store struct {
	baseDir string
}

// New verifies the base directory exists and is writable, creating it when
// missing.
func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) jobDir(jobID string) (string, error) {
	if !jobIDPattern.MatchString(jobID) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	return filepath.Join(s.baseDir, jobID), nil
}

// CreateJob allocates the job directory, writes the initial state document
// and opens the single-writer handle the engine appends through.
func (s *Store) CreateJob(state enrich.JobState) (*JobWriter, error) {
	dir, err := s.jobDir(state.ID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, &enrich.StorageError{Op: "create job dir", Err: err}
	}

	logF, err := os.OpenFile(filepath.Join(dir, logFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, &enrich.StorageError{Op: "open log", Err: err}
	}
	outF, err := os.OpenFile(filepath.Join(dir, outcomesFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		logF.Close() //nolint:errcheck // best-effort cleanup
		return nil, &enrich.StorageError{Op: "open outcomes", Err: err}
	}

	w := &JobWriter{
		dir:  dir,
		logF: logF,
		outF: outF,
		seen: make(map[string]struct{}),
	}
	if err := w.writeOutcomeHeader(); err != nil {
		w.Close() //nolint:errcheck // already failing
		return nil, err
	}
	if err := w.WriteState(state); err != nil {
		w.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return w, nil
}

// JobWriter is the single-writer handle for one job's artifacts. The engine
// serializes all calls; JobWriter itself performs no locking.
type JobWriter struct {
	dir  string
	logF *os.File
	outF *os.File
	seen map[string]struct{}
}

func (w *JobWriter) writeOutcomeHeader() error {
	info, err := w.outF.Stat()
	if err != nil {
		return &enrich.StorageError{Op: "stat outcomes", Err: err}
	}
	if info.Size() > 0 {
		return nil
	}
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(outcomeHeader); err != nil {
		return &enrich.StorageError{Op: "encode outcome header", Err: err}
	}
	cw.Flush()
	if _, err := w.outF.Write(buf.Bytes()); err != nil {
		return &enrich.StorageError{Op: "write outcome header", Err: err}
	}
	return nil
}

// AppendLog writes one timestamped line and syncs it, so a concurrent tail
// never observes a partial line.
func (w *JobWriter) AppendLog(line string) error {
	ts := time.Now().UTC().Format(time.RFC3339)
	entry := ts + " " + strings.ReplaceAll(line, "\n", " ") + "\n"
	if _, err := w.logF.WriteString(entry); err != nil {
		return &enrich.StorageError{Op: "append log", Err: err}
	}
	if err := w.logF.Sync(); err != nil {
		return &enrich.StorageError{Op: "sync log", Err: err}
	}
	return nil
}

// AppendOutcome durably appends one RecordOutcome row. Each record ID is
// written at most once; duplicates are silently dropped.
func (w *JobWriter) AppendOutcome(o enrich.RecordOutcome, extra map[string]string) error {
	if _, dup := w.seen[o.RecordID]; dup {
		return nil
	}
	emailsJSON, err := json.Marshal(o.Emails)
	if err != nil {
		return &enrich.StorageError{Op: "encode emails", Err: err}
	}
	extraJSON := []byte("{}")
	if len(extra) > 0 {
		if extraJSON, err = json.Marshal(extra); err != nil {
			return &enrich.StorageError{Op: "encode extras", Err: err}
		}
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	row := []string{
		o.RecordID,
		string(o.Status),
		strconv.Itoa(o.Counters.QueriesIssued),
		strconv.Itoa(o.Counters.PagesFetched),
		strconv.Itoa(o.Counters.Errors),
		strconv.FormatBool(o.Counters.Truncated),
		o.Diagnostic,
		string(emailsJSON),
		string(extraJSON),
	}
	if err := cw.Write(row); err != nil {
		return &enrich.StorageError{Op: "encode outcome", Err: err}
	}
	cw.Flush()
	if _, err := w.outF.Write(buf.Bytes()); err != nil {
		return &enrich.StorageError{Op: "append outcome", Err: err}
	}
	if err := w.outF.Sync(); err != nil {
		return &enrich.StorageError{Op: "sync outcomes", Err: err}
	}
	w.seen[o.RecordID] = struct{}{}
	return nil
}

// WriteState replaces the state document atomically (write-new-then-rename)
// so a concurrent reader never sees a half-written file.
func (w *JobWriter) WriteState(state enrich.JobState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &enrich.StorageError{Op: "encode state", Err: err}
	}
	tmp := filepath.Join(w.dir, stateFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &enrich.StorageError{Op: "write state", Err: err}
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, stateFile)); err != nil {
		return &enrich.StorageError{Op: "replace state", Err: err}
	}
	return nil
}

// Close releases the writer's file handles.
func (w *JobWriter) Close() error {
	var errs []error
	if err := w.logF.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := w.outF.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ReadState loads a job's state document.
func (s *Store) ReadState(jobID string) (enrich.JobState, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return enrich.JobState{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if os.IsNotExist(err) {
		return enrich.JobState{}, enrich.ErrJobNotFound
	}
	if err != nil {
		return enrich.JobState{}, &enrich.StorageError{Op: "read state", Err: err}
	}
	var state enrich.JobState
	if err := json.Unmarshal(data, &state); err != nil {
		return enrich.JobState{}, &enrich.StorageError{Op: "decode state", Err: err}
	}
	return state, nil
}

// TailLog returns complete log lines starting at the byte offset, plus the
// offset to resume from. A trailing partial line is never returned; its bytes
// stay owed to the next call.
func (s *Store) TailLog(jobID string, offset int64) ([]string, int64, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return nil, offset, err
	}
	f, err := os.Open(filepath.Join(dir, logFile))
	if os.IsNotExist(err) {
		return nil, offset, enrich.ErrJobNotFound
	}
	if err != nil {
		return nil, offset, &enrich.StorageError{Op: "open log", Err: err}
	}
	defer f.Close() //nolint:errcheck // read-only

	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, &enrich.StorageError{Op: "seek log", Err: err}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, offset, &enrich.StorageError{Op: "read log", Err: err}
	}
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		return nil, offset, nil
	}
	complete := data[:last+1]
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(complete))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, offset, &enrich.StorageError{Op: "scan log", Err: err}
	}
	return lines, offset + int64(len(complete)), nil
}

// StoredOutcome pairs a replayed RecordOutcome with its pass-through columns.
type StoredOutcome struct {
	Outcome enrich.RecordOutcome
	Extra   map[string]string
}

// ReadOutcomes replays the progressive outcome table.
func (s *Store) ReadOutcomes(jobID string) ([]StoredOutcome, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, outcomesFile))
	if os.IsNotExist(err) {
		return nil, enrich.ErrJobNotFound
	}
	if err != nil {
		return nil, &enrich.StorageError{Op: "open outcomes", Err: err}
	}
	defer f.Close() //nolint:errcheck // read-only

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(outcomeHeader)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, &enrich.StorageError{Op: "read outcomes", Err: err}
	}
	var out []StoredOutcome
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		stored, err := decodeOutcomeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func decodeOutcomeRow(row []string) (StoredOutcome, error) {
	queries, _ := strconv.Atoi(row[2])
	pages, _ := strconv.Atoi(row[3])
	errCount, _ := strconv.Atoi(row[4])
	truncated, _ := strconv.ParseBool(row[5])

	var emails []enrich.EmailCandidate
	if err := json.Unmarshal([]byte(row[7]), &emails); err != nil {
		return StoredOutcome{}, &enrich.StorageError{Op: "decode emails", Err: err}
	}
	extra := map[string]string{}
	if err := json.Unmarshal([]byte(row[8]), &extra); err != nil {
		return StoredOutcome{}, &enrich.StorageError{Op: "decode extras", Err: err}
	}
	return StoredOutcome{
		Outcome: enrich.RecordOutcome{
			RecordID: row[0],
			Status:   enrich.OutcomeStatus(row[1]),
			Emails:   emails,
			Counters: enrich.OutcomeCounters{
				QueriesIssued: queries,
				PagesFetched:  pages,
				Errors:        errCount,
				Truncated:     truncated,
			},
			Diagnostic: row[6],
		},
		Extra: extra,
	}, nil
}
