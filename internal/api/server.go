// Package api exposes the HTTP interface for the enrichment service.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openweb-labs/enricher/internal/engine"
	"github.com/openweb-labs/enricher/internal/enrich"
	"github.com/openweb-labs/enricher/internal/ingest"
	"github.com/openweb-labs/enricher/internal/metrics"
	storefs "github.com/openweb-labs/enricher/internal/store/fs"
)

// maxUploadBytes bounds the multipart workbook upload.
const maxUploadBytes = 32 << 20

// Server wires HTTP handlers to the engine and the job store.
type Server struct {
	router      chi.Router
	engine      *engine.Engine
	store       *storefs.Store
	jobDefaults enrich.JobConfig
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(eng *engine.Engine, store *storefs.Store, defaults enrich.JobConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:      eng,
		store:       store,
		jobDefaults: defaults,
		logger:      logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/log", s.getJobLog)
				r.Post("/cancel", s.cancelJob)
				r.Get("/export/{format}", s.exportJob)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing workbook file")
		return
	}
	defer file.Close()

	records, err := ingest.ReadWorkbook(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read workbook: %v", err))
		return
	}
	cfg, err := s.jobConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.engine.Submit(records, cfg)
	if err != nil {
		if errors.Is(err, enrich.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("job submit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  jobID,
		"records": len(records),
	})
}

// jobConfig overlays optional form values on top of the configured defaults.
func (s *Server) jobConfig(r *http.Request) (enrich.JobConfig, error) {
	cfg := s.jobDefaults
	overlay := []struct {
		field string
		apply func(string) error
	}{
		{"results_per_query", func(v string) error { return parseInt(v, &cfg.ResultsPerQuery) }},
		{"max_queries", func(v string) error { return parseInt(v, &cfg.MaxQueries) }},
		{"max_emails", func(v string) error { return parseInt(v, &cfg.MaxEmailsPerRecord) }},
		{"fetch_timeout_seconds", func(v string) error { return parseFloat(v, &cfg.FetchTimeoutSec) }},
		{"scrape", func(v string) error { return parseBool(v, &cfg.ScrapeEnabled) }},
	}
	for _, o := range overlay {
		v := strings.TrimSpace(r.FormValue(o.field))
		if v == "" {
			continue
		}
		if err := o.apply(v); err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", o.field, err)
		}
	}
	return cfg, nil
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	state, err := s.engine.Status(jobID)
	if err != nil {
		if errors.Is(err, enrich.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("status lookup failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read job state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) getJobLog(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	var offset int64
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = parsed
	}
	lines, next, err := s.engine.Tail(jobID, offset)
	if err != nil {
		if errors.Is(err, enrich.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("log tail failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read job log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":       lines,
		"next_offset": next,
	})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.engine.Cancel(jobID); err != nil {
		if errors.Is(err, enrich.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) exportJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	format := chi.URLParam(r, "format")

	if _, err := s.engine.Status(jobID); err != nil {
		if errors.Is(err, enrich.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("export lookup failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not read job state")
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "results_"+jobID+".csv"))
		if err := s.store.ExportCSV(jobID, w); err != nil {
			s.logger.Error("csv export failed", zap.String("job_id", jobID), zap.Error(err))
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "results_"+jobID+".xlsx"))
		if err := s.store.ExportXLSX(jobID, w); err != nil {
			s.logger.Error("xlsx export failed", zap.String("job_id", jobID), zap.Error(err))
		}
	default:
		writeError(w, http.StatusBadRequest, "unsupported export format")
	}
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.New("not an integer")
	}
	*dst = n
	return nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return errors.New("not a number")
	}
	*dst = f
	return nil
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return errors.New("not a boolean")
	}
	*dst = b
	return nil
}
