package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ffexec/internal/history"
	"ffexec/internal/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "", "job history is disabled")
		return
	}

	limit := parseIntQuery(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	var statuses []history.Status
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := history.ParseStatus(part)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "", err.Error())
				return
			}
			statuses = append(statuses, status)
		}
	}

	jobs, err := s.history.List(r.Context(), limit, statuses...)
	if err != nil {
		s.logger.Error("list jobs", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "", "failed to list jobs")
		return
	}

	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	s.writeJSON(w, http.StatusOK, JobList{Jobs: out, Limit: limit})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "", "job history is disabled")
		return
	}

	job, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "", "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "", "failed to get job")
		return
	}
	s.writeJSON(w, http.StatusOK, FromJob(job))
}
