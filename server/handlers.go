package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/version"
)

// HandleTopClients serves the most recent result set.
// GET /v1/topclients
//
//	200 [{"clientIP":"1.1.1.1","count":2}, ...]  (empty array after an empty run)
//	404 {"error":"not found"}                    (no run has completed yet)
func (s *Server) HandleTopClients(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	snap, err := s.reader.Get(r.Context(), s.resultKey)
	if errors.IsNotFoundError(err) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeInternalError(w, s.logger, err, "Failed to read top clients")
		return
	}

	w.Header().Set("X-Result-Version", strconv.FormatInt(snap.Version, 10))
	if !snap.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", snap.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	writeJSON(w, http.StatusOK, snap.Entries)
}

// HandleHealth reports liveness and, when a queue is attached, its depth.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	info := version.Get()
	health := map[string]interface{}{
		"status":         "ok",
		"state":          s.getState().String(),
		"version":        info.Version,
		"commit":         info.CommitHash,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}

	if s.queue != nil {
		stats, err := s.queue.GetStats(r.Context())
		if err != nil {
			s.logger.Warnw("Failed to read queue stats for health", "error", err)
			health["status"] = "degraded"
		} else {
			health["jobs"] = stats
		}
	}

	writeJSON(w, http.StatusOK, health)
}
