// Package handlers holds the HTTP handlers for the read-only API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/seolwon/ivscreen/internal/contracts"
	"github.com/seolwon/ivscreen/internal/pipeline"
	"github.com/seolwon/ivscreen/pkg/logger"
	"github.com/seolwon/ivscreen/pkg/redis"
)

const latestSummaryTTL = 30 * time.Second

// RunHandler serves persisted run output.
type RunHandler struct {
	repo  pipeline.RunRepository
	cache *redis.Cache
	log   *logger.Logger
}

// NewRunHandler creates a run handler. cache may be nil.
func NewRunHandler(repo pipeline.RunRepository, cache *redis.Cache, log *logger.Logger) *RunHandler {
	return &RunHandler{repo: repo, cache: cache, log: log}
}

// GetLatest serves the most recent run's funnel summary, cached briefly
// so dashboards polling it do not hammer Postgres.
func (h *RunHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		var cached contracts.FunnelSummary
		if err := h.cache.Get(r.Context(), "latest_summary", &cached); err == nil {
			writeJSON(w, http.StatusOK, &cached)
			return
		}
	}

	summary, err := h.repo.LatestSummary(r.Context())
	if err != nil {
		h.writeRepoError(w, err, "load latest summary")
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), "latest_summary", summary, latestSummaryTTL); err != nil {
			h.log.WithError(err).Warn("Failed to cache latest summary")
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetSummary serves one run's funnel summary.
func (h *RunHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]
	summary, err := h.repo.GetSummary(r.Context(), runID)
	if err != nil {
		h.writeRepoError(w, err, "load run summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetResults serves one run's acceptance results.
func (h *RunHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]
	results, err := h.repo.GetResults(r.Context(), runID)
	if err != nil {
		h.writeRepoError(w, err, "load run results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"results": results,
	})
}

// GetSelections serves one run's selection report, audit exclusions
// included.
func (h *RunHandler) GetSelections(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]
	report, err := h.repo.GetSelections(r.Context(), runID)
	if err != nil {
		h.writeRepoError(w, err, "load run selections")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     runID,
		"selections": report.Selections,
		"excluded":   report.Excluded,
	})
}

func (h *RunHandler) writeRepoError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, pipeline.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	h.log.WithError(err).Errorf("Failed to %s", action)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
