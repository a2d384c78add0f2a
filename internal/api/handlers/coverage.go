package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/seolwon/ivscreen/internal/history"
	"github.com/seolwon/ivscreen/pkg/logger"
)

// CoverageHandler serves history-store coverage: the operational "do I
// have enough IV history for this symbol" view.
type CoverageHandler struct {
	store history.Store
	log   *logger.Logger
}

// NewCoverageHandler creates a coverage handler.
func NewCoverageHandler(store history.Store, log *logger.Logger) *CoverageHandler {
	return &CoverageHandler{store: store, log: log}
}

// List serves coverage for every symbol in the store.
func (h *CoverageHandler) List(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.store.Symbols(r.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list history symbols")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	out := make([]history.Coverage, 0, len(symbols))
	for _, symbol := range symbols {
		cov, err := h.store.Coverage(r.Context(), symbol)
		if err != nil {
			h.log.WithError(err).WithField("symbol", symbol).Error("Failed to load coverage")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		out = append(out, cov)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"coverage": out})
}

// GetSymbol serves coverage for one symbol.
func (h *CoverageHandler) GetSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	cov, err := h.store.Coverage(r.Context(), symbol)
	if err != nil {
		h.log.WithError(err).WithField("symbol", symbol).Error("Failed to load coverage")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if cov.ObservationCount == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no history for symbol"})
		return
	}
	writeJSON(w, http.StatusOK, cov)
}
