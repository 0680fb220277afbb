// Package stateapi provides HTTP API handlers over the inspection engine's
// published state.
package stateapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/provisionwatch/provisionwatch/internal/inspect"
	"github.com/provisionwatch/provisionwatch/internal/journal"
	"github.com/provisionwatch/provisionwatch/internal/report"
	"github.com/provisionwatch/provisionwatch/pkg/buildinfo"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Engine *inspect.Engine
	Store  *journal.Store
	Logger *log.Logger
}

// NewHandler creates a new state API handler. store may be nil when the
// journal is not enabled.
func NewHandler(engine *inspect.Engine, store *journal.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{Engine: engine, Store: store, Logger: logger}
}

// HandleState returns the current engine snapshot as JSON.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Snapshot())
}

// HandleItems returns the configured item list.
func (h *Handler) HandleItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Snapshot().Items)
}

// HandleValidation re-runs the validation pass and returns the aggregated
// report.
func (h *Handler) HandleValidation(w http.ResponseWriter, r *http.Request) {
	doc := h.Engine.Doc()
	if doc == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no configuration loaded",
		})
		return
	}
	snap := h.Engine.RunValidation()
	writeJSON(w, http.StatusOK, report.FromSnapshot(snap, doc, h.Logger))
}

// HandleJournal returns recent transitions, filtered by the item and limit
// query parameters.
func (h *Handler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "journal not enabled",
		})
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid limit: " + s,
			})
			return
		}
		limit = n
	}
	entries, err := h.Store.ListTransitions(r.Context(), r.URL.Query().Get("item"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "query journal: " + err.Error(),
		})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleHealth returns a simple health check response.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
		"engine":  string(h.Engine.Snapshot().State),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
