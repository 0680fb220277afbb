package stateapi

import "net/http"

// RegisterRoutes sets up the API routes on the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/state", h.HandleState)
	mux.HandleFunc("GET /api/v1/items", h.HandleItems)
	mux.HandleFunc("GET /api/v1/validation", h.HandleValidation)
	mux.HandleFunc("GET /api/v1/journal", h.HandleJournal)
	mux.HandleFunc("GET /api/v1/health", h.HandleHealth)
}
