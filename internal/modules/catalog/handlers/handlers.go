// Package handlers provides HTTP handlers for the series catalog.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/modules/catalog"
)

// Handler handles series catalog HTTP requests
type Handler struct {
	log zerolog.Logger
}

// NewHandler creates a new catalog handler
func NewHandler(log zerolog.Logger) *Handler {
	return &Handler{
		log: log.With().Str("handler", "catalog").Logger(),
	}
}

// RegisterRoutes registers catalog routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/series", h.HandleListSeries)
		r.Get("/series/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetSeries(w, r, chi.URLParam(r, "id"))
		})
	})
}

// HandleListSeries handles GET /api/catalog/series
func (h *Handler) HandleListSeries(w http.ResponseWriter, r *http.Request) {
	series := catalog.All()

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"series": series,
			"count":  len(series),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetSeries handles GET /api/catalog/series/{id}
func (h *Handler) HandleGetSeries(w http.ResponseWriter, r *http.Request, id string) {
	s := catalog.ByID(id)
	if s == nil {
		http.Error(w, "series not tracked", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"data": s,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
