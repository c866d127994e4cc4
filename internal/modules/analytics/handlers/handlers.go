// Package handlers provides the transform trigger and the dashboard read API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/domain"
	"github.com/labormetrics/pulse/internal/modules/catalog"
)

// TransformService recomputes the analytics table. Implemented by
// analytics.Transformer.
type TransformService interface {
	Recompute(ctx context.Context) (int, error)
}

// AnalyticsReader is the dashboard read contract. Implemented by
// analytics.Repository.
type AnalyticsReader interface {
	GetSeries(seriesID, start string) ([]domain.AnalyticsRow, error)
	LatestPerSeries() ([]domain.AnalyticsRow, error)
}

// Handler handles analytics HTTP requests
type Handler struct {
	transformer TransformService
	reader      AnalyticsReader
	log         zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(transformer TransformService, reader AnalyticsReader, log zerolog.Logger) *Handler {
	return &Handler{
		transformer: transformer,
		reader:      reader,
		log:         log.With().Str("handler", "analytics").Logger(),
	}
}

// RegisterRoutes registers analytics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/transform", h.HandleTransform)
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/latest", h.HandleGetLatest)
		r.Get("/series/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetSeries(w, r, chi.URLParam(r, "id"))
		})
	})
}

// HandleTransform handles POST /api/transform.
// Takes no parameters; responds {"status": "ok", "rows": n} or an error.
// A failed recompute leaves the previous analytics snapshot untouched.
func (h *Handler) HandleTransform(w http.ResponseWriter, r *http.Request) {
	rows, err := h.transformer.Recompute(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Transform run failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"rows":   rows,
	})
}

// HandleGetSeries handles GET /api/analytics/series/{id}?start=YYYY-MM-DD.
// Rows are ordered by observation date ascending.
func (h *Handler) HandleGetSeries(w http.ResponseWriter, r *http.Request, seriesID string) {
	if catalog.ByID(seriesID) == nil {
		http.Error(w, "series not tracked", http.StatusNotFound)
		return
	}

	start := r.URL.Query().Get("start")
	if start != "" {
		if _, err := time.Parse("2006-01-02", start); err != nil {
			http.Error(w, "invalid start date", http.StatusBadRequest)
			return
		}
	}

	rows, err := h.reader.GetSeries(seriesID, start)
	if err != nil {
		h.log.Error().Err(err).Str("series_id", seriesID).Msg("Failed to get analytics rows")
		http.Error(w, "Failed to get analytics rows", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"series_id": seriesID,
			"rows":      rows,
			"count":     len(rows),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetLatest handles GET /api/analytics/latest - the most recent row of
// every series, for the scorecard.
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reader.LatestPerSeries()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get latest analytics rows")
		http.Error(w, "Failed to get latest analytics rows", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"rows":  rows,
			"count": len(rows),
		},
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
