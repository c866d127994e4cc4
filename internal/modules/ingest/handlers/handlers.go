// Package handlers provides the HTTP trigger for ingestion runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/modules/ingest"
)

// IngestService runs ingestion passes. Implemented by ingest.Service.
type IngestService interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Handler handles ingestion trigger requests
type Handler struct {
	service IngestService
	log     zerolog.Logger
}

// NewHandler creates a new ingestion handler
func NewHandler(service IngestService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ingest").Logger(),
	}
}

// RegisterRoutes registers ingestion routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ingest", h.HandleIngest)
}

// HandleIngest handles POST /api/ingest.
// Body: {"backfill": bool, "series": [ids], "observation_start": "YYYY-MM-DD"},
// all fields optional. Responds 200 when every series loaded, 207 when some
// failed, 502 when all failed.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		// An empty body means "incremental run over all series"
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Ingest(r.Context(), req)
	if err != nil {
		if errors.Is(err, ingest.ErrMissingAPIKey) {
			h.log.Error().Err(err).Msg("Ingestion misconfigured")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.log.Error().Err(err).Msg("Ingestion run failed")
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	switch result.Status {
	case ingest.StatusPartial:
		status = http.StatusMultiStatus
	case ingest.StatusFailed:
		status = http.StatusBadGateway
	}

	response := map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
