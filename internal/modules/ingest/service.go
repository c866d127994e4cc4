package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/clients/fred"
	"github.com/labormetrics/pulse/internal/domain"
	"github.com/labormetrics/pulse/internal/modules/catalog"
)

// ErrMissingAPIKey indicates the source API credential is not configured.
// This is a configuration error: the run aborts before any fetch.
var ErrMissingAPIKey = errors.New("FRED API key is not configured")

// StatusOK, StatusPartial and StatusFailed classify an ingestion run.
// A run is ok only when no series errored; it is failed only when every
// requested series errored.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// SourceClient fetches observations for one series from the statistics API.
// Implemented by fred.Client.
type SourceClient interface {
	FetchObservations(ctx context.Context, seriesID, observationStart string) ([]fred.Observation, error)
}

// RawStore is the write side of the raw observation store used by the service.
// Implemented by RawRepository.
type RawStore interface {
	Watermark(seriesID string) (string, bool, error)
	Upsert(observations []domain.RawObservation) (int, error)
}

// Request describes one ingestion invocation.
type Request struct {
	Backfill         bool     `json:"backfill"`
	Series           []string `json:"series,omitempty"`            // optional subset of tracked series ids
	ObservationStart string   `json:"observation_start,omitempty"` // backfill start date, YYYY-MM-DD
}

// SeriesResult is the per-series outcome of a run.
type SeriesResult struct {
	Status     string `json:"status"` // "ok" or "error"
	RowsLoaded int    `json:"rows_loaded,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result is the overall outcome of a run.
type Result struct {
	RunID   string                  `json:"run_id"`
	Status  string                  `json:"status"` // ok | partial | failed
	Results map[string]SeriesResult `json:"results"`
	Errors  map[string]string       `json:"errors"`
}

// Service is the ingestor: per series it resolves the fetch start, calls the
// source client and upserts the results into the raw observation store.
// Series are processed independently; one series' failure never aborts the
// others.
type Service struct {
	client       SourceClient
	repo         RawStore
	apiKey       string
	defaultStart string
	log          zerolog.Logger
}

// NewService creates a new ingestion service.
func NewService(client SourceClient, repo RawStore, apiKey, defaultStart string, log zerolog.Logger) *Service {
	return &Service{
		client:       client,
		repo:         repo,
		apiKey:       apiKey,
		defaultStart: defaultStart,
		log:          log.With().Str("service", "ingest").Logger(),
	}
}

// Ingest runs one ingestion pass over the requested series.
//
// Incremental mode fetches from each series' watermark (the max stored
// observation_date) inclusive - the source may still revise the most recent
// published value. Backfill mode fetches from the caller-supplied start for
// all requested series, ignoring watermarks.
//
// The returned error is non-nil only for configuration errors; source and
// store failures for individual series are captured in the result maps.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if s.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	runID := uuid.NewString()
	ingestedAt := time.Now().UTC().Unix()

	result := &Result{
		RunID:   runID,
		Results: make(map[string]SeriesResult),
		Errors:  make(map[string]string),
	}

	series := catalog.Filter(req.Series)
	s.log.Info().
		Str("run_id", runID).
		Bool("backfill", req.Backfill).
		Int("series", len(series)).
		Msg("Starting ingestion run")

	for _, entry := range series {
		rows, err := s.ingestSeries(ctx, entry, req, ingestedAt)
		if err != nil {
			s.log.Error().
				Err(err).
				Str("run_id", runID).
				Str("series_id", entry.ID).
				Msg("Series ingestion failed")
			result.Results[entry.ID] = SeriesResult{Status: "error", Error: err.Error()}
			result.Errors[entry.ID] = err.Error()
			continue
		}

		result.Results[entry.ID] = SeriesResult{Status: "ok", RowsLoaded: rows}
	}

	result.Status = overallStatus(len(series), len(result.Errors))

	s.log.Info().
		Str("run_id", runID).
		Str("status", result.Status).
		Int("errors", len(result.Errors)).
		Msg("Ingestion run finished")

	return result, nil
}

// ingestSeries handles one series end to end: start resolution, fetch, upsert.
func (s *Service) ingestSeries(ctx context.Context, entry catalog.Series, req Request, ingestedAt int64) (int, error) {
	start, err := s.resolveStart(entry.ID, req)
	if err != nil {
		return 0, err
	}

	observations, err := s.client.FetchObservations(ctx, entry.ID, start)
	if err != nil {
		return 0, err
	}

	rows := make([]domain.RawObservation, 0, len(observations))
	for _, obs := range observations {
		if obs.Value == nil {
			// Missing observation is absence, not a stored null
			continue
		}
		rows = append(rows, domain.RawObservation{
			SeriesID:      entry.ID,
			Date:          obs.Date,
			Value:         *obs.Value,
			RealtimeStart: obs.RealtimeStart,
			RealtimeEnd:   obs.RealtimeEnd,
			IngestedAt:    ingestedAt,
		})
	}

	return s.repo.Upsert(rows)
}

// resolveStart picks the fetch start date for a series.
func (s *Service) resolveStart(seriesID string, req Request) (string, error) {
	if req.Backfill {
		if req.ObservationStart != "" {
			return req.ObservationStart, nil
		}
		return s.defaultStart, nil
	}

	watermark, ok, err := s.repo.Watermark(seriesID)
	if err != nil {
		return "", err
	}
	if !ok {
		return s.defaultStart, nil
	}
	// Re-fetch the watermark date itself: the source may have revised it
	return watermark, nil
}

func overallStatus(total, failed int) string {
	switch {
	case failed == 0:
		return StatusOK
	case failed == total && total > 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
