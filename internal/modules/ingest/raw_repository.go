// Package ingest implements the incremental ingestion stage: watermark
// resolution, source fetches and idempotent upserts into the raw observation
// store, with per-series failure isolation.
package ingest

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/domain"
)

// RawRepository provides access to the raw_observations table.
type RawRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRawRepository creates a new raw observation repository.
func NewRawRepository(db *sql.DB, log zerolog.Logger) *RawRepository {
	return &RawRepository{
		db:  db,
		log: log.With().Str("component", "raw_repository").Logger(),
	}
}

// Watermark returns the maximum observation_date currently stored for a
// series. The second return value is false when the series has no rows yet.
func (r *RawRepository) Watermark(seriesID string) (string, bool, error) {
	var date sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(observation_date) FROM raw_observations WHERE series_id = ?",
		seriesID,
	).Scan(&date)
	if err != nil {
		return "", false, fmt.Errorf("failed to query watermark for %s: %w", seriesID, err)
	}
	if !date.Valid {
		return "", false, nil
	}
	return date.String, true, nil
}

// Upsert writes a batch of raw observations for one series inside a single
// transaction, keyed by (series_id, observation_date): an existing row for
// the key has its value and provenance overwritten, otherwise a new row is
// inserted. Safe to repeat with the same input. Readers never see a
// half-written batch because the transaction commits atomically.
func (r *RawRepository) Upsert(observations []domain.RawObservation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if Commit succeeds

	updateStmt, err := tx.Prepare(`
		UPDATE raw_observations
		SET value = ?, realtime_start = ?, realtime_end = ?, ingested_at = ?
		WHERE series_id = ? AND observation_date = ?
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare update: %w", err)
	}
	defer updateStmt.Close()

	insertStmt, err := tx.Prepare(`
		INSERT INTO raw_observations
		(series_id, observation_date, value, realtime_start, realtime_end, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insertStmt.Close()

	for _, obs := range observations {
		res, err := updateStmt.Exec(
			obs.Value, obs.RealtimeStart, obs.RealtimeEnd, obs.IngestedAt,
			obs.SeriesID, obs.Date,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update observation %s/%s: %w", obs.SeriesID, obs.Date, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected > 0 {
			continue
		}

		_, err = insertStmt.Exec(
			obs.SeriesID, obs.Date, obs.Value,
			obs.RealtimeStart, obs.RealtimeEnd, obs.IngestedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert observation %s/%s: %w", obs.SeriesID, obs.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}

	return len(observations), nil
}

// AllOrdered reads the full raw store ordered by series, date and ingestion
// recency (ingested_at, then insertion id). Within one (series, date) key the
// LAST row returned is the authoritative one, which makes the transformer's
// dedup a single ordered pass.
func (r *RawRepository) AllOrdered() ([]domain.RawObservation, error) {
	rows, err := r.db.Query(`
		SELECT series_id, observation_date, value, realtime_start, realtime_end, ingested_at
		FROM raw_observations
		ORDER BY series_id, observation_date, ingested_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw observations: %w", err)
	}
	defer rows.Close()

	var observations []domain.RawObservation
	for rows.Next() {
		var obs domain.RawObservation
		var realtimeStart, realtimeEnd sql.NullString

		err := rows.Scan(&obs.SeriesID, &obs.Date, &obs.Value, &realtimeStart, &realtimeEnd, &obs.IngestedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw observation: %w", err)
		}

		obs.RealtimeStart = realtimeStart.String
		obs.RealtimeEnd = realtimeEnd.String
		observations = append(observations, obs)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw observations: %w", err)
	}

	return observations, nil
}

// CountForSeries returns the number of raw rows stored for a series.
func (r *RawRepository) CountForSeries(seriesID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM raw_observations WHERE series_id = ?",
		seriesID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count observations for %s: %w", seriesID, err)
	}
	return count, nil
}
