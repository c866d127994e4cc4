package analytics

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/domain"
	"github.com/labormetrics/pulse/pkg/formulas"
)

// Window sizes for the derived columns. The lags count observations in the
// series' own ordered sequence, not calendar periods: for weekly series the
// 12-observation lag is the 12th previous sample, not one calendar year.
// That matches the published dashboard's semantics and is kept as-is.
const (
	momLag       = 1
	yoyLag       = 12
	shortWindow  = 3
	longWindow   = 12
	zScoreWindow = 60
)

// RawReader is the read side of the raw observation store. Implemented by
// ingest.RawRepository. Rows arrive ordered by series, date and ingestion
// recency - within one (series, date) key the last row wins.
type RawReader interface {
	AllOrdered() ([]domain.RawObservation, error)
}

// AnalyticsStore is the write side of the derived table. Implemented by
// Repository.
type AnalyticsStore interface {
	ReplaceAll(rows []domain.AnalyticsRow) error
}

// Transformer recomputes the analytics table from the full raw store.
type Transformer struct {
	raw   RawReader
	store AnalyticsStore
	log   zerolog.Logger
}

// NewTransformer creates a new analytics transformer.
func NewTransformer(raw RawReader, store AnalyticsStore, log zerolog.Logger) *Transformer {
	return &Transformer{
		raw:   raw,
		store: store,
		log:   log.With().Str("service", "transform").Logger(),
	}
}

// Recompute takes a single full read of the raw observation store,
// deduplicates it to the authoritative observation per (series, date),
// derives the windowed analytics per series, and swaps the result in as the
// new analytics table. Returns the number of rows written.
//
// The output is only as fresh as the snapshot read here; rows landing from a
// concurrent ingest run are picked up by the next scheduled recompute.
func (t *Transformer) Recompute(ctx context.Context) (int, error) {
	raw, err := t.raw.AllOrdered()
	if err != nil {
		return 0, err
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	authoritative := deduplicate(raw)
	rows := derive(authoritative)

	if err := t.store.ReplaceAll(rows); err != nil {
		return 0, err
	}

	t.log.Info().
		Int("raw_rows", len(raw)).
		Int("analytics_rows", len(rows)).
		Msg("Analytics recomputed")

	return len(rows), nil
}

// deduplicate keeps exactly one observation per (series_id, date): the one
// with the greatest ingested_at, ties broken by greatest insertion id. The
// input is already ordered so the last row of each key group wins. Output
// order (series, then date ascending) is preserved.
func deduplicate(raw []domain.RawObservation) []domain.RawObservation {
	var out []domain.RawObservation
	for _, obs := range raw {
		if n := len(out); n > 0 && out[n-1].SeriesID == obs.SeriesID && out[n-1].Date == obs.Date {
			out[n-1] = obs
			continue
		}
		out = append(out, obs)
	}
	return out
}

// derive computes the analytics rows from deduplicated observations. The
// input is grouped by series with dates ascending; each series is derived
// over its own ordered sequence.
func derive(observations []domain.RawObservation) []domain.AnalyticsRow {
	var rows []domain.AnalyticsRow

	for start := 0; start < len(observations); {
		end := start
		for end < len(observations) && observations[end].SeriesID == observations[start].SeriesID {
			end++
		}
		rows = append(rows, deriveSeries(observations[start:end])...)
		start = end
	}

	return rows
}

func deriveSeries(series []domain.RawObservation) []domain.AnalyticsRow {
	values := make([]float64, len(series))
	for i, obs := range series {
		values[i] = obs.Value
	}

	momChanges := formulas.Changes(values, momLag)
	momPcts := formulas.PctChanges(values, momLag)
	yoyChanges := formulas.Changes(values, yoyLag)
	yoyPcts := formulas.PctChanges(values, yoyLag)
	ma3 := formulas.MovingAverages(values, shortWindow)
	ma12 := formulas.MovingAverages(values, longWindow)
	zScores := formulas.RollingZScores(values, zScoreWindow)

	rows := make([]domain.AnalyticsRow, len(series))
	for i, obs := range series {
		rows[i] = domain.AnalyticsRow{
			SeriesID:     obs.SeriesID,
			Date:         obs.Date,
			Value:        obs.Value,
			MomChange:    momChanges[i],
			MomPctChange: momPcts[i],
			YoyChange:    yoyChanges[i],
			YoyPctChange: yoyPcts[i],
			MA3:          ma3[i],
			MA12:         ma12[i],
			ZScore60:     zScores[i],
		}
	}

	return rows
}
