// Package analytics implements the transform stage: deterministic
// recomputation of the derived analytics table from the full raw observation
// store, replaced wholesale via a staging table swap.
package analytics

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/domain"
)

// Repository provides access to the analytics table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new analytics repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "analytics_repository").Logger(),
	}
}

// ReplaceAll swaps in a freshly computed analytics table. The new rows are
// written to a staging table first, then the old table is dropped and the
// staging table renamed, all inside one transaction: concurrent readers see
// either the fully old or fully new table, never a mix. On any failure the
// transaction rolls back and the previous snapshot stays authoritative.
func (r *Repository) ReplaceAll(rows []domain.AnalyticsRow) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if Commit succeeds

	if _, err := tx.Exec("DROP TABLE IF EXISTS analytics_staging"); err != nil {
		return fmt.Errorf("failed to drop stale staging table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE analytics_staging (
			series_id        TEXT NOT NULL,
			observation_date TEXT NOT NULL,
			value            REAL NOT NULL,
			mom_change       REAL,
			mom_pct_change   REAL,
			yoy_change       REAL,
			yoy_pct_change   REAL,
			ma_3             REAL,
			ma_12            REAL,
			z_score_60       REAL,
			PRIMARY KEY (series_id, observation_date)
		)
	`); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO analytics_staging
		(series_id, observation_date, value, mom_change, mom_pct_change,
		 yoy_change, yoy_pct_change, ma_3, ma_12, z_score_60)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare staging insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.Exec(
			row.SeriesID, row.Date, row.Value,
			nullable(row.MomChange), nullable(row.MomPctChange),
			nullable(row.YoyChange), nullable(row.YoyPctChange),
			nullable(row.MA3), nullable(row.MA12), nullable(row.ZScore60),
		)
		if err != nil {
			return fmt.Errorf("failed to stage analytics row %s/%s: %w", row.SeriesID, row.Date, err)
		}
	}

	if _, err := tx.Exec("DROP TABLE IF EXISTS analytics"); err != nil {
		return fmt.Errorf("failed to drop previous analytics table: %w", err)
	}

	if _, err := tx.Exec("ALTER TABLE analytics_staging RENAME TO analytics"); err != nil {
		return fmt.Errorf("failed to swap in staging table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analytics swap: %w", err)
	}

	return nil
}

// GetSeries reads analytics rows for one series from the given start date
// (inclusive, YYYY-MM-DD, empty for all), ordered by date ascending.
// This is the dashboard's chart read path.
func (r *Repository) GetSeries(seriesID, start string) ([]domain.AnalyticsRow, error) {
	rows, err := r.db.Query(`
		SELECT series_id, observation_date, value, mom_change, mom_pct_change,
		       yoy_change, yoy_pct_change, ma_3, ma_12, z_score_60
		FROM analytics
		WHERE series_id = ? AND observation_date >= ?
		ORDER BY observation_date ASC
	`, seriesID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics for %s: %w", seriesID, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// LatestPerSeries reads the most recent analytics row of every series.
// This is the dashboard's scorecard read path.
func (r *Repository) LatestPerSeries() ([]domain.AnalyticsRow, error) {
	rows, err := r.db.Query(`
		SELECT a.series_id, a.observation_date, a.value, a.mom_change, a.mom_pct_change,
		       a.yoy_change, a.yoy_pct_change, a.ma_3, a.ma_12, a.z_score_60
		FROM analytics a
		JOIN (
			SELECT series_id, MAX(observation_date) AS max_date
			FROM analytics
			GROUP BY series_id
		) latest ON a.series_id = latest.series_id AND a.observation_date = latest.max_date
		ORDER BY a.series_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest analytics rows: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Count returns the number of rows in the analytics table.
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM analytics").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analytics rows: %w", err)
	}
	return count, nil
}

func scanRows(rows *sql.Rows) ([]domain.AnalyticsRow, error) {
	var out []domain.AnalyticsRow
	for rows.Next() {
		var row domain.AnalyticsRow
		var momChange, momPct, yoyChange, yoyPct, ma3, ma12, zScore sql.NullFloat64

		err := rows.Scan(
			&row.SeriesID, &row.Date, &row.Value,
			&momChange, &momPct, &yoyChange, &yoyPct, &ma3, &ma12, &zScore,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analytics row: %w", err)
		}

		row.MomChange = fromNull(momChange)
		row.MomPctChange = fromNull(momPct)
		row.YoyChange = fromNull(yoyChange)
		row.YoyPctChange = fromNull(yoyPct)
		row.MA3 = fromNull(ma3)
		row.MA12 = fromNull(ma12)
		row.ZScore60 = fromNull(zScore)

		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analytics rows: %w", err)
	}

	return out, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
