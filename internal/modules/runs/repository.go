// Package runs records pipeline run outcomes for the status endpoints.
package runs

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Record is a single pipeline stage execution.
type Record struct {
	ID         int64   `json:"id"`
	RunID      string  `json:"run_id"`
	Stage      string  `json:"stage"`
	StartedAt  int64   `json:"started_at"`
	FinishedAt *int64  `json:"finished_at"`
	Status     string  `json:"status"`
	Detail     *string `json:"detail"`
}

// Repository persists run history in the cache database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "runs").Logger(),
	}
}

// Start inserts a new record and returns its id for the later Finish call.
func (r *Repository) Start(runID, stage string, startedAt int64) (int64, error) {
	res, err := r.db.Exec(
		"INSERT INTO run_history (run_id, stage, started_at, status) VALUES (?, ?, ?, 'running')",
		runID, stage, startedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record run start: %w", err)
	}
	return res.LastInsertId()
}

// Finish closes a record opened by Start.
func (r *Repository) Finish(id int64, finishedAt int64, status string, detail string) error {
	var d interface{}
	if detail != "" {
		d = detail
	}
	_, err := r.db.Exec(
		"UPDATE run_history SET finished_at = ?, status = ?, detail = ? WHERE id = ?",
		finishedAt, status, d, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first.
func (r *Repository) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(
		"SELECT id, run_id, stage, started_at, finished_at, status, detail FROM run_history ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var finishedAt sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Stage, &rec.StartedAt, &finishedAt, &rec.Status, &detail); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		if finishedAt.Valid {
			v := finishedAt.Int64
			rec.FinishedAt = &v
		}
		if detail.Valid {
			v := detail.String
			rec.Detail = &v
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Prune deletes records older than the newest keep rows.
func (r *Repository) Prune(keep int) error {
	_, err := r.db.Exec(
		"DELETE FROM run_history WHERE id NOT IN (SELECT id FROM run_history ORDER BY id DESC LIMIT ?)",
		keep,
	)
	if err != nil {
		return fmt.Errorf("failed to prune run history: %w", err)
	}
	return nil
}
