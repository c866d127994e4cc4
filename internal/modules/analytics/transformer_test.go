package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labormetrics/pulse/internal/modules/ingest"

	_ "modernc.org/sqlite"
)

// setupTestDB creates an in-memory warehouse with raw and analytics tables.
func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE raw_observations (
			id               INTEGER PRIMARY KEY,
			series_id        TEXT    NOT NULL,
			observation_date TEXT    NOT NULL,
			value            REAL    NOT NULL,
			realtime_start   TEXT,
			realtime_end     TEXT,
			ingested_at      INTEGER NOT NULL
		);
		CREATE TABLE analytics (
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
		);
	`)
	require.NoError(t, err)

	return db
}

func insertRaw(t *testing.T, db *sql.DB, seriesID, date string, value float64, ingestedAt int64) {
	_, err := db.Exec(
		"INSERT INTO raw_observations (series_id, observation_date, value, ingested_at) VALUES (?, ?, ?, ?)",
		seriesID, date, value, ingestedAt,
	)
	require.NoError(t, err)
}

func newTestTransformer(t *testing.T, db *sql.DB) (*Transformer, *Repository) {
	rawRepo := ingest.NewRawRepository(db, zerolog.Nop())
	store := NewRepository(db, zerolog.Nop())
	return NewTransformer(rawRepo, store, zerolog.Nop()), store
}

func TestRecompute_PeriodChanges(t *testing.T) {
	db := setupTestDB(t)

	// Raw values [100, 102, 99] at d1, d2, d3
	insertRaw(t, db, "X", "2024-01-01", 100, 1)
	insertRaw(t, db, "X", "2024-02-01", 102, 1)
	insertRaw(t, db, "X", "2024-03-01", 99, 1)

	transformer, store := newTestTransformer(t, db)
	n, err := transformer.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := store.GetSeries("X", "")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// First observation has no prior
	assert.Nil(t, rows[0].MomChange)
	assert.Nil(t, rows[0].MomPctChange)

	require.NotNil(t, rows[1].MomChange)
	assert.InDelta(t, 2.0, *rows[1].MomChange, 1e-9)

	require.NotNil(t, rows[2].MomChange)
	assert.InDelta(t, -3.0, *rows[2].MomChange, 1e-9)
	require.NotNil(t, rows[2].MomPctChange)
	assert.InDelta(t, -2.94, *rows[2].MomPctChange, 0.01)
}

func TestRecompute_DedupKeepsLatestIngestion(t *testing.T) {
	db := setupTestDB(t)

	insertRaw(t, db, "X", "2024-01-01", 100, 100)
	insertRaw(t, db, "X", "2024-01-01", 105, 200) // later ingestion restates the value

	transformer, store := newTestTransformer(t, db)
	n, err := transformer.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := store.GetSeries("X", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 105, rows[0].Value, 1e-9)
}

func TestRecompute_DedupTieBreak(t *testing.T) {
	db := setupTestDB(t)

	// Same ingested_at: the row inserted later (greater id) wins. Insertion
	// order here is deliberately value-descending to prove it is the id, not
	// the value or scan order, that decides.
	insertRaw(t, db, "X", "2024-01-01", 200, 100)
	insertRaw(t, db, "X", "2024-01-01", 150, 100)

	transformer, store := newTestTransformer(t, db)
	_, err := transformer.Recompute(context.Background())
	require.NoError(t, err)

	rows, err := store.GetSeries("X", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 150, rows[0].Value, 1e-9)
}

func TestRecompute_WindowEdges(t *testing.T) {
	db := setupTestDB(t)

	// 13 monthly observations
	for i := 0; i < 13; i++ {
		date := fmt.Sprintf("2024-%02d-01", i+1)
		if i >= 12 {
			date = fmt.Sprintf("2025-%02d-01", i-11)
		}
		insertRaw(t, db, "X", date, float64(100+i), 1)
	}

	transformer, store := newTestTransformer(t, db)
	_, err := transformer.Recompute(context.Background())
	require.NoError(t, err)

	rows, err := store.GetSeries("X", "")
	require.NoError(t, err)
	require.Len(t, rows, 13)

	// ma_3 fills from the 3rd row onward
	assert.Nil(t, rows[1].MA3)
	require.NotNil(t, rows[2].MA3)
	assert.InDelta(t, 101, *rows[2].MA3, 1e-9)

	// yoy and ma_12 need 12 prior observations / a full 12-row window
	assert.Nil(t, rows[11].YoyChange)
	require.NotNil(t, rows[11].MA12)
	assert.Nil(t, rows[10].MA12)

	require.NotNil(t, rows[12].YoyChange)
	assert.InDelta(t, 12, *rows[12].YoyChange, 1e-9)
	require.NotNil(t, rows[12].YoyPctChange)
	assert.InDelta(t, 12.0, *rows[12].YoyPctChange, 1e-9)
}

func TestRecompute_ShortSeriesAllYoyNull(t *testing.T) {
	db := setupTestDB(t)

	for i := 1; i <= 5; i++ {
		insertRaw(t, db, "X", fmt.Sprintf("2024-%02d-01", i), float64(i), 1)
	}

	transformer, store := newTestTransformer(t, db)
	_, err := transformer.Recompute(context.Background())
	require.NoError(t, err)

	rows, err := store.GetSeries("X", "")
	require.NoError(t, err)
	for _, row := range rows {
		assert.Nil(t, row.YoyChange)
		assert.Nil(t, row.YoyPctChange)
		assert.Nil(t, row.MA12)
	}
}

func TestRecompute_ZeroPriorYieldsNullPct(t *testing.T) {
	db := setupTestDB(t)

	insertRaw(t, db, "X", "2024-01-01", 0, 1)
	insertRaw(t, db, "X", "2024-02-01", 5, 1)

	transformer, store := newTestTransformer(t, db)
	_, err := transformer.Recompute(context.Background())
	require.NoError(t, err)

	rows, err := store.GetSeries("X", "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[1].MomChange)
	assert.InDelta(t, 5, *rows[1].MomChange, 1e-9)
	assert.Nil(t, rows[1].MomPctChange)
}

func TestRecompute_ZeroVarianceYieldsNullZScore(t *testing.T) {
	db := setupTestDB(t)

	for i := 1; i <= 6; i++ {
		insertRaw(t, db, "X", fmt.Sprintf("2024-%02d-01", i), 42, 1)
	}

	transformer, store := newTestTransformer(t, db)
	_, err := transformer.Recompute(context.Background())
	require.NoError(t, err)

	rows, err := store.GetSeries("X", "")
	require.NoError(t, err)
	for _, row := range rows {
		assert.Nil(t, row.ZScore60)
	}
}

func TestRecompute_SeriesAreIndependent(t *testing.T) {
	db := setupTestDB(t)

	insertRaw(t, db, "A", "2024-01-01", 10, 1)
	insertRaw(t, db, "A", "2024-02-01", 20, 1)
	insertRaw(t, db, "B", "2024-02-01", 100, 1)
	insertRaw(t, db, "B", "2024-03-01", 110, 1)

	transformer, store := newTestTransformer(t, db)
	_, err := transformer.Recompute(context.Background())
	require.NoError(t, err)

	rowsA, err := store.GetSeries("A", "")
	require.NoError(t, err)
	rowsB, err := store.GetSeries("B", "")
	require.NoError(t, err)

	// B's first observation must not see A's last value as its "prior"
	assert.Nil(t, rowsB[0].MomChange)
	require.NotNil(t, rowsA[1].MomChange)
	assert.InDelta(t, 10, *rowsA[1].MomChange, 1e-9)
	require.NotNil(t, rowsB[1].MomChange)
	assert.InDelta(t, 10, *rowsB[1].MomChange, 1e-9)
}

func TestRecompute_ReplacesWholesale(t *testing.T) {
	db := setupTestDB(t)

	insertRaw(t, db, "X", "2024-01-01", 100, 1)
	insertRaw(t, db, "X", "2024-02-01", 102, 1)

	transformer, store := newTestTransformer(t, db)
	_, err := transformer.Recompute(context.Background())
	require.NoError(t, err)

	// Remove a raw row and recompute: the derived table shrinks to match,
	// no stale rows linger from the previous run
	_, err = db.Exec("DELETE FROM raw_observations WHERE observation_date = '2024-02-01'")
	require.NoError(t, err)

	n, err := transformer.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecompute_EmptyStore(t *testing.T) {
	db := setupTestDB(t)

	transformer, store := newTestTransformer(t, db)
	n, err := transformer.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
