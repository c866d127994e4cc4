package runs

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE run_history (
			id          INTEGER PRIMARY KEY,
			run_id      TEXT    NOT NULL,
			stage       TEXT    NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			status      TEXT    NOT NULL,
			detail      TEXT
		);
	`)
	require.NoError(t, err)

	return db
}

func TestStartFinish(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	id, err := repo.Start("run-1", "ingest", 1700000000)
	require.NoError(t, err)

	records, err := repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "running", records[0].Status)
	assert.Nil(t, records[0].FinishedAt)

	require.NoError(t, repo.Finish(id, 1700000060, "ok", "8 series loaded"))

	records, err = repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].Status)
	require.NotNil(t, records[0].FinishedAt)
	assert.Equal(t, int64(1700000060), *records[0].FinishedAt)
	require.NotNil(t, records[0].Detail)
	assert.Equal(t, "8 series loaded", *records[0].Detail)
}

func TestFinish_EmptyDetailStoredAsNull(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	id, err := repo.Start("run-1", "transform", 1700000000)
	require.NoError(t, err)
	require.NoError(t, repo.Finish(id, 1700000001, "ok", ""))

	records, err := repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Detail)
}

func TestRecent_NewestFirstAndLimited(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := repo.Start("run", "ingest", int64(1700000000+i))
		require.NoError(t, err)
	}

	records, err := repo.Recent(3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1700000004), records[0].StartedAt)
	assert.Equal(t, int64(1700000002), records[2].StartedAt)
}

func TestPrune(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	for i := 0; i < 10; i++ {
		_, err := repo.Start("run", "ingest", int64(i))
		require.NoError(t, err)
	}

	require.NoError(t, repo.Prune(4))

	records, err := repo.Recent(100)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, int64(9), records[0].StartedAt)
}
