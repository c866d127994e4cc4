// Package clientdata provides persistent caching for external API client
// responses. Payloads are stored as msgpack blobs with expiration timestamps
// so a re-invoked ingestion run does not burn API quota re-fetching series
// that already succeeded.
package clientdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// TTL constants for cached data.
const (
	// TTLObservations - source observation payloads. Long enough to cover a
	// retried run, short enough that a fresh scheduled run re-fetches.
	TTLObservations = time.Hour
)

// Repository provides cache operations for client data.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Store saves data with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert data.
func (r *Repository) Store(key string, data interface{}, ttl time.Duration) error {
	blob, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO fred_observations (cache_key, data, expires_at) VALUES (?, ?, ?)",
		key, blob, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}

	return nil
}

// GetIfFresh decodes the cached payload into dest only if expires_at > now.
// Returns false if the key doesn't exist or the data is expired.
func (r *Repository) GetIfFresh(key string, dest interface{}) (bool, error) {
	now := time.Now().Unix()

	var blob []byte
	err := r.db.QueryRow(
		"SELECT data FROM fred_observations WHERE cache_key = ? AND expires_at > ?",
		key, now,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	if err := msgpack.Unmarshal(blob, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache entry %s: %w", key, err)
	}

	return true, nil
}

// Delete removes a single cache entry.
func (r *Repository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM fred_observations WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes all expired entries.
// Returns the number of deleted rows.
func (r *Repository) DeleteExpired() (int64, error) {
	now := time.Now().Unix()

	result, err := r.db.Exec("DELETE FROM fred_observations WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted cache entries: %w", err)
	}

	return deleted, nil
}
