package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLite backed cache for raw engine trip responses.
// Keys are request fingerprints built by the caller; the payload is stored
// verbatim so a hit replays exactly what the engine once returned.
type SqliteTripCache struct {
	DB *sql.DB
}

func NewSqliteTripCache(db *sql.DB) *SqliteTripCache {
	return &SqliteTripCache{DB: db}
}

// Initialize the SQLite trip-cache schema.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init cache schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init cache schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createTripCacheQuery := `
	CREATE TABLE IF NOT EXISTS trip_cache (
        cache_key TEXT PRIMARY KEY,
        payload BLOB NOT NULL,
        created_at TEXT NOT NULL
    );
	`

	statements := []string{
		createTripCacheQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init cache schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init cache schema: commit tx: %w", err)
	}

	return nil
}

// Fetch one cached response payload.
func (s *SqliteTripCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.DB == nil {
		return nil, false, errors.New("trip cache: db is nil")
	}

	if key == "" {
		return nil, false, errors.New("get trip cache: key must not be empty")
	}

	q := `
	SELECT payload
    FROM trip_cache
    WHERE cache_key = ?;
	`

	var payload []byte
	err := s.DB.QueryRowContext(ctx, q, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get trip cache: query trip_cache table: %w", err)
	}

	return payload, true, nil
}

// Store or replace one cached response payload.
func (s *SqliteTripCache) Put(ctx context.Context, key string, payload []byte) error {
	if s.DB == nil {
		return errors.New("trip cache: db is nil")
	}

	if key == "" {
		return errors.New("insert trip cache: key must not be empty")
	}

	q := `
	INSERT OR REPLACE INTO trip_cache (cache_key, payload, created_at)
    VALUES (?, ?, ?);
	`

	if _, err := s.DB.ExecContext(ctx, q, key, payload, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("insert trip cache key=%q: %w", key, err)
	}

	return nil
}
