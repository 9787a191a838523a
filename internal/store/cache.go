// Package store provides a SQLite-backed TTL cache for upstream payloads
// fetched by the scraping tools. It never stores conversation state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is a small key/payload cache with per-entry expiry.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(path string, logger *slog.Logger) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open cache database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Cache{db: db, logger: logger}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache migration failed: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache (
		key         TEXT PRIMARY KEY,
		payload     BLOB NOT NULL,
		expires_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_expiry ON cache(expires_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Get returns the payload for key when present and not expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	var payload []byte
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&payload, &expiresAt)
	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	if time.Now().Unix() >= expiresAt {
		return nil, false
	}
	return payload, true
}

// Put stores a payload under key with the given TTL, replacing any
// previous entry.
func (c *Cache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cache (key, payload, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		key, payload, expiresAt)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Purge removes expired entries. Called opportunistically; the cache
// stays correct without it because Get checks expiry.
func (c *Cache) Purge(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache WHERE expires_at <= ?`, time.Now().Unix())
	return err
}

func (c *Cache) Close() error {
	return c.db.Close()
}
