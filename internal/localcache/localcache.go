// Package localcache is the offline fallback store: each tree is held as one
// monolithic serialized record keyed by hotel id, plus a single index record
// mirroring the hotel summary list. There is no sharding or orphan logic here
// because there is nothing to shard at local scale.
package localcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrMiss is returned when a record is not present in the cache.
var ErrMiss = errors.New("localcache: miss")

// keyPrefix namespaces our records away from anything else that might share
// the database file.
const keyPrefix = "concierge:"

const indexKey = keyPrefix + "index"

type Cache struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database with the usual embedded
// SQLite pragmas: WAL journaling and a generous busy timeout.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 10000`,
		`PRAGMA synchronous = NORMAL`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			key TEXT PRIMARY KEY,
			body BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure records table: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// PutTree stores the whole serialized tree for a hotel in one record.
func (c *Cache) PutTree(ctx context.Context, hotelID string, body []byte) error {
	return c.put(ctx, treeKey(hotelID), body)
}

// GetTree returns the serialized tree for a hotel, or ErrMiss.
func (c *Cache) GetTree(ctx context.Context, hotelID string) ([]byte, error) {
	return c.get(ctx, treeKey(hotelID))
}

// DeleteTree removes a hotel's record. Deleting an absent record is fine.
func (c *Cache) DeleteTree(ctx context.Context, hotelID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM records WHERE key=?`, treeKey(hotelID)); err != nil {
		return fmt.Errorf("delete cached tree: %w", err)
	}
	return nil
}

// PutIndex stores the serialized summary list.
func (c *Cache) PutIndex(ctx context.Context, body []byte) error {
	return c.put(ctx, indexKey, body)
}

// GetIndex returns the serialized summary list, or ErrMiss.
func (c *Cache) GetIndex(ctx context.Context) ([]byte, error) {
	return c.get(ctx, indexKey)
}

func (c *Cache) put(ctx context.Context, key string, body []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO records (key, body, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT (key) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at
	`, key, body)
	if err != nil {
		return fmt.Errorf("put cache record: %w", err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := c.db.QueryRowContext(ctx, `SELECT body FROM records WHERE key=?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get cache record: %w", err)
	}
	return body, nil
}

func treeKey(hotelID string) string {
	return keyPrefix + "tree:" + hotelID
}
