// Package uploadcache is an optional on-disk cache of raw uploaded files,
// keyed by (session_id, filename). It is never consulted for retrieval and
// never the source of truth for the knowledge base; it exists only to
// short-circuit an idempotent re-upload of identical content.
package uploadcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS raw_uploads (
	session_id   TEXT NOT NULL,
	filename     TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	content      BLOB NOT NULL,
	created_at   TEXT NOT NULL,
	PRIMARY KEY (session_id, filename)
);
`

// Cache wraps a SQLite-backed best-effort store of raw upload bytes.
type Cache struct {
	db *sql.DB
}

// Open creates (if absent) and opens the cache database at path.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("uploadcache: creating directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("uploadcache: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("uploadcache: pinging database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("uploadcache: creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func hashOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Put best-effort writes content for (sessionID, filename). Failures are
// not fatal to the caller's upload; the cache is a convenience, not the
// source of truth.
func (c *Cache) Put(ctx context.Context, sessionID, filename string, content []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO raw_uploads (session_id, filename, content_hash, content, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, filename) DO UPDATE SET
		   content_hash=excluded.content_hash, content=excluded.content, created_at=excluded.created_at`,
		sessionID, filename, hashOf(content), content, time.Now().UTC().Format(time.RFC3339))
	return err
}

// MatchesExisting reports whether (sessionID, filename) is already cached
// with identical content, allowing the caller to short-circuit a
// re-upload without reparsing and re-embedding.
func (c *Cache) MatchesExisting(ctx context.Context, sessionID, filename string, content []byte) (bool, error) {
	var storedHash string
	err := c.db.QueryRowContext(ctx,
		`SELECT content_hash FROM raw_uploads WHERE session_id = ? AND filename = ?`,
		sessionID, filename).Scan(&storedHash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return storedHash == hashOf(content), nil
}
