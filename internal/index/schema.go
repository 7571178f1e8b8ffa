// Package index provides the SQLite-backed page index: fingerprints for
// change detection and embedding vectors for semantic search.
package index

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/mattn/go-sqlite3"
)

// formatVersion is bumped whenever the on-disk layout changes in a way
// that existing rows cannot be reused. A mismatch triggers a reset, not
// an error, so stale indexes heal themselves on the next refresh.
const formatVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pages (
	page_id     TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL DEFAULT '',
	notebook    TEXT NOT NULL DEFAULT '',
	section     TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	provenance  TEXT NOT NULL DEFAULT 'local',
	modified    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	vector      BLOB
);

CREATE INDEX IF NOT EXISTS idx_pages_scope ON pages(notebook, section);
CREATE INDEX IF NOT EXISTS idx_pages_provenance ON pages(provenance);

CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// DB wraps a sql.DB with page-index operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// model is the embedding model the caller will use; if the stored index
// was built with a different model or format version, all page rows are
// dropped so the next refresh rebuilds from scratch. A file that cannot
// be read as a database at all is discarded and recreated empty: losing
// the index only costs a re-embed on the next refresh.
func Open(dsn, model string) (*DB, error) {
	db, err := open(dsn, model)
	if err == nil || !isUnreadable(err) {
		return db, err
	}

	slog.Warn("index: discarding unreadable index file",
		slog.String("path", dsn),
		slog.String("error", err.Error()))
	if err := removeDatabaseFiles(dsn); err != nil {
		return nil, fmt.Errorf("index: discard unreadable db: %w", err)
	}
	return open(dsn, model)
}

func open(dsn, model string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.checkMeta(model); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// isUnreadable reports whether err means the file on disk is not a
// usable SQLite database, as opposed to a transient open failure.
func isUnreadable(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrNotADB || se.Code == sqlite3.ErrCorrupt
	}
	return false
}

// removeDatabaseFiles deletes the database file and its WAL siblings.
func removeDatabaseFiles(dsn string) error {
	if err := os.Remove(dsn); err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dsn + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// checkMeta compares the stored format version and embedding model
// against the current ones and resets the index on mismatch.
func (db *DB) checkMeta(model string) error {
	storedVersion := db.metaValue("format_version")
	storedModel := db.metaValue("embedding_model")

	current := strconv.Itoa(formatVersion)
	if storedVersion != "" && (storedVersion != current || storedModel != model) {
		if err := db.Reset(); err != nil {
			return err
		}
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin meta tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for key, value := range map[string]string{
		"format_version":  current,
		"embedding_model": model,
	} {
		if _, err := tx.Exec(`
			INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("index: write meta: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) metaValue(key string) string {
	var v string
	if err := db.conn.QueryRow(`SELECT value FROM index_meta WHERE key = ?`, key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// Reset drops every indexed page. Metadata is kept.
func (db *DB) Reset() error {
	if _, err := db.conn.Exec(`DELETE FROM pages`); err != nil {
		return fmt.Errorf("index: reset: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
