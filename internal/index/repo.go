package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Record is one indexed page: identity, change-detection fingerprint,
// scope fields for filtering, and the embedding vector. A nil Vector
// means the page carried no embeddable text; it is still tracked for
// change detection but never surfaces in semantic search.
type Record struct {
	PageID      string
	Fingerprint string
	Notebook    string
	Section     string
	Title       string
	Provenance  string
	Modified    time.Time
	Vector      []float32
}

// Fingerprints returns page_id -> fingerprint for every indexed page
// with the given provenance.
func (db *DB) Fingerprints(provenance string) (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT page_id, fingerprint FROM pages WHERE provenance = ?`, provenance)
	if err != nil {
		return nil, fmt.Errorf("index: fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, err
		}
		out[id] = fp
	}
	return out, rows.Err()
}

// Upsert inserts or replaces the given records within one transaction.
func (db *DB) Upsert(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`
		INSERT INTO pages (page_id, fingerprint, notebook, section, title, provenance, modified, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			notebook    = excluded.notebook,
			section     = excluded.section,
			title       = excluded.title,
			provenance  = excluded.provenance,
			modified    = excluded.modified,
			vector      = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("index: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.PageID, r.Fingerprint, r.Notebook, r.Section, r.Title,
			r.Provenance, r.Modified.UTC(), encodeVector(r.Vector)); err != nil {
			return fmt.Errorf("index: upsert %s: %w", r.PageID, err)
		}
	}
	return tx.Commit()
}

// Remove deletes the given page IDs within one transaction.
func (db *DB) Remove(pageIDs []string) error {
	if len(pageIDs) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`DELETE FROM pages WHERE page_id = ?`)
	if err != nil {
		return fmt.Errorf("index: prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range pageIDs {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("index: delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of indexed pages.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM pages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// Vectors are stored as little-endian float32 blobs.

func encodeVector(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
