// Package ocrcache persists OCR results keyed by image content fingerprint.
//
// Entries are append-mostly and never expire: an image embedded in a saved
// page is immutable, so a recognized text stays valid for the lifetime of
// the cache. Each entry is its own JSON file written atomically, which
// keeps concurrent extraction calls from corrupting the store without any
// shared lock.
package ocrcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cache is a directory of <fingerprint>.json entries.
type Cache struct {
	dir string
}

type entry struct {
	Text string `json:"text"`
}

// New creates the cache directory if needed and returns the cache.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ocrcache: create dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) entryPath(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json")
}

// Lookup returns the cached text for an image fingerprint. The second
// return value is false when the entry is absent or unreadable.
func (c *Cache) Lookup(fingerprint string) (string, bool) {
	data, err := os.ReadFile(c.entryPath(fingerprint))
	if err != nil {
		return "", false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", false
	}
	return e.Text, true
}

// Store writes an entry atomically: temp file → fsync → rename.
func (c *Cache) Store(fingerprint, text string) error {
	data, err := json.Marshal(entry{Text: text})
	if err != nil {
		return fmt.Errorf("ocrcache: marshal entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".ansuz-ocr-*")
	if err != nil {
		return fmt.Errorf("ocrcache: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("ocrcache: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("ocrcache: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ocrcache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, c.entryPath(fingerprint)); err != nil {
		return fmt.Errorf("ocrcache: rename: %w", err)
	}
	success = true
	return nil
}

// Clear removes every entry. The only way entries are ever invalidated.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("ocrcache: read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("ocrcache: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			n++
		}
	}
	return n
}
