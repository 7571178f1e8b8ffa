package ocrcache

import (
	"path/filepath"
	"sync"
	"testing"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestStoreAndLookup(t *testing.T) {
	c := testCache(t)
	if err := c.Store("abc123", "recognized text"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	text, ok := c.Lookup("abc123")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if text != "recognized text" {
		t.Errorf("text = %q", text)
	}
}

func TestLookupMiss(t *testing.T) {
	c := testCache(t)
	if _, ok := c.Lookup("missing"); ok {
		t.Error("expected cache miss")
	}
}

func TestStoreEmptyText(t *testing.T) {
	// Empty recognition results are cached too, so an image without text
	// is never re-submitted to the recognizer.
	c := testCache(t)
	if err := c.Store("empty", ""); err != nil {
		t.Fatalf("Store: %v", err)
	}
	text, ok := c.Lookup("empty")
	if !ok || text != "" {
		t.Errorf("Lookup = (%q, %v), want (\"\", true)", text, ok)
	}
}

func TestClear(t *testing.T) {
	c := testCache(t)
	_ = c.Store("a", "1")
	_ = c.Store("b", "2")
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after clear", c.Len())
	}
	if _, ok := c.Lookup("a"); ok {
		t.Error("entry survived clear")
	}
}

func TestConcurrentStores(t *testing.T) {
	c := testCache(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Store("shared", "same text")
		}()
	}
	wg.Wait()

	text, ok := c.Lookup("shared")
	if !ok || text != "same text" {
		t.Errorf("Lookup = (%q, %v) after concurrent stores", text, ok)
	}
	// No leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(c.dir, ".ansuz-ocr-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}
