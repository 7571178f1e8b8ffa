package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/notebook"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, "test-model")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rec(id, fp, nb, sec string, vec []float32) Record {
	return Record{
		PageID:      id,
		Fingerprint: fp,
		Notebook:    nb,
		Section:     sec,
		Title:       id,
		Provenance:  "local",
		Modified:    time.Now(),
		Vector:      vec,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages`).Scan(&count); err != nil {
		t.Fatalf("pages table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM index_meta`).Scan(&count); err != nil {
		t.Fatalf("index_meta table missing: %v", err)
	}
}

func TestUpsertAndFingerprints(t *testing.T) {
	db := testDB(t)
	err := db.Upsert([]Record{
		rec("local:Work/Sec/A", "fp-a", "Work", "Sec", []float32{1, 0}),
		rec("local:Work/Sec/B", "fp-b", "Work", "Sec", []float32{0, 1}),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	fps, err := db.Fingerprints("local")
	if err != nil {
		t.Fatalf("Fingerprints: %v", err)
	}
	if len(fps) != 2 || fps["local:Work/Sec/A"] != "fp-a" {
		t.Errorf("fingerprints = %v", fps)
	}

	// Replacing a record must not duplicate it.
	if err := db.Upsert([]Record{rec("local:Work/Sec/A", "fp-a2", "Work", "Sec", []float32{1, 1})}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}
	n, _ := db.Count()
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	fps, _ = db.Fingerprints("local")
	if fps["local:Work/Sec/A"] != "fp-a2" {
		t.Errorf("fingerprint not replaced: %v", fps)
	}
}

func TestFingerprintsScopedByProvenance(t *testing.T) {
	db := testDB(t)
	local := rec("local:Work/Sec/A", "fp-a", "Work", "Sec", nil)
	remote := rec("remote:Work/Sec/B", "fp-b", "Work", "Sec", nil)
	remote.Provenance = "remote"
	if err := db.Upsert([]Record{local, remote}); err != nil {
		t.Fatal(err)
	}

	fps, err := db.Fingerprints("local")
	if err != nil {
		t.Fatal(err)
	}
	if len(fps) != 1 {
		t.Errorf("local fingerprints = %v, want 1 entry", fps)
	}
	if _, ok := fps["remote:Work/Sec/B"]; ok {
		t.Error("remote record leaked into local fingerprints")
	}
}

func TestRemove(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert([]Record{
		rec("local:Work/Sec/A", "fp-a", "Work", "Sec", nil),
		rec("local:Work/Sec/B", "fp-b", "Work", "Sec", nil),
	})

	if err := db.Remove([]string{"local:Work/Sec/A"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	n, _ := db.Count()
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	db, err := Open(path, "test-model")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert([]Record{rec("local:Work/Sec/A", "fp-a", "Work", "Sec", []float32{0.5, 0.5})}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path, "test-model")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	fps, err := db.Fingerprints("local")
	if err != nil {
		t.Fatal(err)
	}
	if fps["local:Work/Sec/A"] != "fp-a" {
		t.Errorf("fingerprints after reopen = %v", fps)
	}
	hits, err := db.Search([]float32{0.5, 0.5}, 5, notebook.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits after reopen = %d, want 1", len(hits))
	}
	if hits[0].Score < 0.99 {
		t.Errorf("score = %v, want ~1 for identical vector", hits[0].Score)
	}
}

func TestModelChangeResetsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.db")
	db, err := Open(path, "model-a")
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Upsert([]Record{rec("local:Work/Sec/A", "fp-a", "Work", "Sec", nil)})
	db.Close()

	// A different embedding model must not reuse old vectors; open
	// succeeds and the page rows are gone.
	db, err = Open(path, "model-b")
	if err != nil {
		t.Fatalf("open with new model: %v", err)
	}
	defer db.Close()

	n, _ := db.Count()
	if n != 0 {
		t.Errorf("count = %d after model change, want 0", n)
	}
}

func TestFormatVersionChangeResetsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "format.db")
	db, err := Open(path, "test-model")
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Upsert([]Record{rec("local:Work/Sec/A", "fp-a", "Work", "Sec", nil)})
	if _, err := db.conn.Exec(`UPDATE index_meta SET value = '999' WHERE key = 'format_version'`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	// An unrecognized format version means the rows cannot be trusted;
	// open succeeds with an empty index instead of failing.
	db, err = Open(path, "test-model")
	if err != nil {
		t.Fatalf("open with stale format version: %v", err)
	}
	defer db.Close()

	n, _ := db.Count()
	if n != 0 {
		t.Errorf("count = %d after format version change, want 0", n)
	}
}

func TestCorruptFileDiscardedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	if err := os.WriteFile(path, []byte("this is not a sqlite database at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := Open(path, "test-model")
	if err != nil {
		t.Fatalf("open over corrupt file: %v", err)
	}
	defer db.Close()

	n, err := db.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want empty rebuilt index", n)
	}

	// The rebuilt file must be fully usable.
	if err := db.Upsert([]Record{rec("local:Work/Sec/A", "fp-a", "Work", "Sec", []float32{1, 0})}); err != nil {
		t.Fatalf("Upsert after rebuild: %v", err)
	}
	fps, err := db.Fingerprints("local")
	if err != nil {
		t.Fatal(err)
	}
	if fps["local:Work/Sec/A"] != "fp-a" {
		t.Errorf("fingerprints after rebuild = %v", fps)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.14159, 0}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("vec[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if encodeVector(nil) != nil {
		t.Error("encodeVector(nil) should be nil")
	}
	if decodeVector(nil) != nil {
		t.Error("decodeVector(nil) should be nil")
	}
}
