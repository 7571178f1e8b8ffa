package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestSectionBaseName(t *testing.T) {
	cases := map[string]string{
		"Algorithm (On 1-4-2026).one": "Algorithm",
		"Daily (On 02.02.26).one":     "Daily",
		"sec_2024-01-01.one":          "sec",
		"sec.2024-03-15.one":          "sec",
		"sec-2024-03-15.one":          "sec",
		"Plain.one":                   "Plain",
		"Notes (On 1-4-2026).one.one": "Notes",
		"Sec.ONE":                     "Sec",
		"Mixed (On 1-4-2026).One":     "Mixed",
		".one":                        "(unnamed)",
	}
	for in, want := range cases {
		if got := SectionBaseName(in); got != want {
			t.Errorf("SectionBaseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnumerateGroupsRotatedCopies(t *testing.T) {
	root := t.TempDir()
	nb := filepath.Join(root, "Work")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeFile(t, filepath.Join(nb, "sec_2024-01-01.one"), base)
	writeFile(t, filepath.Join(nb, "sec_2024-03-15.one"), base.Add(30*time.Minute))
	writeFile(t, filepath.Join(nb, "sec.2024-03-15.one"), base.Add(10*time.Minute))

	e := NewEnumerator([]string{root}, nil)
	units, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("len(units) = %d, want 1 (all copies are one logical section)", len(units))
	}
	u := units[0]
	if u.Notebook != "Work" || u.Section != "sec" {
		t.Errorf("unit = %s/%s", u.Notebook, u.Section)
	}
	if filepath.Base(u.File) != "sec_2024-03-15.one" {
		t.Errorf("authoritative = %s, want the most recently modified copy", filepath.Base(u.File))
	}
	if len(u.Older) != 2 {
		t.Errorf("len(Older) = %d, want 2", len(u.Older))
	}
}

func TestEnumerateTieBreaksOnFilename(t *testing.T) {
	root := t.TempDir()
	nb := filepath.Join(root, "Work")
	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeFile(t, filepath.Join(nb, "sec_2024-01-01.one"), mtime)
	writeFile(t, filepath.Join(nb, "sec_2024-02-01.one"), mtime)

	e := NewEnumerator([]string{root}, nil)
	units, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("len(units) = %d", len(units))
	}
	if filepath.Base(units[0].File) != "sec_2024-02-01.one" {
		t.Errorf("tie should pick lexicographically greatest filename, got %s", filepath.Base(units[0].File))
	}
}

func TestEnumerateLocaleBackupDirTransparent(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	// German OneNote install names the backup folder "Sicherung".
	writeFile(t, filepath.Join(root, "Sicherung", "Privat", "Ideen.one"), now)
	writeFile(t, filepath.Join(root, "Backup", "Work", "Plans.one"), now)

	e := NewEnumerator([]string{root}, nil)
	units, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("len(units) = %d, want 2", len(units))
	}
	if units[0].Notebook != "Privat" || units[1].Notebook != "Work" {
		t.Errorf("notebooks = %s, %s", units[0].Notebook, units[1].Notebook)
	}
}

func TestEnumerateSkipsRecycleBin(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	writeFile(t, filepath.Join(root, "Work", "Keep.one"), now)
	writeFile(t, filepath.Join(root, "Work", "OneNote_RecycleBin", "Gone.one"), now)

	e := NewEnumerator([]string{root}, nil)
	units, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(units) != 1 || units[0].Section != "Keep" {
		t.Errorf("units = %+v, want only Keep", units)
	}
}

func TestEnumerateSubfolderSections(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	writeFile(t, filepath.Join(root, "Work", "Projects", "Apollo.one"), now)

	e := NewEnumerator([]string{root}, nil)
	units, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(units) != 1 || units[0].Section != "Projects/Apollo" {
		t.Errorf("section = %q, want Projects/Apollo", units[0].Section)
	}
}

func TestEnumerateMissingRootNotFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Work", "Sec.one"), time.Now())

	e := NewEnumerator([]string{filepath.Join(root, "does-not-exist"), root}, nil)
	units, err := e.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(units) != 1 {
		t.Errorf("len(units) = %d, want 1", len(units))
	}
}

func TestEnumerateAllRootsMissing(t *testing.T) {
	e := NewEnumerator([]string{filepath.Join(t.TempDir(), "nope")}, nil)
	if _, err := e.Enumerate(); err == nil {
		t.Error("expected error when no root is readable")
	}
}
