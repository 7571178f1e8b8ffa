// Package backup scans notebook backup directories and groups rotated
// section files into logical units.
package backup

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Unit is one (notebook, section) pair with its authoritative backing file.
type Unit struct {
	Notebook string
	Section  string
	// File is the authoritative backup copy: the most recently modified
	// file in the version group, ties broken by lexicographically
	// greatest filename.
	File     string
	Modified time.Time
	// Older holds the non-authoritative copies in the group. They are kept
	// for recovery, never indexed.
	Older []string
}

// backupDirNames are locale variants of the backup folder. A directory with
// one of these names is transparent: its children are treated as notebooks
// of the enclosing root.
var backupDirNames = map[string]struct{}{
	"backup":             {},
	"sicherung":          {},
	"sauvegarde":         {},
	"copia de seguridad": {},
	"copia di sicurezza": {},
}

// Date/version suffixes appended by backup rotation, e.g.
// "Algorithm (On 1-4-2026)", "Daily (On 02.02.26)", "sec_2024-01-01",
// "sec.2024-03-15", "sec-2024-03-15".
var suffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*\(On [\d.\-]+\)$`),
	regexp.MustCompile(`[._\-]\d{4}[.\-]\d{2}[.\-]\d{2}$`),
	regexp.MustCompile(`[._\-]\d{2}[.\-]\d{2}[.\-]\d{2,4}$`),
}

// Enumerator discovers (notebook, section, authoritative file) units under
// a set of backup roots.
type Enumerator struct {
	roots  []string
	logger *slog.Logger
}

// NewEnumerator creates an enumerator over the given roots. Roots that do
// not exist are skipped at enumeration time with a warning.
func NewEnumerator(roots []string, logger *slog.Logger) *Enumerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enumerator{roots: roots, logger: logger}
}

// Roots returns the configured backup roots.
func (e *Enumerator) Roots() []string { return e.roots }

type candidate struct {
	path     string
	modified time.Time
}

// Enumerate scans every root and returns the authoritative unit per
// (notebook, section) group, sorted by notebook then section. Unreadable
// entries are skipped with a warning; enumeration itself only fails when
// no root could be read at all.
func (e *Enumerator) Enumerate() ([]Unit, error) {
	groups := make(map[[2]string][]candidate)
	readable := 0

	for _, root := range e.roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			e.logger.Warn("backup: root unavailable", slog.String("root", root))
			continue
		}
		readable++
		e.scanRoot(root, groups)
	}

	if readable == 0 && len(e.roots) > 0 {
		return nil, fmt.Errorf("backup: no readable roots among %v", e.roots)
	}

	units := make([]Unit, 0, len(groups))
	for key, cands := range groups {
		u := pickAuthoritative(key[0], key[1], cands)
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Notebook != units[j].Notebook {
			return units[i].Notebook < units[j].Notebook
		}
		return units[i].Section < units[j].Section
	})
	return units, nil
}

func (e *Enumerator) scanRoot(root string, groups map[[2]string][]candidate) {
	entries, err := os.ReadDir(root)
	if err != nil {
		e.logger.Warn("backup: read root failed", slog.String("root", root), slog.String("error", err.Error()))
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if isBackupDirName(entry.Name()) {
			// Locale backup folder: its children are the notebooks.
			e.scanRoot(dir, groups)
			continue
		}
		e.scanNotebook(entry.Name(), dir, groups)
	}
}

func (e *Enumerator) scanNotebook(notebook, dir string, groups map[[2]string][]candidate) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			e.logger.Warn("backup: walk failed", slog.String("path", path), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.EqualFold(d.Name(), "RecycleBin") || strings.Contains(d.Name(), "RecycleBin") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".one") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			e.logger.Warn("backup: stat failed", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		section := sectionKey(dir, path)
		key := [2]string{notebook, section}
		groups[key] = append(groups[key], candidate{path: path, modified: info.ModTime()})
		return nil
	})
	if err != nil {
		e.logger.Warn("backup: scan notebook failed", slog.String("notebook", notebook), slog.String("error", err.Error()))
	}
}

// sectionKey derives the normalized section key for a file: relative
// subfolders within the notebook joined with the base name stripped of
// rotation suffixes.
func sectionKey(notebookDir, path string) string {
	base := SectionBaseName(filepath.Base(path))

	rel, err := filepath.Rel(notebookDir, filepath.Dir(path))
	if err != nil || rel == "." {
		return base
	}
	return filepath.ToSlash(rel) + "/" + base
}

// SectionBaseName strips the .one extension and any date/version suffix
// from a backup file name, returning the logical section name.
func SectionBaseName(filename string) string {
	name := trimOneExt(filename)
	for changed := true; changed; {
		changed = false
		for _, re := range suffixPatterns {
			if stripped := re.ReplaceAllString(name, ""); stripped != name && stripped != "" {
				name = stripped
				changed = true
			}
		}
		// Rotation occasionally doubles the extension.
		if stripped := trimOneExt(name); stripped != name {
			name = stripped
			changed = true
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "(unnamed)"
	}
	return name
}

// trimOneExt strips a .one extension regardless of case; the walk
// accepts .ONE and .One files too.
func trimOneExt(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".one") {
		return name[:len(name)-len(".one")]
	}
	return name
}

func pickAuthoritative(notebook, section string, cands []candidate) Unit {
	sort.Slice(cands, func(i, j int) bool {
		if !cands[i].modified.Equal(cands[j].modified) {
			return cands[i].modified.After(cands[j].modified)
		}
		return cands[i].path > cands[j].path
	})

	u := Unit{
		Notebook: notebook,
		Section:  section,
		File:     cands[0].path,
		Modified: cands[0].modified,
	}
	for _, c := range cands[1:] {
		u.Older = append(u.Older, c.path)
	}
	return u
}

func isBackupDirName(name string) bool {
	_, ok := backupDirNames[strings.ToLower(name)]
	return ok
}
