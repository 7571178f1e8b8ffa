// Package notebook defines the domain types shared by both backends.
package notebook

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Provenance identifies which backend produced a page.
type Provenance string

const (
	// ProvenanceLocal marks pages extracted from local backup files.
	ProvenanceLocal Provenance = "local"
	// ProvenanceRemote marks pages fetched from the remote notebook API.
	ProvenanceRemote Provenance = "remote"
)

// NotebookRef identifies a notebook. Rebuilt on every enumeration pass,
// never mutated in place.
type NotebookRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SectionRef identifies a section within a notebook.
type SectionRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Notebook string `json:"notebook"`
}

// Page is the canonical extracted page record. Immutable once materialized
// for a given indexing pass.
type Page struct {
	// ID is stable across backup rotation: it is derived from provenance,
	// notebook, section, and title rather than from the backing file path.
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Notebook   string     `json:"notebook"`
	Section    string     `json:"section"`
	Text       string     `json:"text"`
	ImageTexts []string   `json:"image_texts,omitempty"`
	Provenance Provenance `json:"provenance"`
	Modified   time.Time  `json:"modified"`
}

// FullText returns page text with image-derived text appended, in stable order.
func (p Page) FullText() string {
	if len(p.ImageTexts) == 0 {
		return p.Text
	}
	parts := make([]string, 0, 1+len(p.ImageTexts))
	if p.Text != "" {
		parts = append(parts, p.Text)
	}
	parts = append(parts, p.ImageTexts...)
	return strings.Join(parts, "\n")
}

// EmbedText returns the text sent to the embedding producer.
func (p Page) EmbedText() string {
	return p.Title + "\n" + p.FullText()
}

// Scope restricts an operation to a notebook and optionally a section.
// Empty fields mean "all". Matching is case-insensitive.
type Scope struct {
	Notebook string `json:"notebook,omitempty"`
	Section  string `json:"section,omitempty"`
}

// IsZero reports whether the scope imposes no restriction.
func (s Scope) IsZero() bool { return s.Notebook == "" && s.Section == "" }

// Matches reports whether a (notebook, section) pair falls inside the scope.
func (s Scope) Matches(nb, sec string) bool {
	if s.Notebook != "" && !strings.EqualFold(s.Notebook, nb) {
		return false
	}
	if s.Section != "" && !strings.EqualFold(s.Section, sec) {
		return false
	}
	return true
}

// Source produces canonical pages from one backend. Implementations must
// keep page order backend-stable across calls.
type Source interface {
	Provenance() Provenance
	Notebooks(ctx context.Context) ([]NotebookRef, error)
	Sections(ctx context.Context, notebook string) ([]SectionRef, error)
	Pages(ctx context.Context, scope Scope) ([]Page, error)
}

// PageID builds the stable page identifier. seq disambiguates duplicate
// titles within a section (0 for the first occurrence).
func PageID(prov Provenance, nb, sec, title string, seq int) string {
	id := string(prov) + ":" + nb + "/" + sec + "/" + title
	if seq > 0 {
		id += "#" + strconv.Itoa(seq+1)
	}
	return id
}
