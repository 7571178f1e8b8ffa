// Package testutil provides shared test helpers: temporary indexes and
// deterministic fakes for the embedding, source and OCR capabilities.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/notebook"
)

// TestIndex creates a temporary SQLite page index that is automatically
// cleaned up.
func TestIndex(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"), "test-model")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// QuietLogger returns a logger that only surfaces errors, keeping test
// output readable.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// FakeEmbedder produces a deterministic vector from the text content and
// counts calls, so tests can assert exactly which pages were re-embedded.
type FakeEmbedder struct {
	Calls atomic.Int32
	Fail  atomic.Bool
	dims  int
}

// NewFakeEmbedder returns a fake producing vectors of the given size.
func NewFakeEmbedder(dims int) *FakeEmbedder {
	if dims <= 0 {
		dims = 4
	}
	return &FakeEmbedder{dims: dims}
}

// Dimensions reports the fake's vector size.
func (f *FakeEmbedder) Dimensions() int { return f.dims }

// Embed derives a stable character-bag vector from text. Texts sharing
// most of their characters get similar vectors, so similarity ordering
// in tests is predictable.
func (f *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.Calls.Add(1)
	if f.Fail.Load() {
		return nil, context.DeadlineExceeded
	}
	vec := make([]float32, f.dims)
	for _, r := range text {
		vec[int(r)%f.dims]++
	}
	return vec, nil
}

// FakeSource is an in-memory page source whose contents tests mutate
// between indexing passes.
type FakeSource struct {
	mu    sync.Mutex
	prov  notebook.Provenance
	pages []notebook.Page
}

// NewFakeSource creates a source with the given provenance and pages.
func NewFakeSource(prov notebook.Provenance, pages ...notebook.Page) *FakeSource {
	return &FakeSource{prov: prov, pages: pages}
}

// SetPages replaces the source contents.
func (s *FakeSource) SetPages(pages ...notebook.Page) {
	s.mu.Lock()
	s.pages = pages
	s.mu.Unlock()
}

// Provenance reports the configured provenance.
func (s *FakeSource) Provenance() notebook.Provenance { return s.prov }

// Notebooks lists the distinct notebooks of the stored pages.
func (s *FakeSource) Notebooks(_ context.Context) ([]notebook.NotebookRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []notebook.NotebookRef
	for _, p := range s.pages {
		if _, ok := seen[p.Notebook]; ok {
			continue
		}
		seen[p.Notebook] = struct{}{}
		out = append(out, notebook.NotebookRef{ID: p.Notebook, Name: p.Notebook})
	}
	return out, nil
}

// Sections lists the distinct sections of one notebook.
func (s *FakeSource) Sections(_ context.Context, nb string) ([]notebook.SectionRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []notebook.SectionRef
	for _, p := range s.pages {
		if !strings.EqualFold(p.Notebook, nb) {
			continue
		}
		if _, ok := seen[p.Section]; ok {
			continue
		}
		seen[p.Section] = struct{}{}
		out = append(out, notebook.SectionRef{ID: p.Notebook + "/" + p.Section, Name: p.Section, Notebook: p.Notebook})
	}
	return out, nil
}

// Pages returns the in-scope pages.
func (s *FakeSource) Pages(_ context.Context, scope notebook.Scope) ([]notebook.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notebook.Page
	for _, p := range s.pages {
		if scope.Matches(p.Notebook, p.Section) {
			out = append(out, p)
		}
	}
	return out, nil
}

// LocalPage builds a local page with its canonical ID.
func LocalPage(nb, sec, title, text string) notebook.Page {
	return notebook.Page{
		ID:         notebook.PageID(notebook.ProvenanceLocal, nb, sec, title, 0),
		Title:      title,
		Notebook:   nb,
		Section:    sec,
		Text:       text,
		Provenance: notebook.ProvenanceLocal,
	}
}
