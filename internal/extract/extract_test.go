package extract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/starford/ansuz/internal/backup"
	"github.com/starford/ansuz/internal/notebook"
	"github.com/starford/ansuz/internal/ocrcache"
	"github.com/starford/ansuz/internal/onefile"
)

func TestStripHTML(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"plain", "hello", "hello"},
		{"paragraphs", "<p>one</p><p>two</p>", "one\ntwo"},
		{"script dropped", "<script>var x = 1;</script><p>kept</p>", "kept"},
		{"style dropped", "<style>p { color: red }</style>text", "text"},
		{"br", "line<br/>break", "line\nbreak"},
		{"entities", "<p>a &amp; b &lt;c&gt; &quot;d&quot;&nbsp;e</p>", `a & b <c> "d" e`},
		{"blank lines collapsed", "<div>a</div>\n\n\n<div>b</div>", "a\nb"},
		{"headings and lists", "<h1>Title</h1><ul><li>x</li><li>y</li></ul>", "Title\nx\ny"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripHTML(tc.in); got != tc.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// fakeDecoder returns the same document for every file.
type fakeDecoder struct {
	doc *onefile.Document
}

func (d fakeDecoder) Decode(_ context.Context, _ []byte) (*onefile.Document, error) {
	return d.doc, nil
}

// countingRecognizer records how many images actually hit OCR.
type countingRecognizer struct {
	calls atomic.Int32
	text  string
}

func (r *countingRecognizer) Recognize(_ context.Context, _ []byte) (string, error) {
	r.calls.Add(1)
	return r.text, nil
}

func localFixture(t *testing.T, doc *onefile.Document, rec *countingRecognizer, cache *ocrcache.Cache) *LocalSource {
	t.Helper()
	root := t.TempDir()
	sec := filepath.Join(root, "Work")
	if err := os.MkdirAll(sec, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sec, "Planning.one"), []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	enum := backup.NewEnumerator([]string{root}, logger)
	return NewLocalSource(enum, fakeDecoder{doc: doc}, rec, cache, logger)
}

func TestLocalSource_Pages(t *testing.T) {
	doc := &onefile.Document{Nodes: []onefile.Node{
		{Kind: onefile.KindText, Text: "preamble before any page"},
		{Kind: onefile.KindPage, Title: "Roadmap"},
		{Kind: onefile.KindText, Text: "  q3 goals  "},
		{Kind: onefile.KindText, Text: "q4 goals"},
		{Kind: onefile.KindPage, Title: "Roadmap"},
		{Kind: onefile.KindText, Text: "duplicate title"},
		{Kind: onefile.KindPage, Title: ""},
		{Kind: onefile.KindText, Text: "untitled content"},
	}}
	src := localFixture(t, doc, &countingRecognizer{}, nil)

	pages, err := src.Pages(context.Background(), notebook.Scope{})
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("pages = %d, want 3 (preamble text dropped)", len(pages))
	}
	if pages[0].Text != "q3 goals\nq4 goals" {
		t.Errorf("text = %q", pages[0].Text)
	}
	if pages[0].ID == pages[1].ID {
		t.Errorf("duplicate titles must get distinct IDs: %q", pages[0].ID)
	}
	if pages[1].ID != "local:Work/Planning/Roadmap#2" {
		t.Errorf("second duplicate ID = %q", pages[1].ID)
	}
	if pages[2].Title != "(untitled)" {
		t.Errorf("empty title = %q", pages[2].Title)
	}
	if pages[0].Notebook != "Work" || pages[0].Section != "Planning" {
		t.Errorf("scope fields = %q/%q", pages[0].Notebook, pages[0].Section)
	}
}

func TestLocalSource_OCRCached(t *testing.T) {
	img := []byte{0x89, 0x50, 0x4e, 0x47}
	doc := &onefile.Document{Nodes: []onefile.Node{
		{Kind: onefile.KindPage, Title: "Whiteboard"},
		{Kind: onefile.KindImage, Image: img, Ext: ".png"},
		{Kind: onefile.KindPage, Title: "Another"},
		{Kind: onefile.KindImage, Image: img, Ext: ".png"},
	}}

	cache, err := ocrcache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	rec := &countingRecognizer{text: "sprint plan"}
	src := localFixture(t, doc, rec, cache)

	pages, err := src.Pages(context.Background(), notebook.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d", len(pages))
	}
	if pages[0].FullText() != "sprint plan" || pages[1].FullText() != "sprint plan" {
		t.Errorf("image text missing: %q / %q", pages[0].FullText(), pages[1].FullText())
	}
	// Identical image bytes OCR once; the second hit comes from cache.
	if got := rec.calls.Load(); got != 1 {
		t.Errorf("ocr calls = %d, want 1", got)
	}

	// A fresh pass over the same content must not OCR at all.
	if _, err := src.Pages(context.Background(), notebook.Scope{}); err != nil {
		t.Fatal(err)
	}
	if got := rec.calls.Load(); got != 1 {
		t.Errorf("ocr calls after second pass = %d, want 1", got)
	}
}

func TestLocalSource_SkipsNonImageAttachments(t *testing.T) {
	doc := &onefile.Document{Nodes: []onefile.Node{
		{Kind: onefile.KindPage, Title: "Docs"},
		{Kind: onefile.KindImage, Image: []byte("pdfdata"), Ext: ".pdf"},
	}}
	rec := &countingRecognizer{text: "nope"}
	src := localFixture(t, doc, rec, nil)

	pages, err := src.Pages(context.Background(), notebook.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages[0].ImageTexts) != 0 {
		t.Errorf("image texts = %v for non-image attachment", pages[0].ImageTexts)
	}
	if rec.calls.Load() != 0 {
		t.Errorf("ocr called for non-image attachment")
	}
}

func TestLocalSource_ScopeFilter(t *testing.T) {
	doc := &onefile.Document{Nodes: []onefile.Node{
		{Kind: onefile.KindPage, Title: "P"},
		{Kind: onefile.KindText, Text: "body"},
	}}
	src := localFixture(t, doc, &countingRecognizer{}, nil)

	pages, err := src.Pages(context.Background(), notebook.Scope{Notebook: "Other"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 0 {
		t.Errorf("pages = %d outside scope, want 0", len(pages))
	}

	pages, err = src.Pages(context.Background(), notebook.Scope{Notebook: "work", Section: "planning"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Errorf("case-insensitive scoped pages = %d, want 1", len(pages))
	}
}

func TestLocalSource_NotebooksAndSections(t *testing.T) {
	doc := &onefile.Document{Nodes: []onefile.Node{{Kind: onefile.KindPage, Title: "P"}}}
	src := localFixture(t, doc, &countingRecognizer{}, nil)
	ctx := context.Background()

	nbs, err := src.Notebooks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(nbs) != 1 || nbs[0].Name != "Work" {
		t.Errorf("notebooks = %+v", nbs)
	}

	secs, err := src.Sections(ctx, "WORK")
	if err != nil {
		t.Fatal(err)
	}
	if len(secs) != 1 || secs[0].Name != "Planning" {
		t.Errorf("sections = %+v", secs)
	}
}
