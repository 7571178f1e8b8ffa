package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/backup"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/notebook"
	"github.com/starford/ansuz/internal/ocr"
	"github.com/starford/ansuz/internal/ocrcache"
	"github.com/starford/ansuz/internal/onefile"
)

// imageExts are the embedded-image formats handed to OCR. Other
// attachments are skipped.
var imageExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
	".tiff": {},
	".tif":  {},
}

// LocalSource reads pages out of backup section files. Decode or read
// failures of a single unit are logged and skipped so one corrupt file
// never hides the rest of the corpus.
type LocalSource struct {
	enum   *backup.Enumerator
	dec    onefile.Decoder
	rec    ocr.Recognizer
	cache  *ocrcache.Cache
	logger *slog.Logger
}

var _ notebook.Source = (*LocalSource)(nil)

// NewLocalSource wires the enumerator, decoder and OCR pipeline into a
// page source. cache may be nil to disable OCR caching; rec may be nil
// to disable OCR entirely.
func NewLocalSource(enum *backup.Enumerator, dec onefile.Decoder, rec ocr.Recognizer, cache *ocrcache.Cache, logger *slog.Logger) *LocalSource {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = ocr.Noop{}
	}
	return &LocalSource{enum: enum, dec: dec, rec: rec, cache: cache, logger: logger}
}

// Provenance reports where these pages come from.
func (s *LocalSource) Provenance() notebook.Provenance { return notebook.ProvenanceLocal }

// Notebooks lists the distinct notebooks found under the backup roots.
func (s *LocalSource) Notebooks(_ context.Context) ([]notebook.NotebookRef, error) {
	units, err := s.enum.Enumerate()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []notebook.NotebookRef
	for _, u := range units {
		if _, ok := seen[u.Notebook]; ok {
			continue
		}
		seen[u.Notebook] = struct{}{}
		out = append(out, notebook.NotebookRef{ID: u.Notebook, Name: u.Notebook})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Sections lists the sections of one notebook. Notebook matching is
// case-insensitive.
func (s *LocalSource) Sections(_ context.Context, nb string) ([]notebook.SectionRef, error) {
	units, err := s.enum.Enumerate()
	if err != nil {
		return nil, err
	}
	var out []notebook.SectionRef
	for _, u := range units {
		if !strings.EqualFold(u.Notebook, nb) {
			continue
		}
		out = append(out, notebook.SectionRef{ID: u.Notebook + "/" + u.Section, Name: u.Section, Notebook: u.Notebook})
	}
	return out, nil
}

// Pages decodes every in-scope section file and returns its pages.
func (s *LocalSource) Pages(ctx context.Context, scope notebook.Scope) ([]notebook.Page, error) {
	units, err := s.enum.Enumerate()
	if err != nil {
		return nil, err
	}

	var out []notebook.Page
	for _, u := range units {
		if !scope.Matches(u.Notebook, u.Section) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pages, err := s.unitPages(ctx, u)
		if err != nil {
			s.logger.Warn("extract: skipping unit",
				slog.String("notebook", u.Notebook),
				slog.String("section", u.Section),
				slog.String("file", u.File),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, pages...)
	}
	return out, nil
}

// unitPages decodes one section file into pages. Page metadata nodes open
// a new page; text runs and OCR'd image text accumulate into the open
// page. Content before the first page boundary is dropped, matching how
// the files are authored.
func (s *LocalSource) unitPages(ctx context.Context, u backup.Unit) ([]notebook.Page, error) {
	data, err := os.ReadFile(u.File)
	if err != nil {
		return nil, fmt.Errorf("extract: read %s: %w", u.File, err)
	}
	doc, err := s.dec.Decode(ctx, data)
	if err != nil {
		return nil, err
	}

	var pages []notebook.Page
	var current *notebook.Page
	var texts []string
	titleSeq := make(map[string]int)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.Join(texts, "\n")
		pages = append(pages, *current)
		current = nil
		texts = nil
	}

	for _, n := range doc.Nodes {
		switch n.Kind {
		case onefile.KindPage:
			flush()
			title := strings.TrimSpace(n.Title)
			if title == "" {
				title = "(untitled)"
			}
			seq := titleSeq[strings.ToLower(title)]
			titleSeq[strings.ToLower(title)]++
			current = &notebook.Page{
				ID:         notebook.PageID(notebook.ProvenanceLocal, u.Notebook, u.Section, title, seq),
				Title:      title,
				Notebook:   u.Notebook,
				Section:    u.Section,
				Provenance: notebook.ProvenanceLocal,
				Modified:   u.Modified,
			}

		case onefile.KindText:
			if current == nil {
				continue
			}
			if t := strings.TrimSpace(n.Text); t != "" {
				texts = append(texts, t)
			}

		case onefile.KindImage:
			if current == nil || len(n.Image) == 0 {
				continue
			}
			if text := s.imageText(ctx, n); text != "" {
				current.ImageTexts = append(current.ImageTexts, text)
			}
		}
	}
	flush()
	return pages, nil
}

// imageText runs OCR on one embedded image, consulting the cache first.
// OCR failures are logged and yield no text.
func (s *LocalSource) imageText(ctx context.Context, n onefile.Node) string {
	if n.Ext != "" {
		if _, ok := imageExts[strings.ToLower(n.Ext)]; !ok {
			return ""
		}
	}

	fp := checksum.Sum(n.Image)
	if s.cache != nil {
		if text, ok := s.cache.Lookup(fp); ok {
			return text
		}
	}

	text, err := s.rec.Recognize(ctx, n.Image)
	if err != nil {
		s.logger.Debug("extract: ocr failed", slog.String("error", err.Error()))
		return ""
	}
	text = strings.TrimSpace(text)
	if s.cache != nil {
		if err := s.cache.Store(fp, text); err != nil {
			s.logger.Warn("extract: ocr cache write failed", slog.String("error", err.Error()))
		}
	}
	return text
}
