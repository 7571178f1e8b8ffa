package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/starford/ansuz/internal/notebook"
	"github.com/starford/ansuz/internal/remote"
)

// RemoteSource adapts the remote notebook API to the page source
// interface. Page HTML is stripped to plain text before indexing.
type RemoteSource struct {
	client *remote.Client
	logger *slog.Logger
}

var _ notebook.Source = (*RemoteSource)(nil)

// NewRemoteSource wraps a remote client.
func NewRemoteSource(client *remote.Client, logger *slog.Logger) *RemoteSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteSource{client: client, logger: logger}
}

// Provenance reports where these pages come from.
func (s *RemoteSource) Provenance() notebook.Provenance { return notebook.ProvenanceRemote }

// Notebooks lists remote notebooks.
func (s *RemoteSource) Notebooks(ctx context.Context) ([]notebook.NotebookRef, error) {
	nbs, err := s.client.ListNotebooks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]notebook.NotebookRef, 0, len(nbs))
	for _, nb := range nbs {
		out = append(out, notebook.NotebookRef{ID: nb.ID, Name: nb.Name})
	}
	return out, nil
}

// Sections lists the sections of one remote notebook.
func (s *RemoteSource) Sections(ctx context.Context, nb string) ([]notebook.SectionRef, error) {
	secs, err := s.client.ListSections(ctx, nb)
	if err != nil {
		return nil, err
	}
	out := make([]notebook.SectionRef, 0, len(secs))
	for _, sec := range secs {
		out = append(out, notebook.SectionRef{ID: sec.ID, Name: sec.Name, Notebook: nb})
	}
	return out, nil
}

// Pages fetches and strips every in-scope remote page. A failure to
// fetch one page's content is logged and skips that page only.
func (s *RemoteSource) Pages(ctx context.Context, scope notebook.Scope) ([]notebook.Page, error) {
	nbs, err := s.client.ListNotebooks(ctx)
	if err != nil {
		return nil, err
	}

	var out []notebook.Page
	for _, nb := range nbs {
		if scope.Notebook != "" && !strings.EqualFold(nb.Name, scope.Notebook) {
			continue
		}
		for _, sec := range nb.Sections {
			if scope.Section != "" && !strings.EqualFold(sec.Name, scope.Section) {
				continue
			}
			pages, err := s.sectionPages(ctx, nb.Name, sec)
			if err != nil {
				return nil, err
			}
			out = append(out, pages...)
		}
	}
	return out, nil
}

func (s *RemoteSource) sectionPages(ctx context.Context, nbName string, sec remote.Section) ([]notebook.Page, error) {
	metas, err := s.client.ListPages(ctx, nbName, sec.Name)
	if err != nil {
		return nil, err
	}

	var out []notebook.Page
	titleSeq := make(map[string]int)
	for _, meta := range metas {
		title := strings.TrimSpace(meta.Title)
		if title == "" {
			title = "(untitled)"
		}
		seq := titleSeq[strings.ToLower(title)]
		titleSeq[strings.ToLower(title)]++

		html, err := s.client.PageContent(ctx, meta.ID)
		if err != nil {
			s.logger.Warn("extract: skipping remote page",
				slog.String("page", meta.ID),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, notebook.Page{
			ID:         notebook.PageID(notebook.ProvenanceRemote, nbName, sec.Name, title, seq),
			Title:      title,
			Notebook:   nbName,
			Section:    sec.Name,
			Text:       StripHTML(html),
			Provenance: notebook.ProvenanceRemote,
			Modified:   meta.Modified,
		})
	}
	return out, nil
}
