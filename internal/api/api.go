// Package api implements the Ansuz REST API using chi.
package api

import (
	"context"

	"github.com/starford/ansuz/internal/notebook"
	"github.com/starford/ansuz/internal/search"
)

// Service is the read/search surface the handlers need. The search
// coordinator satisfies it.
type Service interface {
	Notebooks(ctx context.Context) ([]notebook.NotebookRef, error)
	Sections(ctx context.Context, nb string) ([]notebook.SectionRef, error)
	Pages(ctx context.Context, scope notebook.Scope) ([]notebook.Page, error)
	ReadPage(ctx context.Context, nb, sec, title string) (*notebook.Page, error)
	Search(ctx context.Context, query string, k int, exact bool, scope notebook.Scope) ([]search.Result, error)
	Refresh(ctx context.Context) (search.Stats, error)
	Rebuild(ctx context.Context) (search.Stats, error)
	Count() (int, error)
	Active() notebook.Provenance
}

// Writer handles page writes. Only the remote backend supports writes;
// a nil Writer turns the write endpoints into 501 responses.
type Writer interface {
	CreatePage(ctx context.Context, nb, sec, title, content string) (string, error)
	AppendToPage(ctx context.Context, pageID, content string) error
}
