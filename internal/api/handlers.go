package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/notebook"
	"github.com/starford/ansuz/internal/search"
)

// Handler holds API route handlers.
type Handler struct {
	svc    Service
	writer Writer
}

// NewHandler creates a new Handler. writer may be nil when no writable
// backend is configured.
func NewHandler(svc Service, writer Writer) *Handler {
	return &Handler{svc: svc, writer: writer}
}

func scopeFromQuery(r *http.Request) notebook.Scope {
	q := r.URL.Query()
	return notebook.Scope{Notebook: q.Get("notebook"), Section: q.Get("section")}
}

// ListNotebooks handles GET /api/notebooks.
//
//	@Summary		List notebooks of the active backend
//	@Tags			notebooks
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/notebooks [get]
func (h *Handler) ListNotebooks(w http.ResponseWriter, r *http.Request) {
	nbs, err := h.svc.Notebooks(r.Context())
	if err != nil {
		h.serviceError(w, "list notebooks", err)
		return
	}
	if nbs == nil {
		nbs = []notebook.NotebookRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":    h.svc.Active(),
		"notebooks": nbs,
	})
}

// ListSections handles GET /api/sections?notebook=.
//
//	@Summary		List sections of one notebook
//	@Tags			notebooks
//	@Produce		json
//	@Param			notebook	query		string	true	"Notebook name"
//	@Success		200			{object}	map[string]any
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sections [get]
func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	nb := r.URL.Query().Get("notebook")
	if nb == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("notebook is required"))
		return
	}
	secs, err := h.svc.Sections(r.Context(), nb)
	if err != nil {
		h.serviceError(w, "list sections", err)
		return
	}
	if secs == nil {
		secs = []notebook.SectionRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sections": secs})
}

// ListPages handles GET /api/pages. With a title parameter it returns the
// single matching page including its text.
//
//	@Summary		List pages, or read one page by title
//	@Tags			pages
//	@Produce		json
//	@Param			notebook	query		string	false	"Notebook filter"
//	@Param			section		query		string	false	"Section filter"
//	@Param			title		query		string	false	"Exact page title (case-insensitive)"
//	@Success		200			{object}	map[string]any
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	scope := scopeFromQuery(r)

	if title := r.URL.Query().Get("title"); title != "" {
		if scope.Notebook == "" || scope.Section == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("notebook and section are required with title"))
			return
		}
		page, err := h.svc.ReadPage(r.Context(), scope.Notebook, scope.Section, title)
		if err != nil {
			h.serviceError(w, "read page", err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	pages, err := h.svc.Pages(r.Context(), scope)
	if err != nil {
		h.serviceError(w, "list pages", err)
		return
	}
	// Listings carry metadata only; text is fetched per page.
	type item struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Notebook string `json:"notebook"`
		Section  string `json:"section"`
	}
	items := make([]item, 0, len(pages))
	for _, p := range pages {
		items = append(items, item{ID: p.ID, Title: p.Title, Notebook: p.Notebook, Section: p.Section})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": items, "total": len(items)})
}

// Search handles GET /api/search.
//
//	@Summary		Search pages semantically or by exact substring
//	@Tags			search
//	@Produce		json
//	@Param			q			query		string	true	"Query"
//	@Param			k			query		int		false	"Max results"
//	@Param			exact		query		bool	false	"Exact substring matching"
//	@Param			notebook	query		string	false	"Notebook filter"
//	@Param			section		query		string	false	"Section filter"
//	@Success		200			{object}	map[string]any
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	k, _ := strconv.Atoi(q.Get("k"))
	exact, _ := strconv.ParseBool(q.Get("exact"))

	results, err := h.svc.Search(r.Context(), query, k, exact, scopeFromQuery(r))
	if err != nil {
		h.serviceError(w, "search", err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
}

// CreatePage handles POST /api/pages.
//
//	@Summary		Create a page on the remote backend
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	map[string]string
//	@Failure		400	{object}	errResponse
//	@Failure		501	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages [post]
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("write operations require the remote backend"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req struct {
		Notebook string `json:"notebook"`
		Section  string `json:"section"`
		Title    string `json:"title"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Notebook == "" || req.Section == "" || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("notebook, section and title are required"))
		return
	}

	id, err := h.writer.CreatePage(r.Context(), req.Notebook, req.Section, req.Title, req.Content)
	if err != nil {
		h.serviceError(w, "create page", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "title": req.Title})
}

// Reindex handles POST /api/reindex.
//
//	@Summary		Rebuild the search index from scratch
//	@Tags			search
//	@Produce		json
//	@Success		200	{object}	search.Stats
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Rebuild(r.Context())
	if err != nil {
		h.serviceError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Status handles GET /api/status.
//
//	@Summary		Report active backend and index size
//	@Tags			search
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Count()
	if err != nil {
		h.serviceError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":        h.svc.Active(),
		"indexed_pages": n,
	})
}

func (h *Handler) serviceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrSourceUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("source unavailable"))
	case errors.Is(err, apperr.ErrEmbedderUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("embedding endpoint unavailable"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
