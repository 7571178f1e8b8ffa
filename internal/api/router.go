package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Service, writer Writer, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, writer)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Browsing.
	r.Get("/notebooks", h.ListNotebooks)
	r.Get("/sections", h.ListSections)
	r.Get("/pages", h.ListPages)

	// Search and index maintenance.
	r.Get("/search", h.Search)
	r.Post("/reindex", h.Reindex)
	r.Get("/status", h.Status)

	// Writes (remote backend only).
	r.Post("/pages", h.CreatePage)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
