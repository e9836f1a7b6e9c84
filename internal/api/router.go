package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Queries.
	r.Get("/annotations", h.ListAnnotations)
	r.Get("/annotations/next", h.NextAnnotation)
	r.Get("/annotations/previous", h.PreviousAnnotation)
	r.Get("/annotations/attribution", h.Attribution)
	r.Get("/authors", h.ListAuthors)
	r.Get("/patterns", h.ListPatterns)

	// Index lifecycle.
	r.Post("/refresh", h.Refresh)
	r.Delete("/cache", h.ClearCache)
	r.Delete("/cache/files/*", h.InvalidateFile)

	// Filters.
	r.Get("/filters", h.GetFilters)
	r.Delete("/filters", h.ClearFilters)
	r.Put("/filters/{name}", h.SetFilter)
	r.Delete("/filters/{name}", h.ClearFilter)

	// Unsaved editor content.
	r.Put("/buffers/*", h.OpenBuffer)
	r.Delete("/buffers/*", h.CloseBuffer)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
