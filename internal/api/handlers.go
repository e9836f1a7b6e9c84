package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starford/todotrail/internal/apperr"
	"github.com/starford/todotrail/internal/index"
	"github.com/starford/todotrail/internal/models"
	"github.com/starford/todotrail/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	corpus   *index.Corpus
	ws       *workspace.Workspace
	patterns []models.Pattern
	byType   map[string]models.Pattern
	viewMode func() models.ViewMode
	now      func() time.Time
}

// NewHandler creates a new Handler. viewMode is read on every request that
// does not name a grouping.
func NewHandler(c *index.Corpus, ws *workspace.Workspace, patterns []models.Pattern, viewMode func() models.ViewMode) *Handler {
	byType := make(map[string]models.Pattern, len(patterns))
	for _, p := range patterns {
		byType[p.Type] = p
	}
	if viewMode == nil {
		viewMode = func() models.ViewMode { return models.ViewByFile }
	}
	return &Handler{
		corpus:   c,
		ws:       ws,
		patterns: patterns,
		byType:   byType,
		viewMode: viewMode,
		now:      time.Now,
	}
}

// wildcardPath extracts the workspace path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. src%2Fmain.go).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// position parses the file and one-based line query parameters into an
// absolute path and a zero-based line. An absent file yields "".
func (h *Handler) position(r *http.Request) (string, int, error) {
	q := r.URL.Query()
	file := q.Get("file")
	if file == "" {
		return "", 0, nil
	}
	abs, err := h.ws.Resolve(file)
	if err != nil {
		return "", 0, err
	}
	line := 0
	if s := q.Get("line"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return "", 0, fmt.Errorf("api: line must be a positive integer: %w", apperr.ErrInvalidArgument)
		}
		line = n - 1
	}
	return abs, line, nil
}

func (h *Handler) toDTO(a models.Annotation, now time.Time) AnnotationDTO {
	d := AnnotationDTO{
		File:        h.ws.Rel(a.File),
		Line:        a.Line + 1,
		Type:        a.Type,
		LiteralType: a.LiteralType,
		Inferred:    a.Inferred,
		Author:      a.Author,
		Text:        a.Text,
		Locator:     a.Locator(),
		Attribution: a.Attribution,
	}
	if p, ok := h.byType[a.Type]; ok {
		d.Icon, d.Color = p.Icon, p.Color
	}
	if ts, ok := a.Timestamp(); ok {
		d.Age = models.BucketOf(ts, now)
	}
	return d
}

func (h *Handler) toDTOs(anns []models.Annotation, now time.Time) []AnnotationDTO {
	out := make([]AnnotationDTO, len(anns))
	for i, a := range anns {
		out[i] = h.toDTO(a, now)
	}
	return out
}

// ListAnnotations handles GET /api/annotations.
//
//	@Summary		List filtered annotations in severity order
//	@Tags			annotations
//	@Produce		json
//	@Param			group	query		string	false	"Grouping"	Enums(file, author, none)
//	@Success		200		{object}	AnnotationListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations [get]
func (h *Handler) ListAnnotations(w http.ResponseWriter, r *http.Request) {
	anns := h.corpus.GetFiltered()
	now := h.now()
	resp := AnnotationListResponse{Total: len(anns)}

	switch group := r.URL.Query().Get("group"); group {
	case "none":
		resp.Annotations = h.toDTOs(anns, now)
	case "", string(models.ViewByFile), string(models.ViewByAuthor):
		mode := models.ViewMode(group)
		if mode == "" {
			mode = h.viewMode()
		}
		groups := index.GroupBy(mode, anns)
		resp.Groups = make([]GroupDTO, len(groups))
		for i, g := range groups {
			key := g.Key
			if mode == models.ViewByFile {
				key = h.ws.Rel(key)
			}
			resp.Groups[i] = GroupDTO{Key: key, Annotations: h.toDTOs(g.Annotations, now)}
		}
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("group must be file, author or none"))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// NextAnnotation handles GET /api/annotations/next.
//
//	@Summary		Next annotation after a position, wrapping around
//	@Tags			annotations
//	@Produce		json
//	@Param			file	query		string	false	"Current file"
//	@Param			line	query		int		false	"Current one-based line"
//	@Success		200		{object}	AnnotationDTO
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/next [get]
func (h *Handler) NextAnnotation(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.corpus.Next)
}

// PreviousAnnotation handles GET /api/annotations/previous.
//
//	@Summary		Previous annotation before a position, wrapping around
//	@Tags			annotations
//	@Produce		json
//	@Param			file	query		string	false	"Current file"
//	@Param			line	query		int		false	"Current one-based line"
//	@Success		200		{object}	AnnotationDTO
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/previous [get]
func (h *Handler) PreviousAnnotation(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, h.corpus.Previous)
}

func (h *Handler) navigate(w http.ResponseWriter, r *http.Request, step func(string, int) (models.Annotation, bool)) {
	file, line, err := h.position(r)
	if err != nil {
		writeError(w, "navigate", err)
		return
	}
	a, ok := step(file, line)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no annotations"))
		return
	}
	writeJSON(w, http.StatusOK, h.toDTO(a, h.now()))
}

// Attribution handles GET /api/annotations/attribution.
//
//	@Summary		Resolve version-history attribution for one annotation
//	@Tags			annotations
//	@Produce		json
//	@Param			file	query		string	true	"File path"
//	@Param			line	query		int		true	"One-based line"
//	@Success		200		{object}	AnnotationDTO
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/attribution [get]
func (h *Handler) Attribution(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("file") == "" || q.Get("line") == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("file and line are required"))
		return
	}
	file, line, err := h.position(r)
	if err != nil {
		writeError(w, "attribution", err)
		return
	}
	a, err := h.corpus.Lookup(r.Context(), file, line)
	if err != nil {
		writeError(w, "attribution", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDTO(a, h.now()))
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Rescan the workspace and publish a new generation
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	RefreshResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.corpus.Refresh(r.Context()); err != nil {
		writeError(w, "refresh", err)
		return
	}
	g := h.corpus.Snapshot()
	writeJSON(w, http.StatusOK, RefreshResponse{
		Generation:  g.ID,
		Files:       g.Files,
		Annotations: len(g.Annotations),
		CompletedAt: g.CompletedAt,
	})
}

// ClearCache handles DELETE /api/cache.
//
//	@Summary		Drop every cached scan and attribution
//	@Tags			index
//	@Success		204	"Cache cleared"
//	@Security		BearerAuth
//	@Router			/cache [delete]
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.corpus.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// InvalidateFile handles DELETE /api/cache/files/*.
//
//	@Summary		Drop the cached scan of one file
//	@Tags			index
//	@Param			path	path	string	true	"File path"
//	@Success		204		"Entry dropped"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cache/files/{path} [delete]
func (h *Handler) InvalidateFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.ws.Resolve(wildcardPath(r))
	if err != nil {
		writeError(w, "invalidate file", err)
		return
	}
	h.corpus.InvalidateFile(abs)
	w.WriteHeader(http.StatusNoContent)
}

// GetFilters handles GET /api/filters.
//
//	@Summary		Active filter state
//	@Tags			filters
//	@Produce		json
//	@Success		200	{object}	FiltersDTO
//	@Security		BearerAuth
//	@Router			/filters [get]
func (h *Handler) GetFilters(w http.ResponseWriter, r *http.Request) {
	f := h.corpus.Filters()
	if f.ActiveFile != "" {
		f.ActiveFile = h.ws.Rel(f.ActiveFile)
	}
	writeJSON(w, http.StatusOK, f)
}

// ClearFilters handles DELETE /api/filters.
//
//	@Summary		Turn every filter off
//	@Tags			filters
//	@Success		204	"Filters cleared"
//	@Security		BearerAuth
//	@Router			/filters [delete]
func (h *Handler) ClearFilters(w http.ResponseWriter, r *http.Request) {
	h.corpus.ClearFilters()
	w.WriteHeader(http.StatusNoContent)
}

// SetFilter handles PUT /api/filters/{name}.
//
//	@Summary		Set one filter
//	@Tags			filters
//	@Accept			json
//	@Param			name	path	string				true	"Filter"	Enums(author, type, text, age, active-file)
//	@Param			body	body	FilterValueRequest	true	"Filter value"
//	@Success		204		"Filter set"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/filters/{name} [put]
func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !knownFilter(name) {
		writeJSON(w, http.StatusNotFound, errorBody("unknown filter"))
		return
	}
	var req FilterValueRequest
	if !readJSON(w, r, &req) {
		return
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("value is required"))
		return
	}

	switch name {
	case "author":
		h.corpus.SetAuthorFilter(value)
	case "type":
		h.corpus.SetTypeFilter(value)
	case "text":
		h.corpus.SetTextFilter(value)
	case "age":
		age, err := models.ParseAgeFilter(value)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		h.corpus.SetAgeFilter(age)
	case "active-file":
		abs, err := h.ws.Resolve(value)
		if err != nil {
			writeError(w, "set active file", err)
			return
		}
		h.corpus.SetActiveFileFilter(abs)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearFilter handles DELETE /api/filters/{name}.
//
//	@Summary		Clear one filter
//	@Tags			filters
//	@Param			name	path	string	true	"Filter"	Enums(author, type, text, age, active-file)
//	@Success		204		"Filter cleared"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/filters/{name} [delete]
func (h *Handler) ClearFilter(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "name") {
	case "author":
		h.corpus.ClearAuthorFilter()
	case "type":
		h.corpus.ClearTypeFilter()
	case "text":
		h.corpus.ClearTextFilter()
	case "age":
		h.corpus.ClearAgeFilter()
	case "active-file":
		h.corpus.SetActiveFileFilter("")
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown filter"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func knownFilter(name string) bool {
	switch name {
	case "author", "type", "text", "age", "active-file":
		return true
	}
	return false
}

// ListAuthors handles GET /api/authors.
//
//	@Summary		Distinct authors with their annotation counts
//	@Tags			annotations
//	@Produce		json
//	@Success		200	{array}	AuthorCount
//	@Security		BearerAuth
//	@Router			/authors [get]
func (h *Handler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	names := h.corpus.ListAuthors()
	out := make([]AuthorCount, len(names))
	for i, name := range names {
		out[i] = AuthorCount{Name: name, Count: h.corpus.CountForAuthor(name)}
	}
	writeJSON(w, http.StatusOK, out)
}

// ListPatterns handles GET /api/patterns.
//
//	@Summary		Configured annotation types with display metadata
//	@Tags			annotations
//	@Produce		json
//	@Success		200	{array}	models.Pattern
//	@Security		BearerAuth
//	@Router			/patterns [get]
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.patterns)
}

// OpenBuffer handles PUT /api/buffers/*.
//
//	@Summary		Register unsaved editor content for a file
//	@Tags			buffers
//	@Accept			json
//	@Param			path	path	string			true	"File path"
//	@Param			body	body	BufferRequest	true	"Buffer content"
//	@Success		204		"Buffer stored"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/buffers/{path} [put]
func (h *Handler) OpenBuffer(w http.ResponseWriter, r *http.Request) {
	abs, err := h.ws.Resolve(wildcardPath(r))
	if err != nil {
		writeError(w, "open buffer", err)
		return
	}
	var req BufferRequest
	if !readJSON(w, r, &req) {
		return
	}
	h.ws.Buffers().Open(abs, []byte(req.Content))
	h.corpus.InvalidateFile(abs)
	h.corpus.RequestRefresh()
	w.WriteHeader(http.StatusNoContent)
}

// CloseBuffer handles DELETE /api/buffers/*.
//
//	@Summary		Discard unsaved editor content for a file
//	@Tags			buffers
//	@Param			path	path	string	true	"File path"
//	@Success		204		"Buffer discarded"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/buffers/{path} [delete]
func (h *Handler) CloseBuffer(w http.ResponseWriter, r *http.Request) {
	abs, err := h.ws.Resolve(wildcardPath(r))
	if err != nil {
		writeError(w, "close buffer", err)
		return
	}
	if !h.ws.Buffers().Close(abs) {
		writeError(w, "close buffer", fmt.Errorf("api: no open buffer for %s: %w", abs, apperr.ErrNotFound))
		return
	}
	h.corpus.InvalidateFile(abs)
	h.corpus.RequestRefresh()
	w.WriteHeader(http.StatusNoContent)
}
