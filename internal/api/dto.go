package api

import (
	"time"

	"github.com/starford/todotrail/internal/index"
	"github.com/starford/todotrail/internal/models"
)

// AnnotationDTO is one record as rendered by the API. Lines are one-based.
type AnnotationDTO struct {
	File        string              `json:"file" example:"internal/auth/login.go" validate:"required"`
	Line        int                 `json:"line" example:"42" validate:"required"`
	Type        string              `json:"type" example:"FIXME" validate:"required"`
	LiteralType string              `json:"literal_type" example:"TODO" validate:"required"`
	Inferred    bool                `json:"inferred,omitempty"`
	Author      string              `json:"author,omitempty" example:"said"`
	Text        string              `json:"text" example:"urgent crash on empty token" validate:"required"`
	Locator     string              `json:"locator" example:"todo:///repo/internal/auth/login.go?type=FIXME"`
	Icon        string              `json:"icon,omitempty" example:"bug"`
	Color       string              `json:"color,omitempty" example:"#FF8C00"`
	Attribution *models.Attribution `json:"attribution,omitempty"`
	Age         models.AgeBucket    `json:"age,omitempty" example:"recent"`
}

// GroupDTO is a run of records sharing a file or author.
type GroupDTO struct {
	Key         string          `json:"key" validate:"required"`
	Annotations []AnnotationDTO `json:"annotations" validate:"required"`
}

// AnnotationListResponse is returned by GET /annotations. Exactly one of
// Annotations and Groups is set.
type AnnotationListResponse struct {
	Annotations []AnnotationDTO `json:"annotations,omitempty"`
	Groups      []GroupDTO      `json:"groups,omitempty"`
	Total       int             `json:"total" example:"17"`
}

// AuthorCount is one entry of GET /authors.
type AuthorCount struct {
	Name  string `json:"name" example:"said" validate:"required"`
	Count int    `json:"count" example:"3" validate:"required"`
}

// RefreshResponse summarizes the generation produced by POST /refresh.
type RefreshResponse struct {
	Generation  string    `json:"generation" validate:"required"`
	Files       int       `json:"files"`
	Annotations int       `json:"annotations"`
	CompletedAt time.Time `json:"completed_at"`
}

// FilterValueRequest is the body of PUT /filters/{name}.
type FilterValueRequest struct {
	Value string `json:"value" example:"said" validate:"required"`
}

// BufferRequest is the body of PUT /buffers/{path}.
type BufferRequest struct {
	Content string `json:"content" example:"// TODO: unsaved edit"`
}

// FiltersDTO mirrors the index filter state.
type FiltersDTO = index.FilterState
