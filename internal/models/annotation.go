// Package models defines the domain types for todotrail.
package models

import (
	"fmt"
	"path/filepath"
	"time"
)

// NoDescription is the body text stored for annotations whose comment
// carries no text after the keyword.
const NoDescription = "No description"

// Annotation is a single annotation comment found in a workspace file.
//
// The core fields come from text matching and never change after a scan.
// Attribution is the enriched projection, filled on demand from version
// history and merged into copies handed out by the index.
type Annotation struct {
	File        string `json:"file"`
	Line        int    `json:"line"` // zero-based
	Type        string `json:"type"`
	LiteralType string `json:"literal_type"`
	Inferred    bool   `json:"inferred,omitempty"`
	Author      string `json:"author,omitempty"`
	Text        string `json:"text"`
	MatchStart  int    `json:"match_start"`
	MatchLength int    `json:"match_length"`

	Attribution       *Attribution `json:"attribution,omitempty"`
	AttributionLoaded bool         `json:"attribution_loaded"`
}

// Locator returns the opaque key the presentation layer uses to look up
// display metadata for the annotation.
func (a Annotation) Locator() string {
	return fmt.Sprintf("todo://%s?type=%s", filepath.ToSlash(a.File), a.Type)
}

// Timestamp returns the resolved history timestamp, if any.
func (a Annotation) Timestamp() (time.Time, bool) {
	if a.Attribution == nil || a.Attribution.Timestamp.IsZero() {
		return time.Time{}, false
	}
	return a.Attribution.Timestamp, true
}

// Attribution is per-line history metadata.
type Attribution struct {
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Revision  string    `json:"revision"`
}

// FileCacheEntry is the memoized scan result of one file.
type FileCacheEntry struct {
	Annotations []Annotation
	Fingerprint string
	ModifiedAt  time.Time
}

// Pattern is the display metadata configured for an annotation type.
type Pattern struct {
	Type  string `json:"type"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

// ViewMode selects how a rendered list is grouped.
type ViewMode string

// View modes.
const (
	ViewByFile   ViewMode = "file"
	ViewByAuthor ViewMode = "author"
)
