package index

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/starford/todotrail/internal/apperr"
	"github.com/starford/todotrail/internal/classify"
	"github.com/starford/todotrail/internal/models"
	"github.com/starford/todotrail/internal/notify"
)

// FilterState is the set of active query predicates. Zero values mean the
// predicate is off.
type FilterState struct {
	Author     string           `json:"author,omitempty"`
	Type       string           `json:"type,omitempty"`
	Text       string           `json:"text,omitempty"`
	Age        models.AgeFilter `json:"age,omitempty"`
	ActiveFile string           `json:"active_file,omitempty"`
}

// Active reports whether any predicate is set.
func (f FilterState) Active() bool {
	return f.Author != "" || f.Type != "" || f.Text != "" || f.Age != "" || f.ActiveFile != ""
}

// Matches reports whether a satisfies every predicate.
func (f FilterState) Matches(a models.Annotation, now time.Time) bool {
	if f.ActiveFile != "" && a.File != f.ActiveFile {
		return false
	}
	if f.Author != "" && !containsFold(a.Author, f.Author) {
		return false
	}
	if f.Type != "" && !strings.EqualFold(a.Type, f.Type) {
		return false
	}
	if f.Text != "" && !containsFold(a.Text, f.Text) {
		return false
	}
	ts, known := a.Timestamp()
	return f.Age.Allows(ts, known, now)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Query filters anns by f and sorts the result by severity tier, then file
// path, then line. anns is not modified.
func Query(anns []models.Annotation, f FilterState, now time.Time) []models.Annotation {
	out := make([]models.Annotation, 0, len(anns))
	for _, a := range anns {
		if f.Matches(a, now) {
			out = append(out, a)
		}
	}
	SortAnnotations(out)
	return out
}

// SortAnnotations orders anns by severity tier, file path and line.
func SortAnnotations(anns []models.Annotation) {
	slices.SortStableFunc(anns, func(a, b models.Annotation) int {
		return cmp.Or(
			cmp.Compare(SeverityTier(a.Type), SeverityTier(b.Type)),
			strings.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
		)
	})
}

// SeverityTier returns 0 for the top severity types, 1 for TODO and 2 for
// everything else.
func SeverityTier(t string) int {
	switch {
	case classify.IsTopSeverity(t):
		return 0
	case strings.EqualFold(t, classify.TypeTodo):
		return 1
	default:
		return 2
	}
}

// GetFiltered returns the current generation under the active filters,
// sorted, with cached attribution merged in.
func (c *Corpus) GetFiltered() []models.Annotation {
	return Query(c.enriched(), c.Filters(), c.now())
}

// GetTotalCount returns the number of records GetFiltered would return.
func (c *Corpus) GetTotalCount() int {
	return len(c.GetFiltered())
}

// Size returns the number of records in the current generation.
func (c *Corpus) Size() int {
	return len(c.Snapshot().Annotations)
}

// All returns every record of the current generation, sorted, with cached
// attribution merged in. Filters are ignored.
func (c *Corpus) All() []models.Annotation {
	out := c.enriched()
	SortAnnotations(out)
	return out
}

// enriched copies the current generation and merges cached attribution into
// each copy. Authorless records take the history author.
func (c *Corpus) enriched() []models.Annotation {
	anns := c.Snapshot().Annotations
	out := make([]models.Annotation, len(anns))
	copy(out, anns)
	if c.resolver == nil {
		return out
	}
	for i := range out {
		att, loaded := c.resolver.Peek(out[i].File, out[i].Line)
		if !loaded {
			continue
		}
		mergeAttribution(&out[i], att)
	}
	return out
}

func mergeAttribution(a *models.Annotation, att *models.Attribution) {
	a.AttributionLoaded = true
	a.Attribution = att
	if a.Author == "" && att != nil {
		a.Author = att.Author
	}
}

// Lookup returns the record at file:line, resolving its attribution through
// version history if that has not happened yet.
func (c *Corpus) Lookup(ctx context.Context, file string, line int) (models.Annotation, error) {
	for _, a := range c.Snapshot().Annotations {
		if a.File != file || a.Line != line {
			continue
		}
		if c.resolver != nil {
			mergeAttribution(&a, c.resolver.Resolve(ctx, file, line))
		}
		return a, nil
	}
	return models.Annotation{}, fmt.Errorf("index: no annotation at %s:%d: %w", file, line+1, apperr.ErrNotFound)
}

// ResolveAttribution resolves attribution for every record of the current
// generation that has none yet. It stops early when ctx is cancelled.
func (c *Corpus) ResolveAttribution(ctx context.Context) int {
	if c.resolver == nil {
		return 0
	}
	n := 0
	for _, a := range c.Snapshot().Annotations {
		if ctx.Err() != nil {
			break
		}
		if _, loaded := c.resolver.Peek(a.File, a.Line); loaded {
			continue
		}
		c.resolver.Resolve(ctx, a.File, a.Line)
		n++
	}
	return n
}

// ListAuthors returns the distinct non-empty authors of the whole corpus,
// sorted.
func (c *Corpus) ListAuthors() []string {
	set := make(map[string]struct{})
	for _, a := range c.enriched() {
		if name := strings.TrimSpace(a.Author); name != "" {
			set[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CountForAuthor counts records of the whole corpus whose author equals
// name, ignoring case.
func (c *Corpus) CountForAuthor(name string) int {
	n := 0
	for _, a := range c.enriched() {
		if a.Author != "" && strings.EqualFold(a.Author, name) {
			n++
		}
	}
	return n
}

// Next returns the first filtered record positioned after file:line, in
// path and line order, wrapping to the first record. An empty file means no
// current position.
func (c *Corpus) Next(file string, line int) (models.Annotation, bool) {
	anns := byPosition(c.GetFiltered())
	if len(anns) == 0 {
		return models.Annotation{}, false
	}
	if file == "" {
		return anns[0], true
	}
	for _, a := range anns {
		if a.File > file || (a.File == file && a.Line > line) {
			return a, true
		}
	}
	return anns[0], true
}

// Previous is the mirror of Next.
func (c *Corpus) Previous(file string, line int) (models.Annotation, bool) {
	anns := byPosition(c.GetFiltered())
	if len(anns) == 0 {
		return models.Annotation{}, false
	}
	last := anns[len(anns)-1]
	if file == "" {
		return last, true
	}
	for i := len(anns) - 1; i >= 0; i-- {
		a := anns[i]
		if a.File < file || (a.File == file && a.Line < line) {
			return a, true
		}
	}
	return last, true
}

func byPosition(anns []models.Annotation) []models.Annotation {
	slices.SortStableFunc(anns, func(a, b models.Annotation) int {
		return cmp.Or(strings.Compare(a.File, b.File), cmp.Compare(a.Line, b.Line))
	})
	return anns
}

// Filters returns the active filter state.
func (c *Corpus) Filters() FilterState {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filters
}

func (c *Corpus) updateFilters(fn func(f *FilterState)) {
	c.filterMu.Lock()
	fn(&c.filters)
	state := c.filters
	c.filterMu.Unlock()
	c.publish(notify.EventFiltersChanged, state)
}

func (c *Corpus) SetAuthorFilter(author string) {
	c.updateFilters(func(f *FilterState) { f.Author = strings.TrimSpace(author) })
}

func (c *Corpus) ClearAuthorFilter() { c.SetAuthorFilter("") }

func (c *Corpus) SetTypeFilter(t string) {
	c.updateFilters(func(f *FilterState) { f.Type = strings.TrimSpace(t) })
}

func (c *Corpus) ClearTypeFilter() { c.SetTypeFilter("") }

func (c *Corpus) SetTextFilter(text string) {
	c.updateFilters(func(f *FilterState) { f.Text = strings.TrimSpace(text) })
}

func (c *Corpus) ClearTextFilter() { c.SetTextFilter("") }

func (c *Corpus) SetAgeFilter(age models.AgeFilter) {
	if age == models.AgeFilterAll {
		age = ""
	}
	c.updateFilters(func(f *FilterState) { f.Age = age })
}

func (c *Corpus) ClearAgeFilter() { c.SetAgeFilter("") }

// SetActiveFileFilter restricts queries to one file. Entering active-file
// mode stashes the author, type and text filters and clears them; passing
// an empty path leaves the mode and restores them.
func (c *Corpus) SetActiveFileFilter(path string) {
	c.updateFilters(func(f *FilterState) {
		switch {
		case path != "" && f.ActiveFile == "":
			c.saved = &FilterState{Author: f.Author, Type: f.Type, Text: f.Text}
			f.Author, f.Type, f.Text = "", "", ""
			f.ActiveFile = path
		case path != "":
			f.ActiveFile = path
		case f.ActiveFile != "":
			f.ActiveFile = ""
			if c.saved != nil {
				f.Author, f.Type, f.Text = c.saved.Author, c.saved.Type, c.saved.Text
				c.saved = nil
			}
		}
	})
}

// ClearFilters turns every predicate off and forgets any stashed state.
func (c *Corpus) ClearFilters() {
	c.updateFilters(func(f *FilterState) {
		*f = FilterState{}
		c.saved = nil
	})
}
