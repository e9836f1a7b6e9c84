package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/todotrail/internal/classify"
	"github.com/starford/todotrail/internal/matcher"
	"github.com/starford/todotrail/internal/models"
	"github.com/starford/todotrail/internal/notify"
	"github.com/starford/todotrail/internal/workspace"
)

// recentWindow marks files modified this recently as the second scan tier.
const recentWindow = 24 * time.Hour

// Generation is one complete scan result. Generations are immutable once
// published.
type Generation struct {
	ID          string              `json:"id"`
	Annotations []models.Annotation `json:"-"`
	Files       int                 `json:"files"`
	CompletedAt time.Time           `json:"completed_at"`
}

// RefreshedEvent is the payload of a corpus.refreshed notification.
type RefreshedEvent struct {
	Generation  string `json:"generation"`
	Annotations int    `json:"annotations"`
	Files       int    `json:"files"`
	DurationMS  int64  `json:"duration_ms"`
}

// Corpus owns the annotation corpus of one workspace together with its file
// cache, attribution cache and filter state.
type Corpus struct {
	src      Source
	indexer  *FileIndexer
	cache    *FileCache
	matcher  *matcher.Matcher
	resolver Attributor
	notifier notify.Publisher
	logger   *slog.Logger
	now      func() time.Time

	gen       atomic.Pointer[Generation]
	refreshMu sync.Mutex
	pending   chan struct{}

	filterMu sync.RWMutex
	filters  FilterState
	saved    *FilterState
}

// Option configures a Corpus.
type Option func(*Corpus)

// WithClassifier replaces the default classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(co *Corpus) { co.indexer.classifier = c }
}

// WithAttributor enables attribution enrichment.
func WithAttributor(a Attributor) Option {
	return func(co *Corpus) { co.resolver = a }
}

// WithNotifier sets the change event sink.
func WithNotifier(p notify.Publisher) Option {
	return func(co *Corpus) { co.notifier = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(co *Corpus) {
		co.logger = l
		co.indexer.logger = l
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(co *Corpus) { co.now = now }
}

// NewCorpus creates an empty corpus over src. Annotation types are the
// matcher's configured types.
func NewCorpus(src Source, m *matcher.Matcher, opts ...Option) *Corpus {
	cache := NewFileCache()
	c := &Corpus{
		src:     src,
		cache:   cache,
		matcher: m,
		indexer: NewFileIndexer(src, m, nil, cache, nil),
		logger:  slog.Default(),
		now:     time.Now,
		pending: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gen.Store(&Generation{})
	return c
}

// Indexer returns the file indexer backing the corpus.
func (c *Corpus) Indexer() *FileIndexer { return c.indexer }

// Snapshot returns the current generation.
func (c *Corpus) Snapshot() *Generation { return c.gen.Load() }

// Refresh runs a full scan pass and publishes the result as a new
// generation. Per-file failures never abort the pass. Only context
// cancellation does, in which case the previous generation stays current.
func (c *Corpus) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := c.now()
	if c.matcher == nil || len(c.matcher.Types()) == 0 {
		c.cache.Clear()
		c.publishGeneration(&Generation{ID: uuid.NewString(), CompletedAt: start}, start)
		return nil
	}

	files, err := c.src.List(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("index: enumerate failed",
			slog.String("error", err.Error()))
	}

	open, recent, rest := partition(files, start)
	seen := make(map[string]struct{}, len(files))
	var all []models.Annotation
	var scanned, reused int

	for _, tier := range [][]workspace.File{open, recent, rest} {
		for _, f := range tier {
			if err := ctx.Err(); err != nil {
				return err
			}
			anns, fresh, err := c.scanFile(ctx, f.Path, f.ModTime)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return err
			}
			if fresh {
				scanned++
			} else {
				reused++
			}
			seen[f.Path] = struct{}{}
			all = append(all, anns...)
		}
	}

	evicted := c.cache.Retain(seen)
	for _, p := range evicted {
		if c.resolver != nil {
			c.resolver.Invalidate(p)
		}
	}

	end := c.now()
	c.publishGeneration(&Generation{
		ID:          uuid.NewString(),
		Annotations: all,
		Files:       len(seen),
		CompletedAt: end,
	}, start)

	c.logger.Info("index: refreshed",
		slog.Int("files", len(seen)),
		slog.Int("scanned", scanned),
		slog.Int("cached", reused),
		slog.Int("evicted", len(evicted)),
		slog.Int("annotations", len(all)),
		slog.Duration("took", end.Sub(start)))
	return nil
}

// scanFile returns the annotations of path, reusing the cache entry when the
// file has not been modified since it was recorded.
func (c *Corpus) scanFile(ctx context.Context, path string, modTime time.Time) ([]models.Annotation, bool, error) {
	if entry, ok := c.cache.Get(path); ok && !modTime.After(entry.ModifiedAt) {
		return entry.Annotations, false, nil
	}
	before := c.indexer.Parses()
	anns, err := c.indexer.Scan(ctx, path)
	if err != nil {
		return nil, false, err
	}
	return anns, c.indexer.Parses() != before, nil
}

func (c *Corpus) publishGeneration(g *Generation, start time.Time) {
	c.gen.Store(g)
	c.publish(notify.EventRefreshed, RefreshedEvent{
		Generation:  g.ID,
		Annotations: len(g.Annotations),
		Files:       g.Files,
		DurationMS:  g.CompletedAt.Sub(start).Milliseconds(),
	})
}

// RequestRefresh asks Run for a refresh pass. Requests made while one is
// already pending are coalesced.
func (c *Corpus) RequestRefresh() {
	select {
	case c.pending <- struct{}{}:
	default:
	}
}

// Run serves refresh requests until ctx is cancelled.
func (c *Corpus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.pending:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("index: refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// InvalidateFile drops the cached scan and attribution of path. The next
// refresh re-reads it.
func (c *Corpus) InvalidateFile(path string) {
	c.cache.Delete(path)
	if c.resolver != nil {
		c.resolver.Invalidate(path)
	}
	c.publish(notify.EventInvalidated, map[string]string{"path": path})
}

// ClearCache drops every cached scan and attribution.
func (c *Corpus) ClearCache() {
	c.cache.Clear()
	if c.resolver != nil {
		c.resolver.Clear()
	}
	c.publish(notify.EventCleared, map[string]string{})
}

// CachedFiles returns the number of files with a cache entry.
func (c *Corpus) CachedFiles() int { return c.cache.Len() }

func (c *Corpus) publish(typ string, data any) {
	if c.notifier == nil {
		return
	}
	c.notifier.Publish(notify.Event{Type: typ, Data: data})
}

// partition splits candidates into open buffers, files modified within the
// last day, and the rest, preserving enumeration order within each tier.
func partition(files []workspace.File, now time.Time) (open, recent, rest []workspace.File) {
	for _, f := range files {
		switch {
		case f.Open:
			open = append(open, f)
		case now.Sub(f.ModTime) < recentWindow:
			recent = append(recent, f)
		default:
			rest = append(rest, f)
		}
	}
	return open, recent, rest
}
