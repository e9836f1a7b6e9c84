// Package attribution resolves per-line authorship from version history.
//
// Lookups run the history tool once per (file, line) and cache the outcome,
// including failures, so a location is never asked about twice until the
// owning file is invalidated.
package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/starford/todotrail/internal/models"
)

// Defaults.
const (
	DefaultCommand   = "git"
	DefaultTimeout   = 5 * time.Second
	DefaultCacheSize = 512
)

// Resolver resolves and caches line attribution.
type Resolver struct {
	exec      CommandExecutor
	command   string
	timeout   time.Duration
	cacheSize int
	logger    *slog.Logger

	mu    sync.Mutex
	files *lru.Cache[string, *fileEntry]
	group singleflight.Group
}

// fileEntry holds resolved lines of one file. A nil value records a lookup
// that produced no attribution.
type fileEntry struct {
	mu    sync.RWMutex
	lines map[int]*models.Attribution
}

func (e *fileEntry) get(line int) (*models.Attribution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	att, ok := e.lines[line]
	return att, ok
}

func (e *fileEntry) set(line int, att *models.Attribution) {
	e.mu.Lock()
	e.lines[line] = att
	e.mu.Unlock()
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithExecutor replaces the command executor.
func WithExecutor(e CommandExecutor) Option {
	return func(r *Resolver) { r.exec = e }
}

// WithCommand sets the history tool binary.
func WithCommand(name string) Option {
	return func(r *Resolver) { r.command = name }
}

// WithTimeout bounds a single lookup.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithCacheSize bounds the number of files whose attribution is retained.
func WithCacheSize(n int) Option {
	return func(r *Resolver) { r.cacheSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver.
func New(opts ...Option) (*Resolver, error) {
	r := &Resolver{
		exec:      DefaultExecutor{},
		command:   DefaultCommand,
		timeout:   DefaultTimeout,
		cacheSize: DefaultCacheSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	files, err := lru.New[string, *fileEntry](r.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("attribution: init cache: %w", err)
	}
	r.files = files
	return r, nil
}

// Resolve returns the attribution of a zero-based line in file, running the
// history tool on first request. It returns nil when no attribution is
// available; that outcome is cached too. A caller whose ctx ends stops
// waiting and gets nil, but the shared lookup runs on and its outcome is
// still cached.
func (r *Resolver) Resolve(ctx context.Context, file string, line int) *models.Attribution {
	entry := r.entry(file)
	if att, ok := entry.get(line); ok {
		return att
	}
	if ctx.Err() != nil {
		return nil
	}

	key := file + "\x00" + strconv.Itoa(line)
	lookupCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		if att, ok := entry.get(line); ok {
			return att, nil
		}
		att := r.lookup(lookupCtx, file, line)
		entry.set(line, att)
		return att, nil
	})
	select {
	case res := <-ch:
		return res.Val.(*models.Attribution)
	case <-ctx.Done():
		return nil
	}
}

// Peek returns a cached outcome without running the history tool. loaded is
// false when the location was never resolved.
func (r *Resolver) Peek(file string, line int) (att *models.Attribution, loaded bool) {
	entry, ok := r.files.Peek(file)
	if !ok {
		return nil, false
	}
	return entry.get(line)
}

// Invalidate drops every cached line of file.
func (r *Resolver) Invalidate(file string) {
	r.files.Remove(file)
}

// Clear drops the whole cache.
func (r *Resolver) Clear() {
	r.files.Purge()
}

func (r *Resolver) entry(file string) *fileEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.files.Get(file); ok {
		return e
	}
	e := &fileEntry{lines: make(map[int]*models.Attribution)}
	r.files.Add(file, e)
	return e
}

func (r *Resolver) lookup(ctx context.Context, file string, line int) *models.Attribution {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n := strconv.Itoa(line + 1)
	out, err := r.exec.Run(ctx, filepath.Dir(file), r.command,
		"blame", "--porcelain", "-L", n+","+n, "--", filepath.Base(file))
	if err != nil {
		r.logger.Debug("attribution: history lookup failed",
			slog.String("path", file),
			slog.Int("line", line),
			slog.String("error", err.Error()))
		return nil
	}

	att, err := ParsePorcelain(out)
	if err != nil {
		r.logger.Debug("attribution: unusable history output",
			slog.String("path", file),
			slog.Int("line", line),
			slog.String("error", err.Error()))
		return nil
	}
	return att
}
