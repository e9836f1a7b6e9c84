// Package workspace gives the index read access to a project tree: file
// enumeration under exclude globs and a result cap, content reads that
// prefer open buffers, and modification times.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/todotrail/internal/apperr"
)

// Defaults.
const (
	DefaultMaxResults  = 1000
	DefaultMaxFileSize = 1 << 20
)

// ErrSkipped is returned by Read for files the size or binary guard rejects.
var ErrSkipped = errors.New("workspace: file skipped")

// File is an enumerated scan candidate.
type File struct {
	Path    string // absolute
	ModTime time.Time
	Size    int64
	Open    bool
}

// Document is the current text of a file.
type Document struct {
	Path    string
	Data    []byte
	ModTime time.Time
	Open    bool
}

// Workspace is a project tree rooted at an absolute directory.
type Workspace struct {
	root       string
	filter     *Filter
	maxResults int
	buffers    *Buffers
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithFilter sets the exclude/size filter.
func WithFilter(f *Filter) Option {
	return func(w *Workspace) { w.filter = f }
}

// WithMaxResults caps the number of enumerated files.
func WithMaxResults(n int) Option {
	return func(w *Workspace) { w.maxResults = n }
}

// WithBuffers shares an open-buffer registry.
func WithBuffers(b *Buffers) Option {
	return func(w *Workspace) { w.buffers = b }
}

// New creates a workspace rooted at the given directory, which must exist.
func New(root string, opts ...Option) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace: root is not a directory: %s", abs)
	}
	w := &Workspace{
		root:       abs,
		filter:     NewFilter(ParseExclude(DefaultExclude), DefaultMaxFileSize),
		maxResults: DefaultMaxResults,
		buffers:    NewBuffers(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Buffers returns the open-buffer registry.
func (w *Workspace) Buffers() *Buffers { return w.buffers }

// Resolve maps a path relative to the root, or an absolute path inside it,
// to a clean absolute path. Paths escaping the root are rejected.
func (w *Workspace) Resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("workspace: empty path: %w", apperr.ErrInvalidArgument)
	}
	var abs string
	if filepath.IsAbs(p) {
		abs = filepath.Clean(p)
	} else {
		abs = filepath.Join(w.root, filepath.Clean(p))
	}
	if abs != w.root && !strings.HasPrefix(abs, w.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("workspace: path escapes root: %s: %w", p, apperr.ErrInvalidArgument)
	}
	return abs, nil
}

// Rel returns abs relative to the root, slash separated.
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// List enumerates scan candidates: open buffers under the root first, then
// the file tree, honoring the exclude globs and the result cap. Entries that
// cannot be inspected are skipped.
func (w *Workspace) List(ctx context.Context) ([]File, error) {
	var out []File
	seen := make(map[string]struct{})
	full := func() bool { return w.maxResults > 0 && len(out) >= w.maxResults }

	for _, p := range w.buffers.Paths() {
		if full() {
			return out, nil
		}
		if _, err := w.Resolve(p); err != nil || w.filter.Excluded(w.Rel(p)) {
			continue
		}
		buf, _ := w.buffers.Get(p)
		out = append(out, File{Path: p, ModTime: buf.UpdatedAt, Size: int64(len(buf.Data)), Open: true})
		seen[p] = struct{}{}
	}

	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == w.root {
				return walkErr
			}
			return nil
		}
		if p == w.root {
			return nil
		}
		rel := w.Rel(p)
		if d.IsDir() {
			if w.filter.ExcludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || w.filter.Excluded(rel) {
			return nil
		}
		if _, ok := seen[p]; ok {
			return nil
		}
		if full() {
			return filepath.SkipAll
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, File{Path: p, ModTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("workspace: list: %w", err)
	}
	return out, nil
}

// Read returns the current text of path, preferring an open buffer over the
// file on disk. Oversized and binary files yield ErrSkipped.
func (w *Workspace) Read(path string) (Document, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return Document{}, err
	}
	if buf, ok := w.buffers.Get(abs); ok {
		return Document{Path: abs, Data: buf.Data, ModTime: buf.UpdatedAt, Open: true}, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Document{}, fmt.Errorf("workspace: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("workspace: %s is a directory: %w", path, apperr.ErrInvalidArgument)
	}
	if w.filter.TooLarge(info.Size()) {
		return Document{}, fmt.Errorf("workspace: %s: %d bytes: %w", path, info.Size(), ErrSkipped)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return Document{}, fmt.Errorf("workspace: read %s: %w", path, err)
	}
	if IsBinary(data) {
		return Document{}, fmt.Errorf("workspace: %s: binary content: %w", path, ErrSkipped)
	}
	return Document{Path: abs, Data: data, ModTime: info.ModTime()}, nil
}

// Stat returns the modification time of path. Open buffers report the time
// of their last update.
func (w *Workspace) Stat(path string) (time.Time, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return time.Time{}, err
	}
	if buf, ok := w.buffers.Get(abs); ok {
		return buf.UpdatedAt, nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		return time.Time{}, fmt.Errorf("workspace: stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}

// Skip reports whether an absolute path is outside the scan set, either
// because it lies outside the root or because the exclude globs cover it.
func (w *Workspace) Skip(path string, isDir bool) bool {
	if _, err := w.Resolve(path); err != nil {
		return true
	}
	rel := w.Rel(path)
	if isDir {
		return w.filter.ExcludedDir(rel)
	}
	return w.filter.Excluded(rel)
}
