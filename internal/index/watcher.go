package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last file event before a
// refresh is requested.
const DefaultDebounce = 300 * time.Millisecond

// EventCallback is called after a watcher-driven cache invalidation.
// kind is "changed" or "deleted"; path is absolute.
type EventCallback func(kind string, path string)

// WatchOptions tunes Watch.
type WatchOptions struct {
	Debounce time.Duration
	// Skip reports whether an absolute path is outside the scan set.
	// Skipped directories are not watched.
	Skip func(path string, isDir bool) bool
}

// Watch starts an fsnotify watcher on root and keeps c current until ctx is
// cancelled. Every file event invalidates the file's cache entry at once;
// the refresh that rebuilds the corpus is requested after the debounce
// period so bursts of writes cost a single pass.
//
// New directories created at runtime are added to the watch list.
func Watch(ctx context.Context, c *Corpus, root string, opts WatchOptions, logger *slog.Logger, cb EventCallback) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	skip := opts.Skip
	if skip == nil {
		skip = func(string, bool) bool { return false }
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root, skip); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var refreshTimer *time.Timer
	var refreshCh <-chan time.Time

	scheduleRefresh := func() {
		if refreshTimer == nil {
			refreshTimer = time.NewTimer(opts.Debounce)
			refreshCh = refreshTimer.C
		} else {
			refreshTimer.Reset(opts.Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if refreshTimer != nil {
				refreshTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-refreshCh:
			c.RequestRefresh()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if skip(absPath, true) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath, skip); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					scheduleRefresh()
					continue
				}
			}

			if skip(absPath, false) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				c.InvalidateFile(absPath)
				logger.Debug("watcher: invalidated", slog.String("path", absPath))
				if cb != nil {
					cb("changed", absPath)
				}
				scheduleRefresh()

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path only; the new path arrives as
				// a separate Create.
				c.InvalidateFile(absPath)
				logger.Debug("watcher: removed", slog.String("path", absPath))
				if cb != nil {
					cb("deleted", absPath)
				}
				scheduleRefresh()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, skip func(string, bool) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skip(path, true) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
