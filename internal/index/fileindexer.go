package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/starford/todotrail/internal/classify"
	"github.com/starford/todotrail/internal/fingerprint"
	"github.com/starford/todotrail/internal/matcher"
	"github.com/starford/todotrail/internal/models"
	"github.com/starford/todotrail/internal/workspace"
)

// FileIndexer extracts the annotations of a single file.
type FileIndexer struct {
	src        Source
	matcher    *matcher.Matcher
	classifier *classify.Classifier
	cache      *FileCache
	logger     *slog.Logger

	parses atomic.Int64
}

// NewFileIndexer creates a FileIndexer that memoizes into cache.
func NewFileIndexer(src Source, m *matcher.Matcher, c *classify.Classifier, cache *FileCache, logger *slog.Logger) *FileIndexer {
	if c == nil {
		c = classify.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileIndexer{src: src, matcher: m, classifier: c, cache: cache, logger: logger}
}

// Scan returns the annotations of path. Content whose fingerprint matches
// the cached entry is not parsed again.
//
// A file that no longer exists yields an error wrapping fs.ErrNotExist and
// loses its cache entry. Binary and oversized files are cached as empty at
// their modification time. Any other read failure yields zero annotations
// and a nil error.
func (fi *FileIndexer) Scan(ctx context.Context, path string) ([]models.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fi.src.Read(path)
	if err != nil {
		if errors.Is(err, workspace.ErrSkipped) {
			fi.skip(path, err)
			return nil, nil
		}
		fi.cache.Delete(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("index: scan %s: %w", path, err)
		}
		fi.logger.Debug("index: file skipped",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, nil
	}

	fp := fingerprint.Of(doc.Data)
	if entry, ok := fi.cache.Get(path); ok && entry.Fingerprint == fp {
		if doc.ModTime.After(entry.ModifiedAt) {
			entry.ModifiedAt = doc.ModTime
			fi.cache.Put(path, entry)
		}
		return entry.Annotations, nil
	}

	anns := fi.parse(path, string(doc.Data))
	fi.cache.Put(path, models.FileCacheEntry{
		Annotations: anns,
		Fingerprint: fp,
		ModifiedAt:  doc.ModTime,
	})
	return anns, nil
}

// skip records an empty entry for a file the workspace refuses to read, so
// refresh passes reuse it until the file changes.
func (fi *FileIndexer) skip(path string, reason error) {
	mt, err := fi.src.Stat(path)
	if err != nil {
		fi.cache.Delete(path)
		return
	}
	fi.cache.Put(path, models.FileCacheEntry{ModifiedAt: mt})
	fi.logger.Debug("index: file skipped",
		slog.String("path", path),
		slog.String("reason", reason.Error()))
}

// Parses returns how many times file content has been run through the
// matcher since creation.
func (fi *FileIndexer) Parses() int64 {
	return fi.parses.Load()
}

func (fi *FileIndexer) parse(path, text string) []models.Annotation {
	fi.parses.Add(1)
	var out []models.Annotation
	for i, line := range strings.Split(text, "\n") {
		m, ok := fi.matcher.Match(strings.TrimSuffix(line, "\r"))
		if !ok {
			continue
		}
		res := fi.classifier.Classify(m.Body, m.Type)
		out = append(out, models.Annotation{
			File:        path,
			Line:        i,
			Type:        res.Type,
			LiteralType: m.Type,
			Inferred:    res.Inferred,
			Author:      m.Author,
			Text:        m.Body,
			MatchStart:  m.Start,
			MatchLength: m.Length,
		})
	}
	return out
}
