// Package index builds and queries the annotation corpus of a workspace.
//
// A FileIndexer turns one file into annotation records and memoizes the
// result in a FileCache keyed by content fingerprint. A Corpus drives
// refresh passes over the workspace, swaps complete scan generations in
// atomically, and answers filtered queries with attribution merged in.
package index

import (
	"context"
	"time"

	"github.com/starford/todotrail/internal/models"
	"github.com/starford/todotrail/internal/workspace"
)

// Source is the workspace view the index reads from.
type Source interface {
	List(ctx context.Context) ([]workspace.File, error)
	Read(path string) (workspace.Document, error)
	Stat(path string) (time.Time, error)
}

// Attributor resolves and caches per-line attribution.
type Attributor interface {
	Resolve(ctx context.Context, file string, line int) *models.Attribution
	Peek(file string, line int) (*models.Attribution, bool)
	Invalidate(file string)
	Clear()
}

var _ Source = (*workspace.Workspace)(nil)
