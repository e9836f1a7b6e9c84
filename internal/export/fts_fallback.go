//go:build !sqlite_fts5

package export

import (
	"database/sql"

	"github.com/starford/todotrail/internal/models"
)

// Without FTS5 the annotations.body column serves LIKE queries.
func initFTS(_ *sql.DB) error { return nil }

func ftsReset(_ *sql.Tx) error { return nil }

func ftsInsert(_ *sql.Tx, _ models.Annotation) error { return nil }
