package export

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/todotrail/internal/models"
)

// Snapshot is one corpus generation to persist.
type Snapshot struct {
	Generation  string
	Root        string
	Files       int
	CompletedAt time.Time
	Annotations []models.Annotation
}

// Write replaces the stored snapshot with s inside one transaction.
func (db *DB) Write(s Snapshot) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("export: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := ftsReset(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM annotations`); err != nil {
		return fmt.Errorf("export: clear annotations: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM generations`); err != nil {
		return fmt.Errorf("export: clear generations: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO generations (id, root, files, completed_at) VALUES (?, ?, ?, ?)`,
		s.Generation, s.Root, s.Files, s.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("export: insert generation: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO annotations (
			generation, file, line, type, literal_type, inferred, author, body,
			match_start, match_length, locator, history_author, history_time, revision
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("export: prepare annotation insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range s.Annotations {
		var hAuthor, hRev sql.NullString
		var hTime sql.NullTime
		if a.Attribution != nil {
			hAuthor = sql.NullString{String: a.Attribution.Author, Valid: true}
			hRev = sql.NullString{String: a.Attribution.Revision, Valid: true}
			if !a.Attribution.Timestamp.IsZero() {
				hTime = sql.NullTime{Time: a.Attribution.Timestamp.UTC(), Valid: true}
			}
		}
		if _, err := stmt.Exec(
			s.Generation, a.File, a.Line, a.Type, a.LiteralType, a.Inferred, a.Author, a.Text,
			a.MatchStart, a.MatchLength, a.Locator(), hAuthor, hTime, hRev,
		); err != nil {
			return fmt.Errorf("export: insert annotation %s:%d: %w", a.File, a.Line+1, err)
		}
		if err := ftsInsert(tx, a); err != nil {
			return err
		}
	}

	return tx.Commit()
}
