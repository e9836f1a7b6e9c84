//go:build sqlite_fts5

package export

import (
	"database/sql"
	"fmt"

	"github.com/starford/todotrail/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS annotations_fts USING fts5(
			file UNINDEXED,
			line UNINDEXED,
			type,
			author,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsReset(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM annotations_fts`); err != nil {
		return fmt.Errorf("export: clear fts: %w", err)
	}
	return nil
}

func ftsInsert(tx *sql.Tx, a models.Annotation) error {
	_, err := tx.Exec(`INSERT INTO annotations_fts (file, line, type, author, body) VALUES (?, ?, ?, ?, ?)`,
		a.File, a.Line, a.Type, a.Author, a.Text)
	if err != nil {
		return fmt.Errorf("export: insert fts: %w", err)
	}
	return nil
}
