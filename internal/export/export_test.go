package export

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/todotrail/internal/models"
	"github.com/starford/todotrail/internal/notify"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "snapshot.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSnapshot(gen string) Snapshot {
	return Snapshot{
		Generation:  gen,
		Root:        "/ws",
		Files:       2,
		CompletedAt: time.Unix(1700000000, 0),
		Annotations: []models.Annotation{
			{File: "/ws/a.go", Line: 4, Type: "TODO", LiteralType: "TODO", Author: "said", Text: "fix login"},
			{File: "/ws/b.go", Line: 9, Type: "FIXME", LiteralType: "TODO", Inferred: true, Text: "urgent crash",
				Attribution: &models.Attribution{Author: "Lee", Timestamp: time.Unix(1690000000, 0), Revision: "abc"}},
		},
	}
}

func count(t *testing.T, db *DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return n
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	count(t, db, `SELECT count(*) FROM generations`)
	count(t, db, `SELECT count(*) FROM annotations`)
}

func TestWrite(t *testing.T) {
	db := testDB(t)
	if err := db.Write(sampleSnapshot("g1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n := count(t, db, `SELECT count(*) FROM annotations WHERE generation = ?`, "g1"); n != 2 {
		t.Errorf("annotations = %d", n)
	}

	var locator, revision string
	var inferred bool
	err := db.conn.QueryRow(`SELECT locator, revision, inferred FROM annotations WHERE file = ?`, "/ws/b.go").
		Scan(&locator, &revision, &inferred)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if locator != "todo:///ws/b.go?type=FIXME" || revision != "abc" || !inferred {
		t.Errorf("row = %q %q %v", locator, revision, inferred)
	}
	if n := count(t, db, `SELECT count(*) FROM annotations WHERE history_author IS NULL`); n != 1 {
		t.Errorf("rows without history = %d", n)
	}
}

func TestWriteReplacesPreviousSnapshot(t *testing.T) {
	db := testDB(t)
	_ = db.Write(sampleSnapshot("g1"))
	s := sampleSnapshot("g2")
	s.Annotations = s.Annotations[:1]
	if err := db.Write(s); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n := count(t, db, `SELECT count(*) FROM generations`); n != 1 {
		t.Errorf("generations = %d", n)
	}
	if n := count(t, db, `SELECT count(*) FROM annotations`); n != 1 {
		t.Errorf("annotations = %d", n)
	}
	if n := count(t, db, `SELECT count(*) FROM annotations WHERE body LIKE ?`, "%crash%"); n != 0 {
		t.Errorf("stale rows = %d", n)
	}
}

func TestMirror(t *testing.T) {
	db := testDB(t)
	events := make(chan notify.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	go func() {
		done <- Mirror(ctx, db, events, func() Snapshot { return sampleSnapshot("live") }, logger)
	}()

	events <- notify.Event{Type: notify.EventFiltersChanged}
	events <- notify.Event{Type: notify.EventRefreshed}
	close(events)

	if err := <-done; err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if n := count(t, db, `SELECT count(*) FROM generations WHERE id = ?`, "live"); n != 1 {
		t.Errorf("mirrored generations = %d", n)
	}
}
