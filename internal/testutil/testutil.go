// Package testutil provides shared test helpers for setting up workspaces.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/todotrail/internal/workspace"
)

// TestWorkspace creates a temporary workspace directory.
func TestWorkspace(t *testing.T, opts ...workspace.Option) (string, *workspace.Workspace) {
	t.Helper()
	dir := t.TempDir()
	ws, err := workspace.New(dir, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return dir, ws
}

// WriteFile writes content to rel under root, creating parent directories,
// and returns the absolute path.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// Touch moves the modification time of path forward by d.
func Touch(t *testing.T, path string, d time.Duration) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	mt := info.ModTime().Add(d)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
