package workspace

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/starford/todotrail/internal/apperr"
)

func tempWorkspace(t *testing.T, opts ...Option) (string, *Workspace) {
	t.Helper()
	dir := t.TempDir()
	ws, err := New(dir, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return dir, ws
}

func writeFile(t *testing.T, root, rel, content string) string {
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

func relPaths(ws *Workspace, files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, ws.Rel(f.Path))
	}
	sort.Strings(out)
	return out
}

func TestList_HonorsExcludes(t *testing.T) {
	dir, ws := tempWorkspace(t)
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, "pkg/util.go", "package pkg")
	writeFile(t, dir, "node_modules/lib/index.js", "x")
	writeFile(t, dir, "web/node_modules/a.js", "x")
	writeFile(t, dir, ".git/HEAD", "ref")
	writeFile(t, dir, "dist/app.js", "x")

	files, err := ws.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := relPaths(ws, files)
	want := []string{"main.go", "pkg/util.go"}
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestList_CustomExcludeFilePattern(t *testing.T) {
	filter := NewFilter(ParseExclude(" **/*.min.js , ,docs/**"), 0)
	dir, ws := tempWorkspace(t, WithFilter(filter))
	writeFile(t, dir, "a.js", "x")
	writeFile(t, dir, "lib/a.min.js", "x")
	writeFile(t, dir, "docs/guide.md", "x")

	files, err := ws.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := relPaths(ws, files); len(got) != 1 || got[0] != "a.js" {
		t.Errorf("files = %v", got)
	}
}

func TestList_Cap(t *testing.T) {
	dir, ws := tempWorkspace(t, WithMaxResults(2))
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go"} {
		writeFile(t, dir, name, "x")
	}
	files, err := ws.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("len = %d, want 2", len(files))
	}
}

func TestList_OpenBuffersFirst(t *testing.T) {
	dir, ws := tempWorkspace(t)
	writeFile(t, dir, "a.go", "x")
	disk := writeFile(t, dir, "b.go", "x")
	virtual := filepath.Join(dir, "untitled.go")
	ws.Buffers().Open(disk, []byte("edited"))
	ws.Buffers().Open(virtual, []byte("new"))
	ws.Buffers().Open("/elsewhere/x.go", []byte("outside"))

	files, err := ws.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("len = %d, want 3: %v", len(files), relPaths(ws, files))
	}
	if !files[0].Open || !files[1].Open || files[2].Open {
		t.Errorf("open buffers must come first: %+v", files)
	}
}

func TestRead_PrefersBuffer(t *testing.T) {
	dir, ws := tempWorkspace(t)
	p := writeFile(t, dir, "a.go", "on disk")

	doc, err := ws.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(doc.Data) != "on disk" || doc.Open {
		t.Errorf("doc = %+v", doc)
	}

	ws.Buffers().Open(p, []byte("unsaved"))
	doc, err = ws.Read("a.go")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(doc.Data) != "unsaved" || !doc.Open {
		t.Errorf("doc = %+v", doc)
	}

	if !ws.Buffers().Close(p) {
		t.Error("Close should report the buffer was open")
	}
	doc, _ = ws.Read(p)
	if string(doc.Data) != "on disk" {
		t.Errorf("after close: %q", doc.Data)
	}
}

func TestRead_Guards(t *testing.T) {
	dir, ws := tempWorkspace(t, WithFilter(NewFilter(nil, 16)))
	big := writeFile(t, dir, "big.txt", "0123456789abcdefXYZ")
	bin := writeFile(t, dir, "bin.dat", "ab\x00cd")

	if _, err := ws.Read(big); !errors.Is(err, ErrSkipped) {
		t.Errorf("big: err = %v, want ErrSkipped", err)
	}
	if _, err := ws.Read(bin); !errors.Is(err, ErrSkipped) {
		t.Errorf("binary: err = %v, want ErrSkipped", err)
	}
	if _, err := ws.Read(filepath.Join(dir, "missing.go")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing: err = %v, want ErrNotExist", err)
	}
}

func TestResolve_RejectsEscape(t *testing.T) {
	dir, ws := tempWorkspace(t)
	for _, p := range []string{"../etc/passwd", "a/../../x", "/etc/passwd", ""} {
		if _, err := ws.Resolve(p); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("Resolve(%q) err = %v", p, err)
		}
	}
	got, err := ws.Resolve("sub/../a.go")
	if err != nil || got != filepath.Join(dir, "a.go") {
		t.Errorf("Resolve = %q, %v", got, err)
	}
}

func TestStat(t *testing.T) {
	dir, ws := tempWorkspace(t)
	p := writeFile(t, dir, "a.go", "x")
	info, _ := os.Stat(p)

	mt, err := ws.Stat(p)
	if err != nil || !mt.Equal(info.ModTime()) {
		t.Errorf("Stat = %v, %v", mt, err)
	}
	if _, err := ws.Stat(filepath.Join(dir, "nope")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v", err)
	}
}

func TestIsBinary(t *testing.T) {
	if IsBinary([]byte("plain text\n")) {
		t.Error("text reported binary")
	}
	if !IsBinary([]byte{'a', 0, 'b'}) {
		t.Error("NUL not detected")
	}
	late := make([]byte, 600)
	for i := range late {
		late[i] = 'a'
	}
	late[550] = 0
	if IsBinary(late) {
		t.Error("NUL past 512 bytes should be ignored")
	}
}
