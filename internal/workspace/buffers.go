package workspace

import (
	"sort"
	"sync"
	"time"
)

// Buffer is the in-memory content of an open document. It may hold unsaved
// edits or have no file on disk at all.
type Buffer struct {
	Data      []byte
	UpdatedAt time.Time
}

// Buffers is the registry of open documents, keyed by absolute path.
type Buffers struct {
	mu    sync.RWMutex
	items map[string]Buffer
	now   func() time.Time
}

// NewBuffers returns an empty registry.
func NewBuffers() *Buffers {
	return &Buffers{items: make(map[string]Buffer), now: time.Now}
}

// Open stores or replaces the content of path.
func (b *Buffers) Open(path string, data []byte) {
	cp := append([]byte(nil), data...)
	b.mu.Lock()
	b.items[path] = Buffer{Data: cp, UpdatedAt: b.now()}
	b.mu.Unlock()
}

// Close drops path from the registry. It reports whether path was open.
func (b *Buffers) Close(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.items[path]
	delete(b.items, path)
	return ok
}

// Get returns the buffer for path.
func (b *Buffers) Get(path string) (Buffer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buf, ok := b.items[path]
	return buf, ok
}

// Paths returns the open paths in lexical order.
func (b *Buffers) Paths() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.items))
	for p := range b.items {
		out = append(out, p)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}
