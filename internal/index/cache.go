package index

import (
	"sync"

	"github.com/starford/todotrail/internal/models"
)

// FileCache maps absolute file paths to their memoized scan results.
type FileCache struct {
	mu      sync.RWMutex
	entries map[string]models.FileCacheEntry
}

// NewFileCache returns an empty cache.
func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[string]models.FileCacheEntry)}
}

func (c *FileCache) Get(path string) (models.FileCacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

func (c *FileCache) Put(path string, e models.FileCacheEntry) {
	c.mu.Lock()
	c.entries[path] = e
	c.mu.Unlock()
}

// Delete evicts path. It reports whether an entry existed.
func (c *FileCache) Delete(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	delete(c.entries, path)
	return ok
}

func (c *FileCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]models.FileCacheEntry)
	c.mu.Unlock()
}

func (c *FileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Retain evicts every entry whose path is not in keep and returns the
// evicted paths.
func (c *FileCache) Retain(keep map[string]struct{}) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var evicted []string
	for p := range c.entries {
		if _, ok := keep[p]; !ok {
			delete(c.entries, p)
			evicted = append(evicted, p)
		}
	}
	return evicted
}
