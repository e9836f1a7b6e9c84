package workspace

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExclude is the exclude list used when none is configured.
const DefaultExclude = "**/node_modules/**,**/.git/**,**/dist/**,**/build/**"

// ParseExclude splits a comma-separated glob list, dropping blanks.
func ParseExclude(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, filepath.ToSlash(p))
	}
	return out
}

// Filter decides which workspace files take part in a scan.
type Filter struct {
	patterns    []string
	maxFileSize int64
}

// NewFilter returns a filter for the given exclude globs. Invalid patterns
// are dropped. A non-positive maxFileSize disables the size guard.
func NewFilter(patterns []string, maxFileSize int64) *Filter {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if doublestar.ValidatePattern(p) {
			valid = append(valid, p)
		}
	}
	return &Filter{patterns: valid, maxFileSize: maxFileSize}
}

// Excluded reports whether relPath (relative to the workspace root) matches
// any exclude pattern.
func (f *Filter) Excluded(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, p := range f.patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

// ExcludedDir reports whether a directory can be skipped entirely because
// everything beneath it is excluded.
func (f *Filter) ExcludedDir(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, p := range f.patterns {
		if !strings.HasSuffix(p, "/**") {
			continue
		}
		if ok, _ := doublestar.Match(strings.TrimSuffix(p, "/**"), relPath); ok {
			return true
		}
	}
	return false
}

// TooLarge reports whether a file of size bytes exceeds the size guard.
func (f *Filter) TooLarge(size int64) bool {
	return f.maxFileSize > 0 && size > f.maxFileSize
}

// Patterns returns the active exclude globs.
func (f *Filter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}

// IsBinary reports whether content looks binary: a NUL byte within the
// first 512 bytes.
func IsBinary(content []byte) bool {
	n := min(len(content), 512)
	for i := range n {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
