package attribution

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/todotrail/internal/models"
)

// ErrNotCommitted is returned for lines that only exist in the working tree.
var ErrNotCommitted = errors.New("attribution: line not committed")

// ParsePorcelain extracts the attribution of the first line described by
// `git blame --porcelain` output. The revision, author and author-time
// headers are required.
func ParsePorcelain(out []byte) (*models.Attribution, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		att     models.Attribution
		hasTime bool
		header  = true
	)
	for sc.Scan() {
		line := sc.Text()
		if header {
			fields := strings.Fields(line)
			if len(fields) < 3 || len(fields[0]) < 40 || !isHex(fields[0]) {
				return nil, fmt.Errorf("attribution: malformed header %q", line)
			}
			if strings.Trim(fields[0], "0") == "" {
				return nil, ErrNotCommitted
			}
			att.Revision = fields[0]
			header = false
			continue
		}
		if strings.HasPrefix(line, "\t") {
			// Content line ends the entry.
			break
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "author":
			att.Author = strings.TrimSpace(value)
		case "author-time":
			secs, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("attribution: bad author-time %q: %w", value, err)
			}
			att.Timestamp = time.Unix(secs, 0)
			hasTime = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("attribution: scan: %w", err)
	}
	if header {
		return nil, errors.New("attribution: empty output")
	}
	if att.Author == "" || !hasTime {
		return nil, errors.New("attribution: missing author or author-time")
	}
	return &att, nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
