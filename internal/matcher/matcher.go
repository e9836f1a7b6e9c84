// Package matcher recognises annotation comments (TODO, FIXME, ...) in single
// lines of source text.
package matcher

import (
	"regexp"
	"slices"
	"strings"

	"github.com/starford/todotrail/internal/models"
)

// Match describes the annotation found on a line.
//
// Start and Length are byte offsets into the line. The span begins at the
// comment introducer and ends with the body, or with the block closer when
// one is present on the same line.
type Match struct {
	Type    string // configured spelling of the keyword
	Literal string // keyword as written in the line
	Author  string
	Body    string
	Start   int
	Length  int
}

// form is one entry of the ordered pattern table.
type form struct {
	name string
	re   *regexp.Regexp
}

// Matcher holds the compiled pattern table for one set of recognised types.
// It is immutable and safe for concurrent use.
type Matcher struct {
	types     []string
	canonical map[string]string
	forms     []form

	typeIdx, authorIdx, bodyIdx, introIdx, closeIdx int
}

const (
	checkbox  = `(?:\[[ x]\]\s*)?`
	authorGrp = `\s*\((?P<author>[^)]+)\)`
	lineTail  = `\s*:?\s*(?P<body>.*?)\s*(?P<close>$)`
	blockTail = `\s*:?\s*(?P<body>.*?)\s*(?P<close>\*/|$)`
)

// introducer layouts, in priority order. Each is tried with an author group
// first and then without.
var layouts = []struct {
	name string
	head string
	tail string
}{
	{"line", `^\s*(?P<intro>//|#|--)\s*`, lineTail},
	{"block", `^\s*(?P<intro>/\*+)\s*`, blockTail},
	{"continuation", `^\s*(?P<intro>\*)\s*`, blockTail},
	// The greedy prefix makes the last introducer before the keyword win,
	// so "//" inside an earlier string literal is not taken as the comment.
	{"embedded-line", `^.*(?P<intro>//|#|--).*?`, lineTail},
	{"embedded-block", `^.*(?P<intro>/\*)(?:[^*]|\*[^/])*?`, blockTail},
	{"embedded-continuation", `^\s*(?P<intro>\*)\s.*?`, blockTail},
}

// New compiles the pattern table for types. Keys are matched
// case-insensitively; regex metacharacters in keys are escaped. An empty
// type set yields a Matcher that never matches.
func New(types []string) (*Matcher, error) {
	m := &Matcher{canonical: make(map[string]string, len(types))}
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		up := strings.ToUpper(t)
		if _, dup := m.canonical[up]; dup {
			continue
		}
		m.canonical[up] = t
		m.types = append(m.types, t)
	}
	if len(m.types) == 0 {
		return m, nil
	}

	alt := `(?P<type>` + typeAlternation(m.types) + `)`
	for _, l := range layouts {
		for _, withAuthor := range []bool{true, false} {
			expr := `(?i)` + l.head + checkbox + alt
			name := l.name
			if withAuthor {
				expr += authorGrp
				name += "+author"
			} else {
				// Keep group numbering identical across forms.
				expr += `(?P<author>)`
			}
			expr += l.tail
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, err
			}
			m.forms = append(m.forms, form{name: name, re: re})
		}
	}

	re := m.forms[0].re
	m.typeIdx = re.SubexpIndex("type")
	m.authorIdx = re.SubexpIndex("author")
	m.bodyIdx = re.SubexpIndex("body")
	m.introIdx = re.SubexpIndex("intro")
	m.closeIdx = re.SubexpIndex("close")
	return m, nil
}

// MustNew is like New but panics on error.
func MustNew(types []string) *Matcher {
	m, err := New(types)
	if err != nil {
		panic(err)
	}
	return m
}

// Types returns the recognised types in configuration order.
func (m *Matcher) Types() []string {
	return slices.Clone(m.types)
}

// Match returns the first annotation found on line. At most one annotation is
// reported per line; the first form in priority order that matches wins.
func (m *Matcher) Match(line string) (Match, bool) {
	if m == nil || len(m.forms) == 0 {
		return Match{}, false
	}
	for _, f := range m.forms {
		loc := f.re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		literal := line[loc[2*m.typeIdx]:loc[2*m.typeIdx+1]]
		typ, ok := m.lookup(literal)
		if !ok {
			continue
		}

		res := Match{Type: typ, Literal: literal}
		if s := loc[2*m.authorIdx]; s >= 0 {
			res.Author = strings.TrimSpace(line[s:loc[2*m.authorIdx+1]])
		}

		bodyStart, bodyEnd := loc[2*m.bodyIdx], loc[2*m.bodyIdx+1]
		res.Body = NormalizeBody(line[bodyStart:bodyEnd])

		end := bodyEnd
		if cs, ce := loc[2*m.closeIdx], loc[2*m.closeIdx+1]; cs >= 0 && ce > cs {
			end = ce
		}
		res.Start = loc[2*m.introIdx]
		res.Length = end - res.Start
		return res, true
	}
	return Match{}, false
}

// NormalizeBody trims body text and substitutes the placeholder for empty text.
func NormalizeBody(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.NoDescription
	}
	return s
}

func (m *Matcher) lookup(literal string) (string, bool) {
	if t, ok := m.canonical[strings.ToUpper(literal)]; ok {
		return t, true
	}
	for _, t := range m.types {
		if strings.EqualFold(t, literal) {
			return t, true
		}
	}
	return "", false
}

// typeAlternation builds the keyword alternation, longest keys first so the
// most specific literal wins. Word boundaries are added on sides where the
// key begins or ends with a word character.
func typeAlternation(types []string) string {
	keys := slices.Clone(types)
	slices.SortStableFunc(keys, func(a, b string) int {
		return len(b) - len(a)
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		q := regexp.QuoteMeta(k)
		if isWordByte(k[0]) {
			q = `\b` + q
		}
		if isWordByte(k[len(k)-1]) {
			q += `\b`
		}
		parts = append(parts, q)
	}
	return "(?:" + strings.Join(parts, "|") + ")"
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
