// Package classify re-tags annotations based on the language of their body.
package classify

import (
	"strings"
	"unicode"
)

// Well-known types the classifier escalates to.
const (
	TypeFixme = "FIXME"
	TypeXXX   = "XXX"
	TypeTodo  = "TODO"
	TypeHack  = "HACK"
)

// DefaultUrgentKeywords escalate an annotation to the top severity type.
// "fix" is left out so that "TODO: fix login" stays a TODO.
var DefaultUrgentKeywords = []string{
	"urgent", "critical", "important", "asap", "bug", "error",
	"urgente", "crítico", "critico", "importante", "error crítico",
}

// DefaultTemporaryKeywords re-tag an annotation as a temporary solution.
var DefaultTemporaryKeywords = []string{
	"temporary", "temp", "hack", "workaround", "quick fix",
	"temporal", "temporales", "solución temporal", "parche",
}

// Result is the outcome of classification.
type Result struct {
	Type     string
	Inferred bool
}

// Classifier decides the effective type of an annotation.
type Classifier struct {
	escalate  string
	temporary string
	urgent    keywordSet
	temp      keywordSet
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithTypes limits re-tagging to the recognised type set. A target type
// missing from types disables that rule; present targets take the
// configured spelling.
func WithTypes(types []string) Option {
	return func(c *Classifier) {
		c.escalate = configured(types, TypeFixme)
		c.temporary = configured(types, TypeHack)
	}
}

func configured(types []string, want string) string {
	for _, t := range types {
		if strings.EqualFold(strings.TrimSpace(t), want) {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

// Default returns a classifier with the built-in keyword lists.
func Default() *Classifier {
	return New(DefaultUrgentKeywords, DefaultTemporaryKeywords)
}

// New returns a classifier using the given keyword lists. Nil lists fall
// back to the defaults.
func New(urgent, temporary []string, opts ...Option) *Classifier {
	if urgent == nil {
		urgent = DefaultUrgentKeywords
	}
	if temporary == nil {
		temporary = DefaultTemporaryKeywords
	}
	c := &Classifier{
		escalate:  TypeFixme,
		temporary: TypeHack,
		urgent:    newKeywordSet(urgent),
		temp:      newKeywordSet(temporary),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the effective type for an annotation whose keyword
// literally matched literalType. Top severity types pass through untouched.
func (c *Classifier) Classify(body, literalType string) Result {
	if IsTopSeverity(literalType) {
		return Result{Type: literalType}
	}
	words := tokenize(body)
	if c.escalate != "" && c.urgent.matches(words) {
		return Result{Type: c.escalate, Inferred: true}
	}
	if c.temporary != "" && c.temp.matches(words) && !strings.EqualFold(literalType, c.temporary) {
		return Result{Type: c.temporary, Inferred: true}
	}
	return Result{Type: literalType}
}

// IsTopSeverity reports whether t is one of the highest severity types.
func IsTopSeverity(t string) bool {
	return strings.EqualFold(t, TypeFixme) || strings.EqualFold(t, TypeXXX)
}

// keywordSet matches whole words and multi-word phrases.
type keywordSet struct {
	words   map[string]struct{}
	phrases []string
}

func newKeywordSet(keywords []string) keywordSet {
	ks := keywordSet{words: make(map[string]struct{})}
	for _, k := range keywords {
		toks := tokenize(k)
		switch len(toks) {
		case 0:
		case 1:
			ks.words[toks[0]] = struct{}{}
		default:
			ks.phrases = append(ks.phrases, " "+strings.Join(toks, " ")+" ")
		}
	}
	return ks
}

func (ks keywordSet) matches(words []string) bool {
	for _, w := range words {
		if _, ok := ks.words[w]; ok {
			return true
		}
	}
	if len(ks.phrases) == 0 {
		return false
	}
	joined := " " + strings.Join(words, " ") + " "
	for _, p := range ks.phrases {
		if strings.Contains(joined, p) {
			return true
		}
	}
	return false
}

// tokenize lower-cases s and splits it into runs of letters and digits.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
