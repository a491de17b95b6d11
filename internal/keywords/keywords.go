// Package keywords provides the word-boundary keyword matching shared by the
// prompt classifiers.
package keywords

import (
	"strings"
	"unicode"
)

// Text is a prompt normalised for matching: lower case, punctuation folded to
// single spaces, padded with a space on both ends.
type Text string

// Normalize prepares s for matching.
func Normalize(s string) Text {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == ':' {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return Text(b.String())
}

// IsEmpty reports whether the normalised text holds no words.
func (t Text) IsEmpty() bool {
	return strings.TrimSpace(string(t)) == ""
}

// Has reports whether keyword occurs as whole words. A trailing plural "s"
// or "es" on the last word is accepted.
func (t Text) Has(keyword string) bool {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return false
	}
	s := string(t)
	for _, form := range []string{" " + kw + " ", " " + kw + "s ", " " + kw + "es "} {
		if strings.Contains(s, form) {
			return true
		}
	}
	return false
}

// Any reports whether any keyword occurs.
func (t Text) Any(kws []string) bool {
	for _, k := range kws {
		if t.Has(k) {
			return true
		}
	}
	return false
}

// Count returns how many of kws occur.
func (t Text) Count(kws []string) int {
	n := 0
	for _, k := range kws {
		if t.Has(k) {
			n++
		}
	}
	return n
}

// Find returns the keywords that occur, in kws order.
func (t Text) Find(kws []string) []string {
	var out []string
	for _, k := range kws {
		if t.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"with": {}, "for": {}, "from": {}, "by": {}, "is": {}, "are": {}, "it": {}, "its": {},
	"this": {}, "that": {}, "into": {}, "over": {}, "under": {}, "very": {}, "while": {},
}

// Tokens returns the distinct content words of the text (stopwords and
// words shorter than three letters removed) in first-seen order.
func (t Text) Tokens() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.Fields(string(t)) {
		w = strings.Trim(w, "-:")
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
