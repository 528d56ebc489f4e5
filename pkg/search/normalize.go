// Package search implements keyword relevance scoring for memory retrieval.
// Scoring is a pure function over text fields: an Aho-Corasick automaton is
// built from the normalized keywords, each field is scanned once, and every
// occurrence contributes the field's weight to the total score.
package search

import (
	"strings"
	"unicode"
)

// Normalize folds text for matching: lowercase, straighten curly
// apostrophes and dashes, collapse whitespace runs into single spaces.
// Unlike entity-name canonicalization, punctuation is preserved so that
// values like email addresses or license plates stay matchable as
// substrings.
func Normalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)

		switch c {
		case '’', '‘':
			c = '\''
		case '–', '—':
			c = '-'
		}

		if unicode.IsSpace(c) {
			if !lastWasSpace {
				out.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		out.WriteRune(c)
		lastWasSpace = false
	}

	return strings.TrimRight(out.String(), " ")
}
