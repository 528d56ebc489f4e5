package search

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var english = stopwords.MustGet("en")

// ExtractKeywords turns free text into a keyword list suitable for the
// scored search paths: normalized, split on non-alphanumeric runs, English
// stop words and single characters dropped, order-preserving dedupe.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, w := range fields {
		if len(w) < 2 || english.Contains(w) {
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
