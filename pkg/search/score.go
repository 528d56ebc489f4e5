package search

import (
	"errors"
	"fmt"

	"github.com/coregx/ahocorasick"
)

// MatchMode controls how many keywords must hit for a record to qualify.
type MatchMode string

const (
	// MatchAny accepts a record when at least one keyword matches.
	MatchAny MatchMode = "any"
	// MatchAll accepts a record only when every keyword matches.
	MatchAll MatchMode = "all"
)

// ErrNoKeywords is returned when a scorer is built without any usable keyword.
var ErrNoKeywords = errors.New("no usable keywords")

// ParseMatchMode validates a mode string. Empty defaults to MatchAny.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case "":
		return MatchAny, nil
	case MatchAny, MatchAll:
		return MatchMode(s), nil
	default:
		return "", fmt.Errorf("invalid match mode %q", s)
	}
}

// Weights maps a field name to its per-occurrence score contribution.
// These tables are the documented ranking contract; changing a weight
// changes result ordering for every caller.
type Weights map[string]float64

var (
	// AttributeWeights ranks attribute rows: key hits above value hits.
	AttributeWeights = Weights{"key": 2, "value": 1}
	// EntityWeights ranks entities: name hits above attribute-blob hits.
	EntityWeights = Weights{"name": 3, "attributes": 1}
	// EventWeights ranks events: description hits above metadata hits.
	EventWeights = Weights{"description": 2, "metadata": 1}
)

// Scorer scores text fields against a fixed keyword set.
// Build one per search; it is cheap and not safe for concurrent reuse
// across goroutines that mutate fields maps in place.
type Scorer struct {
	keywords []string // original keywords, input order
	patterns []string // normalized unique patterns
	owners   [][]int  // pattern index -> indexes into keywords
	weights  Weights
	ac       *ahocorasick.Automaton
}

// Score is the outcome of matching one record's fields.
type Score struct {
	// Relevance is the weighted occurrence total across all scored fields.
	Relevance float64
	// Matched lists the original keywords that hit at least one field,
	// in input order.
	Matched []string
	// Fields reports, per scored field, whether any keyword hit it.
	Fields map[string]bool
}

// NewScorer builds a scorer from keywords and a weight table.
// Keywords are matched case-insensitively as substrings; duplicates after
// normalization share one automaton pattern.
func NewScorer(keywords []string, weights Weights) (*Scorer, error) {
	s := &Scorer{keywords: keywords, weights: weights}

	index := make(map[string]int)
	for i, kw := range keywords {
		norm := Normalize(kw)
		if norm == "" {
			continue
		}
		if at, ok := index[norm]; ok {
			s.owners[at] = append(s.owners[at], i)
			continue
		}
		index[norm] = len(s.patterns)
		s.patterns = append(s.patterns, norm)
		s.owners = append(s.owners, []int{i})
	}
	if len(s.patterns) == 0 {
		return nil, ErrNoKeywords
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(s.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build keyword automaton: %w", err)
	}
	s.ac = ac

	return s, nil
}

// Keywords returns the original keyword list.
func (s *Scorer) Keywords() []string {
	return s.keywords
}

// Score scans each field once and accumulates weighted occurrence counts.
// Fields without an entry in the weight table are ignored.
func (s *Scorer) Score(fields map[string]string) Score {
	sc := Score{Fields: make(map[string]bool, len(fields))}
	hit := make([]bool, len(s.keywords))

	for name, text := range fields {
		weight, ok := s.weights[name]
		if !ok {
			continue
		}
		sc.Fields[name] = false
		if text == "" {
			continue
		}

		counts := make([]int, len(s.patterns))
		for _, m := range s.ac.FindAllOverlapping([]byte(Normalize(text))) {
			counts[m.PatternID]++
		}
		for pat, n := range counts {
			if n == 0 {
				continue
			}
			sc.Relevance += weight * float64(n)
			sc.Fields[name] = true
			for _, kw := range s.owners[pat] {
				hit[kw] = true
			}
		}
	}

	for i, ok := range hit {
		if ok {
			sc.Matched = append(sc.Matched, s.keywords[i])
		}
	}
	return sc
}

// Accept reports whether a score satisfies the match mode for this
// scorer's keyword set.
func (s *Scorer) Accept(sc Score, mode MatchMode) bool {
	if mode == MatchAll {
		return len(sc.Matched) == len(s.keywords)
	}
	return len(sc.Matched) > 0
}
