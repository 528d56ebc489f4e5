// Package timerange resolves symbolic or partial date specs into concrete
// half-open instant intervals.
package timerange

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedFormat is returned for specs that match none of the
// recognized forms.
var ErrUnsupportedFormat = errors.New("unsupported time range format")

// Range is a half-open interval: Start inclusive, End exclusive.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Resolve translates a spec into a concrete range relative to now.
//
// Recognized forms:
//
//	last_week   now - 7 days  .. now
//	last_month  now - 30 days .. now
//	last_year   now - 365 days .. now
//	YYYY-MM     that calendar month (UTC)
//	YYYY        that calendar year (UTC)
//
// The relative forms are fixed-duration offsets, not calendar-aware:
// last_month is exactly 30*24h regardless of month length.
func Resolve(spec string, now time.Time) (Range, error) {
	switch spec {
	case "last_week":
		return Range{Start: now.Add(-7 * 24 * time.Hour), End: now}, nil
	case "last_month":
		return Range{Start: now.Add(-30 * 24 * time.Hour), End: now}, nil
	case "last_year":
		return Range{Start: now.Add(-365 * 24 * time.Hour), End: now}, nil
	}

	if start, err := time.Parse("2006-01", spec); err == nil {
		return Range{Start: start, End: start.AddDate(0, 1, 0)}, nil
	}
	if start, err := time.Parse("2006", spec); err == nil {
		return Range{Start: start, End: start.AddDate(1, 0, 0)}, nil
	}

	return Range{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, spec)
}
