package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_RelativeRanges(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		spec string
		days int
	}{
		{"last_week", 7},
		{"last_month", 30},
		{"last_year", 365},
	}
	for _, tt := range tests {
		r, err := Resolve(tt.spec, now)
		require.NoError(t, err, tt.spec)
		assert.Equal(t, now, r.End, tt.spec)
		assert.Equal(t, now.Add(-time.Duration(tt.days)*24*time.Hour), r.Start, tt.spec)
	}
}

func TestResolve_Month(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	r, err := Resolve("2024-02", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), r.Start)
	// Half-open: the leap day is in, March 1st is out.
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), r.End)
	assert.True(t, r.Contains(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)))
	assert.False(t, r.Contains(r.End))
}

func TestResolve_Year(t *testing.T) {
	now := time.Now()

	r, err := Resolve("2025", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), r.End)
}

func TestResolve_Unsupported(t *testing.T) {
	for _, spec := range []string{"", "yesterday", "2024-13", "02-2024", "next_week"} {
		_, err := Resolve(spec, time.Now())
		assert.ErrorIs(t, err, ErrUnsupportedFormat, spec)
	}
}

func TestContains(t *testing.T) {
	r := Range{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.True(t, r.Contains(r.Start))
	assert.True(t, r.Contains(r.Start.Add(time.Hour)))
	assert.False(t, r.Contains(r.End))
	assert.False(t, r.Contains(r.Start.Add(-time.Second)))
}
