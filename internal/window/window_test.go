package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cairo = time.FixedZone("+02:00", 2*60*60)

func at(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}

func TestMerge_NilExistingReturnsIncoming(t *testing.T) {
	in := Window{From: at(t, "2025-01-01T00:00:00+02:00"), To: at(t, "2025-12-31T23:59:59+02:00")}

	got, corrected := Merge(nil, in)

	assert.False(t, corrected)
	assert.True(t, got.From.Equal(in.From))
	assert.True(t, got.To.Equal(in.To))
}

func TestMerge_Widens(t *testing.T) {
	existing := Window{From: at(t, "2025-03-01T00:00:00+02:00"), To: at(t, "2025-06-30T23:59:59+02:00")}

	tests := []struct {
		name     string
		incoming Window
		wantFrom string
		wantTo   string
	}{
		{
			name:     "earlier start",
			incoming: Window{From: at(t, "2025-01-01T00:00:00+02:00"), To: at(t, "2025-04-01T00:00:00+02:00")},
			wantFrom: "2025-01-01T00:00:00+02:00",
			wantTo:   "2025-06-30T23:59:59+02:00",
		},
		{
			name:     "later end",
			incoming: Window{From: at(t, "2025-04-01T00:00:00+02:00"), To: at(t, "2025-12-31T23:59:59+02:00")},
			wantFrom: "2025-03-01T00:00:00+02:00",
			wantTo:   "2025-12-31T23:59:59+02:00",
		},
		{
			name:     "contained window never narrows",
			incoming: Window{From: at(t, "2025-04-01T00:00:00+02:00"), To: at(t, "2025-05-01T00:00:00+02:00")},
			wantFrom: "2025-03-01T00:00:00+02:00",
			wantTo:   "2025-06-30T23:59:59+02:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, corrected := Merge(&existing, tt.incoming)
			assert.False(t, corrected)
			assert.True(t, got.From.Equal(at(t, tt.wantFrom)), "from = %s", got.From)
			assert.True(t, got.To.Equal(at(t, tt.wantTo)), "to = %s", got.To)
		})
	}
}

func TestMerge_InvertedIncomingIsSwapped(t *testing.T) {
	in := Window{From: at(t, "2025-12-31T23:59:59+02:00"), To: at(t, "2025-01-01T00:00:00+02:00")}

	got, corrected := Merge(nil, in)

	assert.True(t, corrected)
	assert.True(t, got.Valid())
	assert.True(t, got.From.Equal(in.To))
	assert.True(t, got.To.Equal(in.From))
}

func TestMerge_Monotonic(t *testing.T) {
	base := at(t, "2025-06-01T00:00:00+02:00")
	offsets := [][2]int{{0, 10}, {-5, 3}, {2, 40}, {-30, -20}, {7, 8}, {20, 5}, {-1, 100}}

	var current *Window
	for i, off := range offsets {
		in := Window{
			From: base.AddDate(0, 0, off[0]),
			To:   base.AddDate(0, 0, off[1]),
		}
		merged, _ := Merge(current, in)
		require.True(t, merged.Valid(), "step %d produced inverted window", i)
		if current != nil {
			assert.False(t, merged.From.After(current.From), "step %d: from increased", i)
			assert.False(t, merged.To.Before(current.To), "step %d: to decreased", i)
			assert.True(t, merged.Contains(*current), "step %d: merge narrowed the window", i)
		}
		current = &merged
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		endOfDay bool
		want     string
	}{
		{"rfc3339", "2025-01-01T00:00:00+02:00", false, "2025-01-01T00:00:00+02:00"},
		{"sub-second dropped", "2025-01-01T10:20:30.750+02:00", false, "2025-01-01T10:20:30+02:00"},
		{"date start of day", "2025-01-01", false, "2025-01-01T00:00:00+02:00"},
		{"date end of day", "2035-12-31", true, "2035-12-31T23:59:59+02:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.value, tt.endOfDay, cairo)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(got))
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("31/12/2025", false, cairo)
	assert.Error(t, err)
}
