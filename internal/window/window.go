// Package window merges access-validity time ranges.
//
// A merge never narrows a window: the result starts at the earliest start and
// ends at the latest end of its inputs. All times are kept at second precision
// with a fixed-offset zone, which is what the downstream API accepts.
package window

import (
	"fmt"
	"time"
)

// WireLayout is the timestamp layout used on the downstream wire.
const WireLayout = "2006-01-02T15:04:05-07:00"

const dateLayout = "2006-01-02"

// Window is a closed [From, To] validity range.
type Window struct {
	From time.Time
	To   time.Time
}

// New builds a window truncated to whole seconds.
func New(from, to time.Time) Window {
	return Window{From: from.Truncate(time.Second), To: to.Truncate(time.Second)}
}

// Valid reports whether From <= To.
func (w Window) Valid() bool {
	return !w.From.After(w.To)
}

// Normalize swaps an inverted window. The bool reports whether a swap happened.
func (w Window) Normalize() (Window, bool) {
	if w.Valid() {
		return w, false
	}
	return Window{From: w.To, To: w.From}, true
}

// Contains reports whether other lies entirely within w.
func (w Window) Contains(other Window) bool {
	return !other.From.Before(w.From) && !other.To.After(w.To)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", Format(w.From), Format(w.To))
}

// Merge widens existing by incoming. When existing is nil, incoming is returned
// unchanged (after correction). An inverted incoming window is swapped first;
// corrected reports that swap so callers can log a warning.
func Merge(existing *Window, incoming Window) (merged Window, corrected bool) {
	incoming, corrected = incoming.Normalize()
	if existing == nil {
		return incoming, corrected
	}

	base, _ := existing.Normalize()
	merged = base
	if incoming.From.Before(merged.From) {
		merged.From = incoming.From
	}
	if incoming.To.After(merged.To) {
		merged.To = incoming.To
	}
	return merged, corrected
}

// Parse reads an RFC 3339 timestamp or a bare YYYY-MM-DD date. Dates resolve to
// the start of the day, or to 23:59:59 when endOfDay is set, in zone.
// Sub-second precision is dropped.
func Parse(value string, endOfDay bool, zone *time.Location) (time.Time, error) {
	if zone == nil {
		zone = time.UTC
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.Truncate(time.Second), nil
	}

	d, err := time.ParseInLocation(dateLayout, value, zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse window time %q: expected RFC 3339 or YYYY-MM-DD", value)
	}
	if endOfDay {
		d = d.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	return d, nil
}

// Format renders t in the downstream wire layout.
func Format(t time.Time) string {
	return t.Format(WireLayout)
}
