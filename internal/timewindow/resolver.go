// Package timewindow resolves named reporting ranges into aligned
// current/previous interval pairs for period-over-period comparison.
package timewindow

import "time"

type RangeKind string

const (
	ThisWeek   RangeKind = "this_week"
	LastWeek   RangeKind = "last_week"
	Last30Days RangeKind = "last_30_days"
	Custom     RangeKind = "custom"
)

// Window is a closed interval. Ends land on 23:59:59.999 of a calendar day so
// records created late on the boundary day are never excluded.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Pair holds the selected window and the equal-length window immediately
// preceding it.
type Pair struct {
	Current  Window `json:"current"`
	Previous Window `json:"previous"`
}

// CustomRange carries explicit bounds for the custom range kind.
// A nil Start or End makes the range malformed.
type CustomRange struct {
	Start *time.Time
	End   *time.Time
}

// ParseRangeKind maps a query-string value onto a known kind,
// defaulting to this_week.
func ParseRangeKind(s string) RangeKind {
	switch RangeKind(s) {
	case ThisWeek, LastWeek, Last30Days, Custom:
		return RangeKind(s)
	default:
		return ThisWeek
	}
}

// Resolve computes the window pair for a range kind relative to now.
// Malformed custom input (missing or inverted bounds) falls back to
// this_week rather than reporting an error.
func Resolve(kind RangeKind, custom *CustomRange, now time.Time) Pair {
	switch kind {
	case LastWeek:
		weekStart := StartOfWeek(now)
		curStart := weekStart.AddDate(0, 0, -7)
		return Pair{
			Current:  Window{Start: curStart, End: weekStart.Add(-time.Millisecond)},
			Previous: Window{Start: curStart.AddDate(0, 0, -7), End: curStart.Add(-time.Millisecond)},
		}
	case Last30Days:
		curStart := StartOfDay(now.AddDate(0, 0, -29))
		return Pair{
			Current:  Window{Start: curStart, End: now},
			Previous: Window{Start: curStart.AddDate(0, 0, -30), End: curStart.Add(-time.Millisecond)},
		}
	case Custom:
		if custom == nil || custom.Start == nil || custom.End == nil {
			return Resolve(ThisWeek, nil, now)
		}
		start := StartOfDay(*custom.Start)
		end := EndOfDay(*custom.End)
		if end.Before(start) {
			return Resolve(ThisWeek, nil, now)
		}
		days := int(end.Sub(start).Hours()/24) + 1
		return Pair{
			Current:  Window{Start: start, End: end},
			Previous: Window{Start: start.AddDate(0, 0, -days), End: start.Add(-time.Millisecond)},
		}
	default:
		weekStart := StartOfWeek(now)
		return Pair{
			Current:  Window{Start: weekStart, End: now},
			Previous: Window{Start: weekStart.AddDate(0, 0, -7), End: weekStart.Add(-time.Millisecond)},
		}
	}
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// StartOfWeek returns midnight of the most recent Sunday on or before t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}
