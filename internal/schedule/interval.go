package schedule

import "time"

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Touching endpoints do not count as overlap.
//
// Every overlap decision in the system (availability block validation,
// booking conflict checks, slot occupancy) goes through this predicate so
// the semantics cannot drift.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// OverlapsInterval reports whether i intersects other.
func (i Interval) OverlapsInterval(other Interval) bool {
	return Overlaps(i.Start, i.End, other.Start, other.End)
}
