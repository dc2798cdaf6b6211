package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// BuildDaySchedule derives the bookable slots for one provider on one date
// from the weekly template, net of already booked time. booked must hold the
// provider's pending and confirmed appointment intervals for that date.
//
// A date before now's day yields an empty schedule tagged date_in_past; a
// weekday with no active blocks yields no_availability_configured. Neither is
// an error.
func BuildDaySchedule(providerID uuid.UUID, date time.Time, blocks []WeeklyAvailabilityBlock, booked []Interval, now time.Time) DaySchedule {
	ds := DaySchedule{
		ProviderID: providerID,
		Date:       startOfDay(date),
	}

	if ds.Date.Before(startOfDay(now)) {
		ds.Unavailable = UnavailablePastDate
		return ds
	}

	matching := make([]WeeklyAvailabilityBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Active && b.Weekday == date.Weekday() {
			matching = append(matching, b)
		}
	}
	if len(matching) == 0 {
		ds.Unavailable = UnavailableNoTemplate
		return ds
	}

	// Overlapping active blocks are rejected at write time. If any slipped in
	// through direct data edits, the newest block wins: candidates from older
	// blocks that overlap an already emitted slot are dropped.
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].CreatedAt.After(matching[j].CreatedAt)
	})

	var slots []Slot
	for _, b := range matching {
		for _, candidate := range stride(b, ds.Date) {
			if overlapsAny(candidate, slots) {
				continue
			}
			occupied := false
			for _, bk := range booked {
				if candidate.OverlapsInterval(bk) {
					occupied = true
					break
				}
			}
			slots = append(slots, Slot{
				Start:     candidate.Start,
				End:       candidate.End,
				Available: !occupied,
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})

	ds.Slots = slots
	ds.TotalSlots = len(slots)
	for _, s := range slots {
		if s.Available {
			ds.AvailableSlots++
		} else {
			ds.OccupiedSlots++
		}
	}

	return ds
}

// AvailableSlotsBetween walks day by day from `from` until `to` and collects
// available slots starting strictly after `from`, nearest first, up to max.
// Used for automatic reschedule proposals.
func AvailableSlotsBetween(providerID uuid.UUID, blocks []WeeklyAvailabilityBlock, booked []Interval, from, to time.Time, max int) []Slot {
	if max <= 0 {
		return nil
	}

	var out []Slot
	for day := startOfDay(from); !day.After(to); day = day.AddDate(0, 0, 1) {
		ds := BuildDaySchedule(providerID, day, blocks, booked, from)
		for _, s := range ds.Slots {
			if !s.Available || !s.Start.After(from) || s.Start.After(to) {
				continue
			}
			out = append(out, s)
			if len(out) == max {
				return out
			}
		}
	}
	return out
}

// SlotMatches reports whether [start, end) is exactly one of the candidate
// slots the template generates for that date. Booking creation uses it to
// reject requests outside configured availability.
func SlotMatches(blocks []WeeklyAvailabilityBlock, start, end time.Time) bool {
	for _, b := range blocks {
		if !b.Active || b.Weekday != start.Weekday() {
			continue
		}
		for _, candidate := range stride(b, startOfDay(start)) {
			if candidate.Start.Equal(start) && candidate.End.Equal(end) {
				return true
			}
		}
	}
	return false
}

// stride emits the candidate slot intervals of one block on one day,
// dropping a trailing partial slot shorter than the slot duration.
func stride(b WeeklyAvailabilityBlock, day time.Time) []Interval {
	if b.SlotDurationMinutes <= 0 || b.StartMinute >= b.EndMinute {
		return nil
	}

	blockStart, blockEnd := b.Window(day)
	step := time.Duration(b.SlotDurationMinutes) * time.Minute

	var out []Interval
	for cur := blockStart; !cur.Add(step).After(blockEnd); cur = cur.Add(step) {
		out = append(out, Interval{Start: cur, End: cur.Add(step)})
	}
	return out
}

func overlapsAny(candidate Interval, slots []Slot) bool {
	for _, s := range slots {
		if Overlaps(candidate.Start, candidate.End, s.Start, s.End) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
