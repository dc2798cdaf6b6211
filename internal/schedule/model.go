package schedule

import (
	"time"

	"github.com/google/uuid"
)

// WeeklyAvailabilityBlock is one recurring window in a provider's weekly
// template. Times are minutes from midnight in the provider's timezone;
// slots are generated by striding SlotDurationMinutes from StartMinute.
// Blocks are deactivated, never deleted.
type WeeklyAvailabilityBlock struct {
	ID                  uuid.UUID
	ProviderID          uuid.UUID
	Weekday             time.Weekday // 0 = Sunday .. 6 = Saturday
	StartMinute         int
	EndMinute           int
	SlotDurationMinutes int
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Window projects the block onto a concrete date.
func (b WeeklyAvailabilityBlock) Window(date time.Time) (start, end time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	start = day.Add(time.Duration(b.StartMinute) * time.Minute)
	end = day.Add(time.Duration(b.EndMinute) * time.Minute)
	return start, end
}

// Slot is a single bookable interval derived from the weekly template.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// UnavailableReason explains an empty day schedule.
type UnavailableReason string

const (
	UnavailableNone       UnavailableReason = ""
	UnavailableNoTemplate UnavailableReason = "no_availability_configured"
	UnavailablePastDate   UnavailableReason = "date_in_past"
)

// DaySchedule is the computed slot sequence for one provider and date.
type DaySchedule struct {
	ProviderID     uuid.UUID
	Date           time.Time
	Slots          []Slot
	TotalSlots     int
	AvailableSlots int
	OccupiedSlots  int
	Unavailable    UnavailableReason
}
