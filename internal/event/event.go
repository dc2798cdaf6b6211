package event

import (
	"time"

	"github.com/google/uuid"
)

// Domain event types drained by the external notification dispatcher.
const (
	TypeBookingCreated      = "BOOKING_CREATED"
	TypeBookingConfirmed    = "BOOKING_CONFIRMED"
	TypeBookingCompleted    = "BOOKING_COMPLETED"
	TypeBookingCancelled    = "BOOKING_CANCELLED"
	TypeBookingNoShow       = "BOOKING_NO_SHOW"
	TypeRescheduleRequested = "RESCHEDULE_REQUESTED"
	TypeRescheduleApproved  = "RESCHEDULE_APPROVED"
	TypeRescheduleRejected  = "RESCHEDULE_REJECTED"
	TypeRescheduleCancelled = "RESCHEDULE_CANCELLED"
	TypeReminderDue         = "REMINDER_DUE"
)

type Record struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	RequestID     *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
