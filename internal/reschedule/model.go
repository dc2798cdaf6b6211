package reschedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/scheduling/internal/booking"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:  nil,
	StatusRejected:  nil,
	StatusCancelled: nil,
}

// CanTransition reports whether from -> to is a legal request transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Reason classifies why a reschedule was requested.
type Reason string

const (
	ReasonClientNoShow     Reason = "client_no_show"
	ReasonProviderNoShow   Reason = "provider_no_show"
	ReasonMedicalEmergency Reason = "medical_emergency"
	ReasonClientRequested  Reason = "client_requested"
	ReasonSchedulingError  Reason = "scheduling_error"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonClientNoShow, ReasonProviderNoShow, ReasonMedicalEmergency,
		ReasonClientRequested, ReasonSchedulingError:
		return true
	}
	return false
}

// MaxProposedDates bounds the proposed-dates set on any request.
const MaxProposedDates = 3

// RescheduleRequest proposes moving one disrupted appointment. It references
// the original and (after approval) the replacement appointment by id only;
// neither aggregate embeds the other.
type RescheduleRequest struct {
	ID                       uuid.UUID
	OriginalAppointmentID    uuid.UUID
	RequesterID              uuid.UUID
	RequesterRole            booking.ActorRole
	Reason                   Reason
	Description              string
	Justification            string
	ProposedDates            []time.Time
	SelectedDate             *time.Time
	Status                   Status
	ReplacementAppointmentID *uuid.UUID
	RefundRequired           bool
	RefundProcessed          bool
	RejectionReason          *string
	ApprovedAt               *time.Time
	RejectedAt               *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Proposed reports whether t is a member of the proposed-dates set.
func (r *RescheduleRequest) Proposed(t time.Time) bool {
	for _, d := range r.ProposedDates {
		if d.Equal(t) {
			return true
		}
	}
	return false
}

// Completed is a read-only projection: an approved request whose
// replacement appointment has itself completed. It is derived, never a
// transition target.
func (r *RescheduleRequest) Completed(replacement *booking.Appointment) bool {
	return r.Status == StatusApproved &&
		replacement != nil &&
		r.ReplacementAppointmentID != nil &&
		*r.ReplacementAppointmentID == replacement.ID &&
		replacement.Status == booking.StatusCompleted
}
