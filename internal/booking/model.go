package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// transitions is the exhaustive state machine for appointments. A status
// missing from a target list is unreachable from that source, full stop.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: nil,
	StatusCancelled: nil,
	StatusNoShow:    nil,
}

// CanTransition reports whether from -> to is a legal appointment transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// ActorRole identifies who performs an operation. It is validated once at
// the API boundary and passed through explicitly.
type ActorRole string

const (
	RoleClient   ActorRole = "client"
	RoleProvider ActorRole = "provider"
)

func (r ActorRole) Valid() bool {
	return r == RoleClient || r == RoleProvider
}

// NoShowParty records which side missed the appointment.
type NoShowParty string

const (
	NoShowByClient   NoShowParty = "client"
	NoShowByProvider NoShowParty = "provider"
)

func (p NoShowParty) Valid() bool {
	return p == NoShowByClient || p == NoShowByProvider
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Client struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is one pending or confirmed occupation of a slot, or its
// terminal record. Rows are never deleted, only transitioned.
type Appointment struct {
	ID                 uuid.UUID
	ProviderID         uuid.UUID
	ClientID           uuid.UUID
	Start              time.Time
	End                time.Time
	Status             Status
	Paid               bool
	CostCents          int64
	Reason             string
	CancellationReason *string
	CancelledBy        *ActorRole
	NoShowBy           *NoShowParty
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Duration is the booked length of the appointment.
func (a *Appointment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}
