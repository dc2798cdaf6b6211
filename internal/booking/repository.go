package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/scheduling/internal/schedule"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	ErrSlotConflict        = errors.New("slot overlaps an existing appointment")
	ErrOutsideAvailability = errors.New("slot is outside the provider's availability")
	ErrInvalidTransition   = errors.New("invalid appointment status transition")
	ErrInvalidInterval     = errors.New("appointment end must be after start")
	ErrMissingReason       = errors.New("a reason is required")
	ErrBookingInProgress   = errors.New("another booking for this provider is in progress, please retry")
)

// Repository contains all DB interactions needed by the booking ledger.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateIfFree atomically rejects the insert with ErrSlotConflict when a
	// pending or confirmed appointment for the same provider overlaps.
	CreateIfFree(ctx context.Context, appt *Appointment) error

	// UpdateStatus is a compare-and-swap: the row must currently be in one of
	// the `from` statuses or ErrAppointmentNotFound is returned.
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status, from ...Status) (*Appointment, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string, by ActorRole, from ...Status) (*Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID, by NoShowParty, from ...Status) (*Appointment, error)

	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// BookedIntervals feeds the slot availability calculator.
	BookedIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]schedule.Interval, error)

	// FindConfirmedStartingBetween feeds the reminder worker.
	FindConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)
}
