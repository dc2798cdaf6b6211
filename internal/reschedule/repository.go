package reschedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/scheduling/internal/booking"
)

var (
	ErrRequestNotFound      = errors.New("reschedule request not found")
	ErrInvalidTransition    = errors.New("invalid reschedule request transition")
	ErrInvalidSelection     = errors.New("selected date is not among the proposed dates")
	ErrMissingReason        = errors.New("a reason is required")
	ErrInvalidProposedDates = errors.New("between 1 and 3 distinct future dates are required")
	ErrInvalidRequest       = errors.New("invalid reschedule request input")
	ErrOriginalNotActive    = errors.New("original appointment is not pending or confirmed")
	ErrRefundNotRequired    = errors.New("request carries no refund obligation")
)

// ListFilter scopes a request listing to one actor and optional state and
// reason filters. Page is 1-based.
type ListFilter struct {
	ActorID  uuid.UUID
	Role     booking.ActorRole
	Status   *Status
	Reason   *Reason
	Page     int
	PageSize int
}

// ApproveParams carries everything the atomic approval needs: the request
// CAS, the original's cancellation, and the optional replacement insert all
// commit or roll back together.
type ApproveParams struct {
	RequestID             uuid.UUID
	OriginalAppointmentID uuid.UUID
	SelectedDate          time.Time
	ApprovedAt            time.Time
	CancelActor           booking.ActorRole
	CancelReason          string
	Replacement           *booking.Appointment // nil when no replacement is wanted
}

// Repository contains all DB interactions needed by the reschedule workflow.
type Repository interface {
	Create(ctx context.Context, req *RescheduleRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error)
	List(ctx context.Context, f ListFilter) ([]RescheduleRequest, int, error)

	// FindOpenByOriginal returns the newest pending or approved request
	// filed against the appointment, or ErrRequestNotFound.
	FindOpenByOriginal(ctx context.Context, appointmentID uuid.UUID) (*RescheduleRequest, error)

	// Approve runs the whole approval atomically and returns the updated
	// request. ErrInvalidTransition is returned when a concurrent transition
	// won the race on either the request or the original appointment.
	Approve(ctx context.Context, p ApproveParams) (*RescheduleRequest, error)

	MarkRejected(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*RescheduleRequest, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error)
	SetRefundProcessed(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error)
}
