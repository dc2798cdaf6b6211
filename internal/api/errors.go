package api

import (
	"errors"
	"net/http"

	"github.com/bookwell/scheduling/internal/booking"
	redisclient "github.com/bookwell/scheduling/internal/redis"
	"github.com/bookwell/scheduling/internal/reschedule"
	"github.com/bookwell/scheduling/internal/schedule"
)

// writeDomainError maps the domain error taxonomy onto HTTP. Everything in
// the taxonomy is recoverable by the caller; anything unmatched is an
// infrastructure failure and surfaces as a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrProviderNotFound),
		errors.Is(err, booking.ErrClientNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound),
		errors.Is(err, reschedule.ErrRequestNotFound),
		errors.Is(err, schedule.ErrBlockNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, reschedule.ErrInvalidTransition),
		errors.Is(err, reschedule.ErrOriginalNotActive):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())

	case errors.Is(err, booking.ErrSlotConflict),
		errors.Is(err, schedule.ErrBlockConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())

	case errors.Is(err, booking.ErrOutsideAvailability):
		writeError(w, http.StatusConflict, "outside_availability", err.Error())

	case errors.Is(err, booking.ErrBookingInProgress),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "booking_in_progress", "another booking for this provider is in progress, please retry shortly")

	case errors.Is(err, reschedule.ErrInvalidSelection):
		writeError(w, http.StatusUnprocessableEntity, "invalid_selection", err.Error())

	case errors.Is(err, booking.ErrMissingReason),
		errors.Is(err, reschedule.ErrMissingReason):
		writeError(w, http.StatusUnprocessableEntity, "missing_reason", err.Error())

	case errors.Is(err, booking.ErrInvalidInterval),
		errors.Is(err, reschedule.ErrInvalidProposedDates),
		errors.Is(err, reschedule.ErrInvalidRequest),
		errors.Is(err, reschedule.ErrRefundNotRequired),
		errors.Is(err, schedule.ErrInvalidBlock):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
