package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bookwell/scheduling/internal/booking"
	"github.com/bookwell/scheduling/internal/reschedule"
)

func createAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}

		appt, err := svc.Create(r.Context(), booking.CreateParams{
			ProviderID: providerID,
			ClientID:   clientID,
			Start:      req.Start,
			End:        req.End,
			Reason:     req.Reason,
			Paid:       req.Paid,
			CostCents:  req.CostCents,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var (
			appts []booking.Appointment
			err   error
		)
		switch {
		case r.URL.Query().Get("provider_id") != "":
			providerID, parseErr := uuid.Parse(r.URL.Query().Get("provider_id"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByProvider(r.Context(), providerID, limit, offset)
		case r.URL.Query().Get("client_id") != "":
			clientID, parseErr := uuid.Parse(r.URL.Query().Get("client_id"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByClient(r.Context(), clientID, limit, offset)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "provider_id or client_id is required")
			return
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func confirmAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor := booking.ActorRole(req.ActorRole)
		if !actor.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_actor_role", "actor_role must be client or provider")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, actor, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// noShowHandler terminates the appointment and, when the miss warrants it,
// opens the automatic reschedule request in the same response.
func noShowHandler(bookings BookingService, reschedules RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req NoShowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		whoMissed := booking.NoShowParty(req.WhoMissed)
		if !whoMissed.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_who_missed", "who_missed must be client or provider")
			return
		}

		appt, autoReschedule, err := bookings.MarkNoShow(r.Context(), id, whoMissed, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := NoShowResponse{Appointment: toAppointmentResponse(appt)}

		if autoReschedule {
			cause := reschedule.ReasonClientNoShow
			if whoMissed == booking.NoShowByProvider {
				cause = reschedule.ReasonProviderNoShow
			}
			request, err := reschedules.RequestAutomatic(r.Context(), appt, cause)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			rr := toRescheduleResponse(request)
			resp.RescheduleRequest = &rr
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
