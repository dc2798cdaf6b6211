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

func createRescheduleHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ManualRescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		originalID, err := uuid.Parse(req.OriginalAppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "original_appointment_id must be a valid UUID")
			return
		}
		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		request, err := svc.RequestManual(r.Context(), reschedule.ManualRequestParams{
			OriginalAppointmentID: originalID,
			RequesterID:           requesterID,
			RequesterRole:         booking.ActorRole(req.RequesterRole),
			Reason:                reschedule.Reason(req.Reason),
			Description:           req.Description,
			Justification:         req.Justification,
			ProposedDates:         req.ProposedDates,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRescheduleResponse(request))
	}
}

func listReschedulesHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		actorID, err := uuid.Parse(q.Get("actor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}
		role := booking.ActorRole(q.Get("role"))
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_role", "role must be client or provider")
			return
		}

		filter := reschedule.ListFilter{ActorID: actorID, Role: role}
		if s := q.Get("status"); s != "" {
			status := reschedule.Status(s)
			filter.Status = &status
		}
		if s := q.Get("reason"); s != "" {
			reason := reschedule.Reason(s)
			filter.Reason = &reason
		}
		filter.Page, _ = strconv.Atoi(q.Get("page"))
		filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))
		if filter.Page < 1 {
			filter.Page = 1
		}
		if filter.PageSize < 1 || filter.PageSize > 100 {
			filter.PageSize = 20
		}

		requests, total, err := svc.List(r.Context(), filter)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := RescheduleListResponse{
			Requests: make([]RescheduleRequestResponse, 0, len(requests)),
			Total:    total,
			Page:     filter.Page,
			PageSize: filter.PageSize,
		}
		for i := range requests {
			resp.Requests = append(resp.Requests, toRescheduleResponse(&requests[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPendingReschedulesHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		actorID, err := uuid.Parse(q.Get("actor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}
		role := booking.ActorRole(q.Get("role"))
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_role", "role must be client or provider")
			return
		}

		requests, err := svc.ListPending(r.Context(), actorID, role)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]RescheduleRequestResponse, 0, len(requests))
		for i := range requests {
			resp = append(resp, toRescheduleResponse(&requests[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getRescheduleHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := rescheduleID(w, r)
		if !ok {
			return
		}

		request, err := svc.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRescheduleResponse(request))
	}
}

func approveRescheduleHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := rescheduleID(w, r)
		if !ok {
			return
		}

		var req ApproveRescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		approver := booking.ActorRole(req.ApproverRole)
		if !approver.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_approver_role", "approver_role must be client or provider")
			return
		}

		request, err := svc.Approve(r.Context(), id, approver, req.SelectedDate, req.CreateReplacement)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRescheduleResponse(request))
	}
}

func rejectRescheduleHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := rescheduleID(w, r)
		if !ok {
			return
		}

		var req RejectRescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		rejecter := booking.ActorRole(req.RejecterRole)
		if !rejecter.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_rejecter_role", "rejecter_role must be client or provider")
			return
		}

		request, err := svc.Reject(r.Context(), id, rejecter, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRescheduleResponse(request))
	}
}

func cancelRescheduleHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := rescheduleID(w, r)
		if !ok {
			return
		}

		var req CancelRescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor := booking.ActorRole(req.ActorRole)
		if !actor.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_actor_role", "actor_role must be client or provider")
			return
		}

		request, err := svc.Cancel(r.Context(), id, actor, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRescheduleResponse(request))
	}
}

func refundProcessedHandler(svc RescheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := rescheduleID(w, r)
		if !ok {
			return
		}

		request, err := svc.SetRefundProcessed(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRescheduleResponse(request))
	}
}

func rescheduleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
