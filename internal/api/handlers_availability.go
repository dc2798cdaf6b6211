package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bookwell/scheduling/internal/schedule"
)

func createBlockHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
			return
		}

		var req CreateBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		block, err := svc.CreateBlock(r.Context(), schedule.CreateBlockParams{
			ProviderID:          providerID,
			Weekday:             time.Weekday(req.Weekday),
			StartMinute:         req.StartMinute,
			EndMinute:           req.EndMinute,
			SlotDurationMinutes: req.SlotDurationMinutes,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBlockResponse(block))
	}
}

func listBlocksHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
			return
		}

		blocks, err := svc.ListBlocks(r.Context(), providerID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]BlockResponse, 0, len(blocks))
		for i := range blocks {
			resp = append(resp, toBlockResponse(&blocks[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateBlockHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blockID, err := uuid.Parse(chi.URLParam(r, "blockID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_block_id", "blockID must be a valid UUID")
			return
		}

		var req UpdateBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		block, err := svc.UpdateBlock(r.Context(), blockID, schedule.UpdateBlockParams{
			StartMinute:         req.StartMinute,
			EndMinute:           req.EndMinute,
			SlotDurationMinutes: req.SlotDurationMinutes,
			Active:              req.Active,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBlockResponse(block))
	}
}

func dayScheduleHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerID must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		ds, err := svc.DaySchedule(r.Context(), providerID, date)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toDayScheduleResponse(ds))
	}
}
