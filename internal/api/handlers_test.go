package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookwell/scheduling/internal/booking"
	"github.com/bookwell/scheduling/internal/reschedule"
	"github.com/bookwell/scheduling/internal/schedule"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type stubScheduleService struct {
	block    *schedule.WeeklyAvailabilityBlock
	blocks   []schedule.WeeklyAvailabilityBlock
	schedule schedule.DaySchedule
	err      error
}

func (s *stubScheduleService) CreateBlock(_ context.Context, _ schedule.CreateBlockParams) (*schedule.WeeklyAvailabilityBlock, error) {
	return s.block, s.err
}

func (s *stubScheduleService) UpdateBlock(_ context.Context, _ uuid.UUID, _ schedule.UpdateBlockParams) (*schedule.WeeklyAvailabilityBlock, error) {
	return s.block, s.err
}

func (s *stubScheduleService) ListBlocks(_ context.Context, _ uuid.UUID) ([]schedule.WeeklyAvailabilityBlock, error) {
	return s.blocks, s.err
}

func (s *stubScheduleService) DaySchedule(_ context.Context, _ uuid.UUID, _ time.Time) (schedule.DaySchedule, error) {
	return s.schedule, s.err
}

type stubBookingService struct {
	appt          *booking.Appointment
	appts         []booking.Appointment
	autoResched   bool
	err           error
	lastNoShowArg booking.NoShowParty
}

func (s *stubBookingService) Create(_ context.Context, _ booking.CreateParams) (*booking.Appointment, error) {
	return s.appt, s.err
}

func (s *stubBookingService) Get(_ context.Context, _ uuid.UUID) (*booking.Appointment, error) {
	return s.appt, s.err
}

func (s *stubBookingService) ListByProvider(_ context.Context, _ uuid.UUID, _, _ int) ([]booking.Appointment, error) {
	return s.appts, s.err
}

func (s *stubBookingService) ListByClient(_ context.Context, _ uuid.UUID, _, _ int) ([]booking.Appointment, error) {
	return s.appts, s.err
}

func (s *stubBookingService) Confirm(_ context.Context, _ uuid.UUID) (*booking.Appointment, error) {
	return s.appt, s.err
}

func (s *stubBookingService) Complete(_ context.Context, _ uuid.UUID) (*booking.Appointment, error) {
	return s.appt, s.err
}

func (s *stubBookingService) Cancel(_ context.Context, _ uuid.UUID, _ booking.ActorRole, _ string) (*booking.Appointment, error) {
	return s.appt, s.err
}

func (s *stubBookingService) MarkNoShow(_ context.Context, _ uuid.UUID, whoMissed booking.NoShowParty, _ string) (*booking.Appointment, bool, error) {
	s.lastNoShowArg = whoMissed
	return s.appt, s.autoResched, s.err
}

type stubRescheduleService struct {
	req       *reschedule.RescheduleRequest
	reqs      []reschedule.RescheduleRequest
	total     int
	err       error
	lastCause reschedule.Reason
}

func (s *stubRescheduleService) RequestManual(_ context.Context, _ reschedule.ManualRequestParams) (*reschedule.RescheduleRequest, error) {
	return s.req, s.err
}

func (s *stubRescheduleService) RequestAutomatic(_ context.Context, _ *booking.Appointment, cause reschedule.Reason) (*reschedule.RescheduleRequest, error) {
	s.lastCause = cause
	return s.req, s.err
}

func (s *stubRescheduleService) Approve(_ context.Context, _ uuid.UUID, _ booking.ActorRole, _ time.Time, _ bool) (*reschedule.RescheduleRequest, error) {
	return s.req, s.err
}

func (s *stubRescheduleService) Reject(_ context.Context, _ uuid.UUID, _ booking.ActorRole, _ string) (*reschedule.RescheduleRequest, error) {
	return s.req, s.err
}

func (s *stubRescheduleService) Cancel(_ context.Context, _ uuid.UUID, _ booking.ActorRole, _ string) (*reschedule.RescheduleRequest, error) {
	return s.req, s.err
}

func (s *stubRescheduleService) SetRefundProcessed(_ context.Context, _ uuid.UUID) (*reschedule.RescheduleRequest, error) {
	return s.req, s.err
}

func (s *stubRescheduleService) Get(_ context.Context, _ uuid.UUID) (*reschedule.RescheduleRequest, error) {
	return s.req, s.err
}

func (s *stubRescheduleService) List(_ context.Context, _ reschedule.ListFilter) ([]reschedule.RescheduleRequest, int, error) {
	return s.reqs, s.total, s.err
}

func (s *stubRescheduleService) ListPending(_ context.Context, _ uuid.UUID, _ booking.ActorRole) ([]reschedule.RescheduleRequest, error) {
	return s.reqs, s.err
}

func sampleAppointment() *booking.Appointment {
	return &booking.Appointment{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		ClientID:   uuid.New(),
		Start:      testStart,
		End:        testStart.Add(30 * time.Minute),
		Status:     booking.StatusPending,
		Reason:     "checkup",
	}
}

func sampleRequest() *reschedule.RescheduleRequest {
	return &reschedule.RescheduleRequest{
		ID:                    uuid.New(),
		OriginalAppointmentID: uuid.New(),
		RequesterID:           uuid.New(),
		RequesterRole:         booking.RoleClient,
		Reason:                reschedule.ReasonClientRequested,
		ProposedDates:         []time.Time{testStart.AddDate(0, 0, 7)},
		Status:                reschedule.StatusPending,
	}
}

func testRouter(sched ScheduleService, books BookingService, resched RescheduleService) http.Handler {
	return NewRouter(RouterConfig{
		Schedule:   sched,
		Bookings:   books,
		Reschedule: resched,
		Logger:     zap.NewNop(),
	})
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAppointmentHandler(t *testing.T) {
	t.Run("returns 201 with the created appointment", func(t *testing.T) {
		appt := sampleAppointment()
		h := testRouter(&stubScheduleService{}, &stubBookingService{appt: appt}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodPost, "/appointments", map[string]any{
			"provider_id": appt.ProviderID.String(),
			"client_id":   appt.ClientID.String(),
			"start":       appt.Start,
			"end":         appt.End,
			"reason":      "checkup",
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp AppointmentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, appt.ID, resp.ID)
		assert.Equal(t, "pending", resp.Status)
	})

	t.Run("maps slot conflict to 409", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{err: booking.ErrSlotConflict}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodPost, "/appointments", map[string]any{
			"provider_id": uuid.New().String(),
			"client_id":   uuid.New().String(),
			"start":       testStart,
			"end":         testStart.Add(30 * time.Minute),
		})

		require.Equal(t, http.StatusConflict, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "slot_conflict", resp.Error)
	})

	t.Run("maps outside availability to 409", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{err: booking.ErrOutsideAvailability}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodPost, "/appointments", map[string]any{
			"provider_id": uuid.New().String(),
			"client_id":   uuid.New().String(),
			"start":       testStart,
			"end":         testStart.Add(30 * time.Minute),
		})

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rejects a malformed provider id", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodPost, "/appointments", map[string]any{
			"provider_id": "not-a-uuid",
			"client_id":   uuid.New().String(),
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetAppointmentHandler(t *testing.T) {
	t.Run("unknown id maps to 404", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{err: booking.ErrAppointmentNotFound}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodGet, "/appointments/"+uuid.New().String(), nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "not_found", resp.Error)
	})

	t.Run("invalid transition maps to 409", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{err: booking.ErrInvalidTransition}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodPost, "/appointments/"+uuid.New().String()+"/confirm", nil)

		require.Equal(t, http.StatusConflict, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid_transition", resp.Error)
	})
}

func TestNoShowHandler(t *testing.T) {
	t.Run("paid no-show returns the automatic reschedule request", func(t *testing.T) {
		appt := sampleAppointment()
		appt.Status = booking.StatusNoShow
		appt.Paid = true
		books := &stubBookingService{appt: appt, autoResched: true}
		resched := &stubRescheduleService{req: sampleRequest()}
		h := testRouter(&stubScheduleService{}, books, resched)

		rec := doRequest(t, h, http.MethodPost, "/appointments/"+appt.ID.String()+"/no-show", map[string]any{
			"who_missed": "provider",
			"reason":     "provider unavailable",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var resp NoShowResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.RescheduleRequest)
		assert.Equal(t, booking.NoShowByProvider, books.lastNoShowArg)
		assert.Equal(t, reschedule.ReasonProviderNoShow, resched.lastCause)
	})

	t.Run("unpaid no-show returns no reschedule request", func(t *testing.T) {
		appt := sampleAppointment()
		appt.Status = booking.StatusNoShow
		books := &stubBookingService{appt: appt, autoResched: false}
		resched := &stubRescheduleService{}
		h := testRouter(&stubScheduleService{}, books, resched)

		rec := doRequest(t, h, http.MethodPost, "/appointments/"+appt.ID.String()+"/no-show", map[string]any{
			"who_missed": "client",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var resp NoShowResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Nil(t, resp.RescheduleRequest)
		assert.Equal(t, reschedule.Reason(""), resched.lastCause)
	})

	t.Run("missing reason on a paid no-show maps to 422", func(t *testing.T) {
		books := &stubBookingService{err: booking.ErrMissingReason}
		h := testRouter(&stubScheduleService{}, books, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodPost, "/appointments/"+uuid.New().String()+"/no-show", map[string]any{
			"who_missed": "client",
		})

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "missing_reason", resp.Error)
	})

	t.Run("rejects an unknown party", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodPost, "/appointments/"+uuid.New().String()+"/no-show", map[string]any{
			"who_missed": "nobody",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRescheduleHandlers(t *testing.T) {
	t.Run("approve returns the updated request", func(t *testing.T) {
		req := sampleRequest()
		selected := req.ProposedDates[0]
		req.Status = reschedule.StatusApproved
		req.SelectedDate = &selected
		h := testRouter(&stubScheduleService{}, &stubBookingService{}, &stubRescheduleService{req: req})

		rec := doRequest(t, h, http.MethodPost, "/reschedule-requests/"+req.ID.String()+"/approve", map[string]any{
			"approver_role":      "provider",
			"selected_date":      selected,
			"create_replacement": true,
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var resp RescheduleRequestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "approved", resp.Status)
	})

	t.Run("invalid selection maps to 422", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{}, &stubRescheduleService{err: reschedule.ErrInvalidSelection})

		rec := doRequest(t, h, http.MethodPost, "/reschedule-requests/"+uuid.New().String()+"/approve", map[string]any{
			"approver_role": "provider",
			"selected_date": testStart,
		})

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "invalid_selection", resp.Error)
	})

	t.Run("double approval maps to 409", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{}, &stubRescheduleService{err: reschedule.ErrInvalidTransition})

		rec := doRequest(t, h, http.MethodPost, "/reschedule-requests/"+uuid.New().String()+"/approve", map[string]any{
			"approver_role": "provider",
			"selected_date": testStart,
		})

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("list requires an actor", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodGet, "/reschedule-requests/", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list returns pagination envelope", func(t *testing.T) {
		reqs := []reschedule.RescheduleRequest{*sampleRequest(), *sampleRequest()}
		h := testRouter(&stubScheduleService{}, &stubBookingService{}, &stubRescheduleService{reqs: reqs, total: 7})

		rec := doRequest(t, h, http.MethodGet,
			"/reschedule-requests/?actor_id="+uuid.New().String()+"&role=client&page=2&page_size=2", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp RescheduleListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Requests, 2)
		assert.Equal(t, 7, resp.Total)
		assert.Equal(t, 2, resp.Page)
		assert.Equal(t, 2, resp.PageSize)
	})
}

func TestAvailabilityHandlers(t *testing.T) {
	providerID := uuid.New()

	t.Run("day schedule returns slot counts", func(t *testing.T) {
		sched := &stubScheduleService{schedule: schedule.DaySchedule{
			ProviderID: providerID,
			Date:       testStart.Truncate(24 * time.Hour),
			Slots: []schedule.Slot{
				{Start: testStart, End: testStart.Add(30 * time.Minute), Available: true},
				{Start: testStart.Add(30 * time.Minute), End: testStart.Add(time.Hour), Available: false},
			},
			TotalSlots:     2,
			AvailableSlots: 1,
			OccupiedSlots:  1,
		}}
		h := testRouter(sched, &stubBookingService{}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodGet, "/providers/"+providerID.String()+"/slots?date=2026-03-02", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp DayScheduleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.TotalSlots)
		assert.Equal(t, 1, resp.AvailableSlots)
		assert.Equal(t, "2026-03-02", resp.Date)
	})

	t.Run("malformed date is rejected", func(t *testing.T) {
		h := testRouter(&stubScheduleService{}, &stubBookingService{}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodGet, "/providers/"+providerID.String()+"/slots?date=tomorrow", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("block conflict maps to 409", func(t *testing.T) {
		h := testRouter(&stubScheduleService{err: schedule.ErrBlockConflict}, &stubBookingService{}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodPost, "/providers/"+providerID.String()+"/availability", map[string]any{
			"weekday":               1,
			"start_minute":          540,
			"end_minute":            720,
			"slot_duration_minutes": 30,
		})

		require.Equal(t, http.StatusConflict, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "slot_conflict", resp.Error)
	})

	t.Run("invalid block shape maps to 422", func(t *testing.T) {
		h := testRouter(&stubScheduleService{err: schedule.ErrInvalidBlock}, &stubBookingService{}, &stubRescheduleService{})

		rec := doRequest(t, h, http.MethodPost, "/providers/"+providerID.String()+"/availability", map[string]any{
			"weekday":               1,
			"start_minute":          720,
			"end_minute":            540,
			"slot_duration_minutes": 30,
		})

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}
