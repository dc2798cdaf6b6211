package reschedule

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookwell/scheduling/internal/booking"
	"github.com/bookwell/scheduling/internal/event"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeApptStore struct {
	appts map[uuid.UUID]*booking.Appointment
}

func newFakeApptStore() *fakeApptStore {
	return &fakeApptStore{appts: make(map[uuid.UUID]*booking.Appointment)}
}

func (s *fakeApptStore) add(status booking.Status, paid bool) *booking.Appointment {
	start := testNow.Add(48 * time.Hour)
	a := &booking.Appointment{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		ClientID:   uuid.New(),
		Start:      start,
		End:        start.Add(30 * time.Minute),
		Status:     status,
		Paid:       paid,
		CostCents:  5000,
		Reason:     "checkup",
	}
	s.appts[a.ID] = a
	return a
}

func (s *fakeApptStore) Get(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

type fakeRequestRepo struct {
	requests map[uuid.UUID]*RescheduleRequest
	appts    *fakeApptStore
}

func newFakeRequestRepo(appts *fakeApptStore) *fakeRequestRepo {
	return &fakeRequestRepo{
		requests: make(map[uuid.UUID]*RescheduleRequest),
		appts:    appts,
	}
}

func (r *fakeRequestRepo) Create(_ context.Context, req *RescheduleRequest) error {
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *fakeRequestRepo) GetByID(_ context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fakeRequestRepo) List(_ context.Context, f ListFilter) ([]RescheduleRequest, int, error) {
	var all []RescheduleRequest
	for _, req := range r.requests {
		if f.Status != nil && req.Status != *f.Status {
			continue
		}
		if f.Reason != nil && req.Reason != *f.Reason {
			continue
		}
		all = append(all, *req)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })

	total := len(all)
	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size <= 0 {
		size = total
	}
	lo := (page - 1) * size
	if lo > total {
		lo = total
	}
	hi := lo + size
	if hi > total {
		hi = total
	}
	return all[lo:hi], total, nil
}

func (r *fakeRequestRepo) FindOpenByOriginal(_ context.Context, appointmentID uuid.UUID) (*RescheduleRequest, error) {
	for _, req := range r.requests {
		if req.OriginalAppointmentID != appointmentID {
			continue
		}
		if req.Status == StatusPending || req.Status == StatusApproved {
			cp := *req
			return &cp, nil
		}
	}
	return nil, ErrRequestNotFound
}

func (r *fakeRequestRepo) Approve(_ context.Context, p ApproveParams) (*RescheduleRequest, error) {
	req, ok := r.requests[p.RequestID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	original, ok := r.appts.appts[p.OriginalAppointmentID]
	if !ok || (original.Status != booking.StatusPending && original.Status != booking.StatusConfirmed) {
		return nil, ErrInvalidTransition
	}
	original.Status = booking.StatusCancelled
	original.CancellationReason = &p.CancelReason
	actor := p.CancelActor
	original.CancelledBy = &actor

	if p.Replacement != nil {
		cp := *p.Replacement
		r.appts.appts[cp.ID] = &cp
		req.ReplacementAppointmentID = &cp.ID
	}

	selected := p.SelectedDate
	approvedAt := p.ApprovedAt
	req.SelectedDate = &selected
	req.ApprovedAt = &approvedAt
	req.Status = StatusApproved

	cp := *req
	return &cp, nil
}

func (r *fakeRequestRepo) MarkRejected(_ context.Context, id uuid.UUID, reason string, at time.Time) (*RescheduleRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	req.Status = StatusRejected
	req.RejectionReason = &reason
	req.RejectedAt = &at
	cp := *req
	return &cp, nil
}

func (r *fakeRequestRepo) MarkCancelled(_ context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	req.Status = StatusCancelled
	cp := *req
	return &cp, nil
}

func (r *fakeRequestRepo) SetRefundProcessed(_ context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if !req.RefundRequired {
		return nil, ErrRefundNotRequired
	}
	req.RefundProcessed = true
	cp := *req
	return &cp, nil
}

type fakeProposer struct {
	slots       []time.Time
	offTemplate map[time.Time]bool
}

func (p *fakeProposer) ProposeSlots(_ context.Context, _ uuid.UUID, _ time.Time, _ time.Duration, max int) ([]time.Time, error) {
	if len(p.slots) > max {
		return p.slots[:max], nil
	}
	return p.slots, nil
}

func (p *fakeProposer) SlotWithinTemplate(_ context.Context, _ uuid.UUID, start, _ time.Time) (bool, error) {
	return !p.offTemplate[start], nil
}

type fakeEventRecorder struct {
	records []event.Record
}

func (f *fakeEventRecorder) Record(_ context.Context, rec event.Record) error {
	f.records = append(f.records, rec)
	return nil
}

type rescheduleFixture struct {
	svc      *Service
	repo     *fakeRequestRepo
	appts    *fakeApptStore
	proposer *fakeProposer
	events   *fakeEventRecorder
}

func newRescheduleFixture() *rescheduleFixture {
	appts := newFakeApptStore()
	repo := newFakeRequestRepo(appts)
	proposer := &fakeProposer{slots: []time.Time{
		testNow.Add(72 * time.Hour),
		testNow.Add(96 * time.Hour),
		testNow.Add(120 * time.Hour),
	}}
	events := &fakeEventRecorder{}

	svc := NewService(repo, appts, proposer, events, zap.NewNop(), 14*24*time.Hour, 3).
		WithClock(func() time.Time { return testNow })

	return &rescheduleFixture{svc: svc, repo: repo, appts: appts, proposer: proposer, events: events}
}

func manualParams(original *booking.Appointment, reason Reason) ManualRequestParams {
	return ManualRequestParams{
		OriginalAppointmentID: original.ID,
		RequesterID:           original.ClientID,
		RequesterRole:         booking.RoleClient,
		Reason:                reason,
		Description:           "need a different day",
		ProposedDates: []time.Time{
			testNow.Add(72 * time.Hour),
			testNow.Add(96 * time.Hour),
		},
	}
}

func TestRequestManual(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending request", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusConfirmed, false)

		req, err := f.svc.RequestManual(ctx, manualParams(original, ReasonClientRequested))
		require.NoError(t, err)
		assert.Equal(t, StatusPending, req.Status)
		assert.False(t, req.RefundRequired)
		assert.Len(t, req.ProposedDates, 2)
	})

	t.Run("paid original with qualifying reason requires a refund", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusConfirmed, true)

		req, err := f.svc.RequestManual(ctx, manualParams(original, ReasonMedicalEmergency))
		require.NoError(t, err)
		assert.True(t, req.RefundRequired)
		assert.False(t, req.RefundProcessed)
	})

	t.Run("paid original with client requested reason owes nothing", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusConfirmed, true)

		req, err := f.svc.RequestManual(ctx, manualParams(original, ReasonClientRequested))
		require.NoError(t, err)
		assert.False(t, req.RefundRequired)
	})

	t.Run("rejects unknown reasons and roles", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusConfirmed, false)

		p := manualParams(original, "vacation")
		_, err := f.svc.RequestManual(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidRequest)

		p = manualParams(original, ReasonClientRequested)
		p.RequesterRole = "admin"
		_, err = f.svc.RequestManual(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("validates proposed dates", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusConfirmed, false)

		cases := [][]time.Time{
			nil,
			{testNow.Add(24 * time.Hour), testNow.Add(48 * time.Hour), testNow.Add(72 * time.Hour), testNow.Add(96 * time.Hour)},
			{testNow.Add(-24 * time.Hour)},
			{testNow},
			{testNow.Add(24 * time.Hour), testNow.Add(24 * time.Hour)},
		}
		for _, dates := range cases {
			p := manualParams(original, ReasonClientRequested)
			p.ProposedDates = dates
			_, err := f.svc.RequestManual(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidProposedDates)
		}
	})

	t.Run("proposed dates must sit on the availability template", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusConfirmed, false)

		p := manualParams(original, ReasonClientRequested)
		f.proposer.offTemplate = map[time.Time]bool{p.ProposedDates[1]: true}

		_, err := f.svc.RequestManual(ctx, p)
		assert.ErrorIs(t, err, booking.ErrOutsideAvailability)
		assert.Empty(t, f.repo.requests)
	})

	t.Run("original must be pending or confirmed", func(t *testing.T) {
		f := newRescheduleFixture()
		for _, status := range []booking.Status{booking.StatusCompleted, booking.StatusCancelled, booking.StatusNoShow} {
			original := f.appts.add(status, false)
			_, err := f.svc.RequestManual(ctx, manualParams(original, ReasonClientRequested))
			assert.ErrorIs(t, err, ErrOriginalNotActive, "status %s", status)
		}
	})
}

func TestRequestAutomatic(t *testing.T) {
	ctx := context.Background()

	t.Run("provider no-show files for the client with a refund", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusNoShow, true)

		req, err := f.svc.RequestAutomatic(ctx, original, ReasonProviderNoShow)
		require.NoError(t, err)
		assert.Equal(t, original.ClientID, req.RequesterID)
		assert.Equal(t, booking.RoleClient, req.RequesterRole)
		assert.True(t, req.RefundRequired)
		assert.Len(t, req.ProposedDates, 3)
	})

	t.Run("client no-show files for the provider without a refund", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusNoShow, true)

		req, err := f.svc.RequestAutomatic(ctx, original, ReasonClientNoShow)
		require.NoError(t, err)
		assert.Equal(t, original.ProviderID, req.RequesterID)
		assert.Equal(t, booking.RoleProvider, req.RequesterRole)
		assert.False(t, req.RefundRequired)
	})

	t.Run("no available slots still creates the request flagged for follow-up", func(t *testing.T) {
		f := newRescheduleFixture()
		f.proposer.slots = nil
		original := f.appts.add(booking.StatusNoShow, true)

		req, err := f.svc.RequestAutomatic(ctx, original, ReasonProviderNoShow)
		require.NoError(t, err)
		assert.Empty(t, req.ProposedDates)
		assert.Equal(t, StatusPending, req.Status)

		require.NotEmpty(t, f.events.records)
		last := f.events.records[len(f.events.records)-1]
		var payload map[string]any
		require.NoError(t, json.Unmarshal(last.Payload, &payload))
		assert.Equal(t, true, payload["needs_manual_followup"])
	})

	t.Run("retry returns the already open request", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusNoShow, true)

		first, err := f.svc.RequestAutomatic(ctx, original, ReasonProviderNoShow)
		require.NoError(t, err)

		second, err := f.svc.RequestAutomatic(ctx, original, ReasonProviderNoShow)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, f.repo.requests, 1)
	})

	t.Run("only no-show causes are accepted", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusNoShow, true)

		_, err := f.svc.RequestAutomatic(ctx, original, ReasonClientRequested)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, f *rescheduleFixture) (*booking.Appointment, *RescheduleRequest) {
		t.Helper()
		original := f.appts.add(booking.StatusConfirmed, true)
		req, err := f.svc.RequestManual(ctx, manualParams(original, ReasonMedicalEmergency))
		require.NoError(t, err)
		return original, req
	}

	t.Run("approval cancels the original and books the replacement", func(t *testing.T) {
		f := newRescheduleFixture()
		original, req := setup(t, f)
		selected := req.ProposedDates[0]

		approved, err := f.svc.Approve(ctx, req.ID, booking.RoleProvider, selected, true)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, approved.Status)
		require.NotNil(t, approved.SelectedDate)
		assert.True(t, approved.SelectedDate.Equal(selected))

		cancelled, err := f.appts.Get(ctx, original.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancellationReason)
		assert.Equal(t, "rescheduled", *cancelled.CancellationReason)

		require.NotNil(t, approved.ReplacementAppointmentID)
		replacement, err := f.appts.Get(ctx, *approved.ReplacementAppointmentID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusConfirmed, replacement.Status)
		assert.True(t, replacement.Start.Equal(selected))
		assert.Equal(t, original.Duration(), replacement.Duration())
		assert.Equal(t, original.Paid, replacement.Paid)
		assert.Equal(t, original.CostCents, replacement.CostCents)

		var booked bool
		for _, rec := range f.events.records {
			if rec.EventType == event.TypeBookingCreated &&
				rec.AppointmentID != nil && *rec.AppointmentID == replacement.ID {
				booked = true
			}
		}
		assert.True(t, booked, "replacement booking was not recorded")
	})

	t.Run("replacement must sit on the template at approval time", func(t *testing.T) {
		f := newRescheduleFixture()
		_, req := setup(t, f)
		selected := req.ProposedDates[0]

		// The template changed after the request was filed.
		f.proposer.offTemplate = map[time.Time]bool{selected: true}

		before := len(f.appts.appts)
		_, err := f.svc.Approve(ctx, req.ID, booking.RoleProvider, selected, true)
		assert.ErrorIs(t, err, booking.ErrOutsideAvailability)
		assert.Equal(t, before, len(f.appts.appts))

		got, err := f.svc.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
	})

	t.Run("approval without replacement leaves booking to the caller", func(t *testing.T) {
		f := newRescheduleFixture()
		_, req := setup(t, f)

		approved, err := f.svc.Approve(ctx, req.ID, booking.RoleProvider, req.ProposedDates[1], false)
		require.NoError(t, err)
		assert.Nil(t, approved.ReplacementAppointmentID)
	})

	t.Run("selected date must be among the proposals", func(t *testing.T) {
		f := newRescheduleFixture()
		_, req := setup(t, f)

		_, err := f.svc.Approve(ctx, req.ID, booking.RoleProvider, testNow.Add(500*time.Hour), true)
		assert.ErrorIs(t, err, ErrInvalidSelection)

		// The request is left pending.
		got, err := f.svc.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
	})

	t.Run("second approval fails and books nothing", func(t *testing.T) {
		f := newRescheduleFixture()
		_, req := setup(t, f)

		_, err := f.svc.Approve(ctx, req.ID, booking.RoleProvider, req.ProposedDates[0], true)
		require.NoError(t, err)

		before := len(f.appts.appts)
		_, err = f.svc.Approve(ctx, req.ID, booking.RoleProvider, req.ProposedDates[0], true)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, before, len(f.appts.appts))
	})
}

func TestRejectAndCancel(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, f *rescheduleFixture) (*booking.Appointment, *RescheduleRequest) {
		t.Helper()
		original := f.appts.add(booking.StatusConfirmed, false)
		req, err := f.svc.RequestManual(ctx, manualParams(original, ReasonClientRequested))
		require.NoError(t, err)
		return original, req
	}

	t.Run("rejection requires a reason", func(t *testing.T) {
		f := newRescheduleFixture()
		_, req := setup(t, f)

		_, err := f.svc.Reject(ctx, req.ID, booking.RoleProvider, "")
		assert.ErrorIs(t, err, ErrMissingReason)
	})

	t.Run("rejection leaves the original untouched", func(t *testing.T) {
		f := newRescheduleFixture()
		original, req := setup(t, f)

		rejected, err := f.svc.Reject(ctx, req.ID, booking.RoleProvider, "no free capacity")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, rejected.Status)
		require.NotNil(t, rejected.RejectionReason)
		assert.Equal(t, "no free capacity", *rejected.RejectionReason)

		got, err := f.appts.Get(ctx, original.ID)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusConfirmed, got.Status)
	})

	t.Run("cancel withdraws a pending request", func(t *testing.T) {
		f := newRescheduleFixture()
		_, req := setup(t, f)

		cancelled, err := f.svc.Cancel(ctx, req.ID, booking.RoleClient, "found a workaround")
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, cancelled.Status)
	})

	t.Run("terminal requests reject all further transitions", func(t *testing.T) {
		f := newRescheduleFixture()
		_, req := setup(t, f)
		_, err := f.svc.Reject(ctx, req.ID, booking.RoleProvider, "no")
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, req.ID, booking.RoleClient, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, err = f.svc.Approve(ctx, req.ID, booking.RoleProvider, req.ProposedDates[0], false)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestListPending(t *testing.T) {
	ctx := context.Background()

	t.Run("walks every page of the backlog", func(t *testing.T) {
		f := newRescheduleFixture()
		for i := 0; i < 130; i++ {
			original := f.appts.add(booking.StatusConfirmed, false)
			_, err := f.svc.RequestManual(ctx, manualParams(original, ReasonClientRequested))
			require.NoError(t, err)
		}

		pending, err := f.svc.ListPending(ctx, uuid.New(), booking.RoleClient)
		require.NoError(t, err)
		assert.Len(t, pending, 130)

		seen := make(map[uuid.UUID]bool, len(pending))
		for _, req := range pending {
			require.False(t, seen[req.ID], "request %s listed twice", req.ID)
			seen[req.ID] = true
		}
	})
}

func TestSetRefundProcessed(t *testing.T) {
	ctx := context.Background()

	t.Run("marks an owed refund processed", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusConfirmed, true)
		req, err := f.svc.RequestManual(ctx, manualParams(original, ReasonMedicalEmergency))
		require.NoError(t, err)
		require.True(t, req.RefundRequired)

		updated, err := f.svc.SetRefundProcessed(ctx, req.ID)
		require.NoError(t, err)
		assert.True(t, updated.RefundProcessed)
	})

	t.Run("rejects requests without a refund obligation", func(t *testing.T) {
		f := newRescheduleFixture()
		original := f.appts.add(booking.StatusConfirmed, false)
		req, err := f.svc.RequestManual(ctx, manualParams(original, ReasonClientRequested))
		require.NoError(t, err)

		_, err = f.svc.SetRefundProcessed(ctx, req.ID)
		assert.ErrorIs(t, err, ErrRefundNotRequired)
	})
}
