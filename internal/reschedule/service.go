package reschedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookwell/scheduling/internal/booking"
	"github.com/bookwell/scheduling/internal/event"
)

// AppointmentSource resolves appointments by id. The booking ledger
// implements it.
type AppointmentSource interface {
	Get(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
}

// ScheduleSource exposes the slot calculator to the reschedule workflow:
// proposal generation for automatic requests and template membership checks
// for proposed and selected dates. The schedule service implements it.
type ScheduleSource interface {
	ProposeSlots(ctx context.Context, providerID uuid.UUID, from time.Time, horizon time.Duration, max int) ([]time.Time, error)
	SlotWithinTemplate(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error)
}

// Service owns the reschedule request workflow: manual and automatic
// creation, approval, rejection, cancellation, and the refund flag.
type Service struct {
	repo           Repository
	appointments   AppointmentSource
	slots          ScheduleSource
	events         event.Recorder
	logger         *zap.Logger
	now            func() time.Time
	proposeHorizon time.Duration
	proposeMax     int
}

func NewService(repo Repository, appointments AppointmentSource, slots ScheduleSource, events event.Recorder, logger *zap.Logger, proposeHorizon time.Duration, proposeMax int) *Service {
	if proposeMax <= 0 || proposeMax > MaxProposedDates {
		proposeMax = MaxProposedDates
	}
	return &Service{
		repo:           repo,
		appointments:   appointments,
		slots:          slots,
		events:         events,
		logger:         logger,
		now:            time.Now,
		proposeHorizon: proposeHorizon,
		proposeMax:     proposeMax,
	}
}

// WithClock replaces the service clock. Tests use it to pin "now".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type ManualRequestParams struct {
	OriginalAppointmentID uuid.UUID
	RequesterID           uuid.UUID
	RequesterRole         booking.ActorRole
	Reason                Reason
	Description           string
	Justification         string
	ProposedDates         []time.Time
}

// RequestManual opens a reschedule request on a still-active appointment
// with 1 to 3 distinct future proposed dates. Every proposed date must be a
// template slot of the original's provider, so an approval can never book a
// replacement no direct booking could obtain.
func (s *Service) RequestManual(ctx context.Context, p ManualRequestParams) (*RescheduleRequest, error) {
	if !p.Reason.Valid() {
		return nil, fmt.Errorf("%w: unknown reason %q", ErrInvalidRequest, p.Reason)
	}
	if !p.RequesterRole.Valid() {
		return nil, fmt.Errorf("%w: unknown requester role %q", ErrInvalidRequest, p.RequesterRole)
	}
	if err := validateProposedDates(p.ProposedDates, s.now()); err != nil {
		return nil, err
	}

	original, err := s.appointments.Get(ctx, p.OriginalAppointmentID)
	if err != nil {
		return nil, err
	}
	if original.Status != booking.StatusPending && original.Status != booking.StatusConfirmed {
		return nil, fmt.Errorf("%w: status %s", ErrOriginalNotActive, original.Status)
	}

	dur := original.Duration()
	for _, d := range p.ProposedDates {
		ok, err := s.slots.SlotWithinTemplate(ctx, original.ProviderID, d, d.Add(dur))
		if err != nil {
			return nil, fmt.Errorf("check availability template: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a template slot", booking.ErrOutsideAvailability, d.Format(time.RFC3339))
		}
	}

	req := &RescheduleRequest{
		ID:                    uuid.New(),
		OriginalAppointmentID: original.ID,
		RequesterID:           p.RequesterID,
		RequesterRole:         p.RequesterRole,
		Reason:                p.Reason,
		Description:           p.Description,
		Justification:         p.Justification,
		ProposedDates:         p.ProposedDates,
		Status:                StatusPending,
		RefundRequired:        RequiresRefund(original, p.Reason),
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("reschedule request created",
		zap.String("request_id", req.ID.String()),
		zap.String("appointment_id", original.ID.String()),
		zap.String("reason", string(req.Reason)),
		zap.Bool("refund_required", req.RefundRequired),
	)
	s.emit(ctx, event.TypeRescheduleRequested, req, map[string]any{
		"reason":          string(req.Reason),
		"refund_required": req.RefundRequired,
		"proposed_dates":  req.ProposedDates,
	})

	return req, nil
}

// RequestAutomatic opens a reschedule request on behalf of the party a
// no-show disrupted. Proposed dates come from the next available slots
// within the configured horizon; when none exist the request is still
// created, flagged for manual follow-up.
//
// The call is idempotent per appointment: when an open request already
// exists it is returned instead of a second one being created, so a retry
// of the no-show endpoint after a partial failure converges on exactly one
// request.
func (s *Service) RequestAutomatic(ctx context.Context, original *booking.Appointment, cause Reason) (*RescheduleRequest, error) {
	if cause != ReasonClientNoShow && cause != ReasonProviderNoShow {
		return nil, fmt.Errorf("%w: automatic requests require a no-show cause, got %q", ErrInvalidRequest, cause)
	}

	existing, err := s.repo.FindOpenByOriginal(ctx, original.ID)
	if err == nil {
		s.logger.Info("reschedule request already open, reusing it",
			zap.String("request_id", existing.ID.String()),
			zap.String("appointment_id", original.ID.String()),
		)
		return existing, nil
	}
	if !errors.Is(err, ErrRequestNotFound) {
		return nil, fmt.Errorf("find open request: %w", err)
	}

	now := s.now()
	proposed, err := s.slots.ProposeSlots(ctx, original.ProviderID, now, s.proposeHorizon, s.proposeMax)
	if err != nil {
		return nil, fmt.Errorf("propose slots: %w", err)
	}

	// The request is filed for the disrupted party: the one who showed up.
	requesterID := original.ClientID
	requesterRole := booking.RoleClient
	if cause == ReasonClientNoShow {
		requesterID = original.ProviderID
		requesterRole = booking.RoleProvider
	}

	req := &RescheduleRequest{
		ID:                    uuid.New(),
		OriginalAppointmentID: original.ID,
		RequesterID:           requesterID,
		RequesterRole:         requesterRole,
		Reason:                cause,
		Description:           "automatically created after a no-show",
		Justification:         fmt.Sprintf("appointment on %s was missed by the %s", original.Start.Format(time.RFC3339), missedBy(cause)),
		ProposedDates:         proposed,
		Status:                StatusPending,
		RefundRequired:        RequiresRefund(original, cause),
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("automatic reschedule request created",
		zap.String("request_id", req.ID.String()),
		zap.String("appointment_id", original.ID.String()),
		zap.String("cause", string(cause)),
		zap.Int("proposed_dates", len(proposed)),
		zap.Bool("refund_required", req.RefundRequired),
	)
	s.emit(ctx, event.TypeRescheduleRequested, req, map[string]any{
		"reason":                string(cause),
		"automatic":             true,
		"refund_required":       req.RefundRequired,
		"proposed_dates":        req.ProposedDates,
		"needs_manual_followup": len(proposed) == 0,
	})

	return req, nil
}

// Approve accepts one of the proposed dates, cancels the original booking
// and, when asked, books the replacement at the selected date. The
// replacement must still be a template slot of the provider at approval
// time: the template may have changed since the request was filed. The whole
// operation is atomic; calling it twice fails with ErrInvalidTransition and
// never produces a second replacement.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approver booking.ActorRole, selectedDate time.Time, createReplacement bool) (*RescheduleRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, StatusApproved)
	}
	if !req.Proposed(selectedDate) {
		return nil, ErrInvalidSelection
	}

	original, err := s.appointments.Get(ctx, req.OriginalAppointmentID)
	if err != nil {
		return nil, err
	}

	var replacement *booking.Appointment
	if createReplacement {
		end := selectedDate.Add(original.Duration())
		ok, err := s.slots.SlotWithinTemplate(ctx, original.ProviderID, selectedDate, end)
		if err != nil {
			return nil, fmt.Errorf("check availability template: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a template slot", booking.ErrOutsideAvailability, selectedDate.Format(time.RFC3339))
		}

		replacement = &booking.Appointment{
			ID:         uuid.New(),
			ProviderID: original.ProviderID,
			ClientID:   original.ClientID,
			Start:      selectedDate,
			End:        end,
			Status:     booking.StatusConfirmed,
			Paid:       original.Paid,
			CostCents:  original.CostCents,
			Reason:     original.Reason,
		}
	}

	updated, err := s.repo.Approve(ctx, ApproveParams{
		RequestID:             req.ID,
		OriginalAppointmentID: original.ID,
		SelectedDate:          selectedDate,
		ApprovedAt:            s.now(),
		CancelActor:           approver,
		CancelReason:          "rescheduled",
		Replacement:           replacement,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reschedule request approved",
		zap.String("request_id", req.ID.String()),
		zap.Time("selected_date", selectedDate),
		zap.Bool("replacement_created", replacement != nil),
	)
	payload := map[string]any{
		"selected_date": selectedDate,
	}
	if updated.ReplacementAppointmentID != nil {
		payload["replacement_appointment_id"] = updated.ReplacementAppointmentID.String()
	}
	s.emit(ctx, event.TypeRescheduleApproved, updated, payload)

	if replacement != nil && updated.ReplacementAppointmentID != nil {
		s.emitReplacementBooked(ctx, updated.ID, replacement)
	}

	return updated, nil
}

// emitReplacementBooked records the replacement under the same event type a
// direct booking emits, keyed to the replacement appointment.
func (s *Service) emitReplacementBooked(ctx context.Context, requestID uuid.UUID, replacement *booking.Appointment) {
	data, err := json.Marshal(map[string]any{
		"provider_id": replacement.ProviderID.String(),
		"client_id":   replacement.ClientID.String(),
		"starts_at":   replacement.Start,
		"ends_at":     replacement.End,
	})
	if err != nil {
		s.logger.Error("marshal event payload", zap.String("event_type", event.TypeBookingCreated), zap.Error(err))
		data = nil
	}

	apptID := replacement.ID
	reqID := requestID

	rec := event.Record{
		EventType:     event.TypeBookingCreated,
		AppointmentID: &apptID,
		RequestID:     &reqID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.events.Record(ctx, rec); err != nil {
		s.logger.Error("insert event log",
			zap.String("event_type", event.TypeBookingCreated),
			zap.String("appointment_id", apptID.String()),
			zap.Error(err),
		)
	}
}

// Reject declines a pending request. The original appointment is left
// untouched.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, rejecter booking.ActorRole, reason string) (*RescheduleRequest, error) {
	if reason == "" {
		return nil, ErrMissingReason
	}

	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, StatusRejected)
	}

	updated, err := s.repo.MarkRejected(ctx, id, reason, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("reschedule request rejected",
		zap.String("request_id", id.String()),
		zap.String("rejecter", string(rejecter)),
		zap.String("reason", reason),
	)
	s.emit(ctx, event.TypeRescheduleRejected, updated, map[string]any{
		"reason": reason,
	})

	return updated, nil
}

// Cancel withdraws a pending request.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor booking.ActorRole, reason string) (*RescheduleRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, StatusCancelled)
	}

	updated, err := s.repo.MarkCancelled(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("reschedule request cancelled",
		zap.String("request_id", id.String()),
		zap.String("actor", string(actor)),
	)
	s.emit(ctx, event.TypeRescheduleCancelled, updated, map[string]any{
		"actor":  string(actor),
		"reason": reason,
	})

	return updated, nil
}

// SetRefundProcessed records the payment collaborator's acknowledgement
// that the owed refund was executed. No payment logic lives here.
func (s *Service) SetRefundProcessed(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	return s.repo.SetRefundProcessed(ctx, id)
}

// Get retrieves a request by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	return s.repo.GetByID(ctx, id)
}

// List pages through requests visible to one actor.
func (s *Service) List(ctx context.Context, f ListFilter) ([]RescheduleRequest, int, error) {
	return s.repo.List(ctx, f)
}

// ListPending lists the actor's open requests. It walks every page of the
// listing so the caller sees the whole backlog, not just the first page.
func (s *Service) ListPending(ctx context.Context, actorID uuid.UUID, role booking.ActorRole) ([]RescheduleRequest, error) {
	pending := StatusPending

	var out []RescheduleRequest
	for page := 1; ; page++ {
		reqs, total, err := s.repo.List(ctx, ListFilter{
			ActorID:  actorID,
			Role:     role,
			Status:   &pending,
			Page:     page,
			PageSize: 100,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, reqs...)
		if len(reqs) == 0 || len(out) >= total {
			return out, nil
		}
	}
}

func validateProposedDates(dates []time.Time, now time.Time) error {
	if len(dates) == 0 || len(dates) > MaxProposedDates {
		return ErrInvalidProposedDates
	}
	for i, d := range dates {
		if !d.After(now) {
			return fmt.Errorf("%w: %s is not in the future", ErrInvalidProposedDates, d.Format(time.RFC3339))
		}
		for _, other := range dates[:i] {
			if d.Equal(other) {
				return fmt.Errorf("%w: duplicate date %s", ErrInvalidProposedDates, d.Format(time.RFC3339))
			}
		}
	}
	return nil
}

func missedBy(cause Reason) string {
	if cause == ReasonClientNoShow {
		return "client"
	}
	return "provider"
}

func (s *Service) emit(ctx context.Context, eventType string, req *RescheduleRequest, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := req.OriginalAppointmentID
	reqID := req.ID

	rec := event.Record{
		EventType:     eventType,
		AppointmentID: &apptID,
		RequestID:     &reqID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.events.Record(ctx, rec); err != nil {
		s.logger.Error("insert event log",
			zap.String("event_type", eventType),
			zap.String("request_id", reqID.String()),
			zap.Error(err),
		)
	}
}
