package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookwell/scheduling/internal/event"
	redisclient "github.com/bookwell/scheduling/internal/redis"
	"github.com/bookwell/scheduling/internal/schedule"
)

// BlockSource yields a provider's active weekly availability blocks.
// The schedule service implements it.
type BlockSource interface {
	ActiveBlocks(ctx context.Context, providerID uuid.UUID) ([]schedule.WeeklyAvailabilityBlock, error)
}

// Service is the booking ledger: it owns the appointment aggregate and all
// of its state transitions.
type Service struct {
	repo   Repository
	blocks BlockSource
	locker redisclient.Locker
	events event.Recorder
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, blocks BlockSource, locker redisclient.Locker, events event.Recorder, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		blocks: blocks,
		locker: locker,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the service clock. Tests use it to pin "now".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateParams struct {
	ProviderID uuid.UUID
	ClientID   uuid.UUID
	Start      time.Time
	End        time.Time
	Reason     string
	Paid       bool
	CostCents  int64
}

// Create books a slot for a client. The provider lock serializes concurrent
// attempts for the same provider; the repository then re-checks for overlap
// and inserts in one transaction, so two racing requests for one slot
// resolve to exactly one success and one ErrSlotConflict.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	if !p.End.After(p.Start) {
		return nil, ErrInvalidInterval
	}

	if _, err := s.repo.GetProviderByID(ctx, p.ProviderID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if _, err := s.repo.GetClientByID(ctx, p.ClientID); err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load client: %w", err)
	}

	blocks, err := s.blocks.ActiveBlocks(ctx, p.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load availability blocks: %w", err)
	}
	if !schedule.SlotMatches(blocks, p.Start, p.End) {
		return nil, ErrOutsideAvailability
	}

	appt := &Appointment{
		ID:         uuid.New(),
		ProviderID: p.ProviderID,
		ClientID:   p.ClientID,
		Start:      p.Start,
		End:        p.End,
		Status:     StatusPending,
		Paid:       p.Paid,
		CostCents:  p.CostCents,
		Reason:     p.Reason,
	}

	err = s.locker.WithProviderLock(ctx, p.ProviderID, func(lockCtx context.Context) error {
		return s.repo.CreateIfFree(lockCtx, appt)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingInProgress
		}
		return nil, err
	}

	s.logger.Info("appointment created",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("provider_id", p.ProviderID.String()),
		zap.String("client_id", p.ClientID.String()),
		zap.Time("starts_at", appt.Start),
	)
	s.emit(ctx, event.TypeBookingCreated, appt.ID, map[string]any{
		"provider_id": appt.ProviderID.String(),
		"client_id":   appt.ClientID.String(),
		"starts_at":   appt.Start,
		"ends_at":     appt.End,
	})

	return appt, nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, event.TypeBookingConfirmed, nil)
}

// Complete closes out a confirmed appointment. Only confirmed appointments
// can complete.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, event.TypeBookingCompleted, nil)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, eventType string, payload map[string]any) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, to, appt.Status)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Row existed a moment ago: a concurrent transition won.
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logger.Info("appointment transitioned",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(to)),
	)
	s.emit(ctx, eventType, id, payload)

	return updated, nil
}

// Cancel terminates a pending or confirmed appointment, recording who
// cancelled and why.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor ActorRole, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
	}

	updated, err := s.repo.MarkCancelled(ctx, id, reason, actor, appt.Status)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logger.Info("appointment cancelled",
		zap.String("appointment_id", id.String()),
		zap.String("actor", string(actor)),
		zap.String("reason", reason),
	)
	s.emit(ctx, event.TypeBookingCancelled, id, map[string]any{
		"actor":  string(actor),
		"reason": reason,
	})

	return updated, nil
}

// MarkNoShow terminates a pending or confirmed appointment because one side
// failed to attend. The second return reports whether automatic rescheduling
// is warranted: true iff the appointment was paid, regardless of which party
// missed it.
//
// A repeat call naming the same missing party is answered idempotently with
// the stored appointment, so the caller can re-drive the follow-up
// (the automatic reschedule request) when its creation failed after the
// no-show already committed.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, whoMissed NoShowParty, reason string) (*Appointment, bool, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if appt.Status == StatusNoShow {
		if appt.NoShowBy != nil && *appt.NoShowBy == whoMissed {
			return appt, appt.Paid, nil
		}
		return nil, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusNoShow)
	}
	if !CanTransition(appt.Status, StatusNoShow) {
		return nil, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusNoShow)
	}
	// A paid no-show triggers an automatic reschedule request, which needs a
	// justification on record.
	if appt.Paid && reason == "" {
		return nil, false, fmt.Errorf("%w: no-show on a paid appointment", ErrMissingReason)
	}

	updated, err := s.repo.MarkNoShow(ctx, id, whoMissed, appt.Status)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusNoShow)
		}
		return nil, false, fmt.Errorf("mark no-show: %w", err)
	}

	s.logger.Info("appointment marked no-show",
		zap.String("appointment_id", id.String()),
		zap.String("who_missed", string(whoMissed)),
		zap.Bool("auto_reschedule", updated.Paid),
	)
	s.emit(ctx, event.TypeBookingNoShow, id, map[string]any{
		"who_missed": string(whoMissed),
		"reason":     reason,
	})

	return updated, updated.Paid, nil
}

// Get retrieves an appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListByProvider retrieves a provider's appointments ordered by start time.
func (s *Service) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByProvider(ctx, providerID, limit, offset)
}

// ListByClient retrieves a client's appointments ordered by start time.
func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByClient(ctx, clientID, limit, offset)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) emit(ctx context.Context, eventType string, appointmentID uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	rec := event.Record{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.events.Record(ctx, rec); err != nil {
		s.logger.Error("insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
