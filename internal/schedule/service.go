package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service owns the weekly availability template and the slot calculator.
type Service struct {
	repo   Repository
	booked BookedIntervalSource
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, booked BookedIntervalSource, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		booked: booked,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the service clock. Tests use it to pin "now".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateBlockParams struct {
	ProviderID          uuid.UUID
	Weekday             time.Weekday
	StartMinute         int
	EndMinute           int
	SlotDurationMinutes int
}

// CreateBlock adds an active block to the provider's template. Two active
// blocks on the same weekday must not overlap; the check runs through the
// same Overlaps predicate the booking conflict check uses.
func (s *Service) CreateBlock(ctx context.Context, p CreateBlockParams) (*WeeklyAvailabilityBlock, error) {
	if err := validateBlockShape(p.Weekday, p.StartMinute, p.EndMinute, p.SlotDurationMinutes); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListBlocksByProvider(ctx, p.ProviderID, true)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}

	candidate := WeeklyAvailabilityBlock{
		ID:                  uuid.New(),
		ProviderID:          p.ProviderID,
		Weekday:             p.Weekday,
		StartMinute:         p.StartMinute,
		EndMinute:           p.EndMinute,
		SlotDurationMinutes: p.SlotDurationMinutes,
		Active:              true,
	}

	if conflictsWithActive(candidate, existing) {
		return nil, ErrBlockConflict
	}

	if err := s.repo.CreateBlock(ctx, &candidate); err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}

	s.logger.Info("availability block created",
		zap.String("block_id", candidate.ID.String()),
		zap.String("provider_id", p.ProviderID.String()),
		zap.Int("weekday", int(p.Weekday)),
	)

	return &candidate, nil
}

type UpdateBlockParams struct {
	StartMinute         *int
	EndMinute           *int
	SlotDurationMinutes *int
	Active              *bool
}

// UpdateBlock edits or deactivates a block, re-running the overlap check
// against the other active blocks on the same weekday.
func (s *Service) UpdateBlock(ctx context.Context, id uuid.UUID, p UpdateBlockParams) (*WeeklyAvailabilityBlock, error) {
	b, err := s.repo.GetBlockByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.StartMinute != nil {
		b.StartMinute = *p.StartMinute
	}
	if p.EndMinute != nil {
		b.EndMinute = *p.EndMinute
	}
	if p.SlotDurationMinutes != nil {
		b.SlotDurationMinutes = *p.SlotDurationMinutes
	}
	if p.Active != nil {
		b.Active = *p.Active
	}

	if err := validateBlockShape(b.Weekday, b.StartMinute, b.EndMinute, b.SlotDurationMinutes); err != nil {
		return nil, err
	}

	if b.Active {
		existing, err := s.repo.ListBlocksByProvider(ctx, b.ProviderID, true)
		if err != nil {
			return nil, fmt.Errorf("list blocks: %w", err)
		}
		others := existing[:0:0]
		for _, other := range existing {
			if other.ID != b.ID {
				others = append(others, other)
			}
		}
		if conflictsWithActive(*b, others) {
			return nil, ErrBlockConflict
		}
	}

	if err := s.repo.UpdateBlock(ctx, b); err != nil {
		return nil, fmt.Errorf("update block: %w", err)
	}

	return b, nil
}

// DeactivateBlock takes the block out of the template without deleting it.
func (s *Service) DeactivateBlock(ctx context.Context, id uuid.UUID) (*WeeklyAvailabilityBlock, error) {
	inactive := false
	return s.UpdateBlock(ctx, id, UpdateBlockParams{Active: &inactive})
}

func (s *Service) ListBlocks(ctx context.Context, providerID uuid.UUID) ([]WeeklyAvailabilityBlock, error) {
	return s.repo.ListBlocksByProvider(ctx, providerID, false)
}

// ActiveBlocks is consumed by the booking ledger's availability check.
func (s *Service) ActiveBlocks(ctx context.Context, providerID uuid.UUID) ([]WeeklyAvailabilityBlock, error) {
	return s.repo.ListBlocksByProvider(ctx, providerID, true)
}

// DaySchedule computes the slot sequence for a provider on a date.
func (s *Service) DaySchedule(ctx context.Context, providerID uuid.UUID, date time.Time) (DaySchedule, error) {
	blocks, err := s.repo.ListBlocksByProvider(ctx, providerID, true)
	if err != nil {
		return DaySchedule{}, fmt.Errorf("list blocks: %w", err)
	}

	day := startOfDay(date)
	booked, err := s.booked.BookedIntervals(ctx, providerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return DaySchedule{}, fmt.Errorf("load booked intervals: %w", err)
	}

	return BuildDaySchedule(providerID, date, blocks, booked, s.now()), nil
}

// SlotWithinTemplate reports whether [start, end) is one of the candidate
// slots the provider's active template generates. The reschedule workflow
// uses it so approved replacements obey the same availability rules as a
// direct booking.
func (s *Service) SlotWithinTemplate(ctx context.Context, providerID uuid.UUID, start, end time.Time) (bool, error) {
	blocks, err := s.repo.ListBlocksByProvider(ctx, providerID, true)
	if err != nil {
		return false, fmt.Errorf("list blocks: %w", err)
	}
	return SlotMatches(blocks, start, end), nil
}

// ProposeSlots returns the start times of the next available slots after
// `from`, nearest first, bounded by the horizon. Automatic reschedule
// requests use it to build their proposed-dates set.
func (s *Service) ProposeSlots(ctx context.Context, providerID uuid.UUID, from time.Time, horizon time.Duration, max int) ([]time.Time, error) {
	blocks, err := s.repo.ListBlocksByProvider(ctx, providerID, true)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}

	to := from.Add(horizon)
	booked, err := s.booked.BookedIntervals(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booked intervals: %w", err)
	}

	slots := AvailableSlotsBetween(providerID, blocks, booked, from, to, max)
	out := make([]time.Time, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slot.Start)
	}
	return out, nil
}

func validateBlockShape(weekday time.Weekday, startMinute, endMinute, slotDuration int) error {
	if weekday < time.Sunday || weekday > time.Saturday {
		return fmt.Errorf("%w: weekday out of range", ErrInvalidBlock)
	}
	if startMinute < 0 || endMinute > 24*60 || startMinute >= endMinute {
		return fmt.Errorf("%w: start must be before end within the day", ErrInvalidBlock)
	}
	if slotDuration <= 0 {
		return fmt.Errorf("%w: slot duration must be positive", ErrInvalidBlock)
	}
	return nil
}

// conflictsWithActive checks the candidate against active blocks on the same
// weekday by projecting both onto a reference date and reusing Overlaps.
func conflictsWithActive(candidate WeeklyAvailabilityBlock, existing []WeeklyAvailabilityBlock) bool {
	// Any fixed date works: blocks on the same weekday land on the same day.
	ref := time.Date(2000, time.January, 2, 0, 0, 0, 0, time.UTC)
	cStart, cEnd := candidate.Window(ref)

	for _, other := range existing {
		if !other.Active || other.Weekday != candidate.Weekday {
			continue
		}
		oStart, oEnd := other.Window(ref)
		if Overlaps(cStart, cEnd, oStart, oEnd) {
			return true
		}
	}
	return false
}
