package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlockNotFound = errors.New("availability block not found")
	ErrBlockConflict = errors.New("availability block overlaps an existing active block")
	ErrInvalidBlock  = errors.New("invalid availability block")
)

// Repository contains all DB interactions needed by the schedule service.
type Repository interface {
	CreateBlock(ctx context.Context, b *WeeklyAvailabilityBlock) error
	GetBlockByID(ctx context.Context, id uuid.UUID) (*WeeklyAvailabilityBlock, error)
	UpdateBlock(ctx context.Context, b *WeeklyAvailabilityBlock) error
	ListBlocksByProvider(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]WeeklyAvailabilityBlock, error)
}

// BookedIntervalSource yields a provider's pending/confirmed appointment
// intervals inside a window. The booking ledger implements it.
type BookedIntervalSource interface {
	BookedIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Interval, error)
}
