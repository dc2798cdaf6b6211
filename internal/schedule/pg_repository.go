package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bookwell/scheduling/internal/db"
)

type PgRepository struct {
	q db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{q: q}
}

const blockColumns = `id, provider_id, weekday, start_minute, end_minute, slot_duration_minutes, active, created_at, updated_at`

func scanBlock(row pgx.Row) (*WeeklyAvailabilityBlock, error) {
	var b WeeklyAvailabilityBlock
	var weekday int

	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&weekday,
		&b.StartMinute,
		&b.EndMinute,
		&b.SlotDurationMinutes,
		&b.Active,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}

	b.Weekday = time.Weekday(weekday)
	return &b, nil
}

func (r *PgRepository) CreateBlock(ctx context.Context, b *WeeklyAvailabilityBlock) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO weekly_availability_blocks
			(id, provider_id, weekday, start_minute, end_minute, slot_duration_minutes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+blockColumns+`
	`, b.ID, b.ProviderID, int(b.Weekday), b.StartMinute, b.EndMinute, b.SlotDurationMinutes, b.Active)

	created, err := scanBlock(row)
	if err != nil {
		return err
	}
	*b = *created
	return nil
}

func (r *PgRepository) GetBlockByID(ctx context.Context, id uuid.UUID) (*WeeklyAvailabilityBlock, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+blockColumns+`
		FROM weekly_availability_blocks
		WHERE id = $1
	`, id)
	return scanBlock(row)
}

func (r *PgRepository) UpdateBlock(ctx context.Context, b *WeeklyAvailabilityBlock) error {
	row := r.q.QueryRow(ctx, `
		UPDATE weekly_availability_blocks
		SET weekday = $2,
		    start_minute = $3,
		    end_minute = $4,
		    slot_duration_minutes = $5,
		    active = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+blockColumns+`
	`, b.ID, int(b.Weekday), b.StartMinute, b.EndMinute, b.SlotDurationMinutes, b.Active)

	updated, err := scanBlock(row)
	if err != nil {
		return err
	}
	*b = *updated
	return nil
}

func (r *PgRepository) ListBlocksByProvider(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]WeeklyAvailabilityBlock, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+blockColumns+`
		FROM weekly_availability_blocks
		WHERE provider_id = $1
		  AND ($2 = false OR active = true)
		ORDER BY weekday, start_minute
	`, providerID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WeeklyAvailabilityBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
