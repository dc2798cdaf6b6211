package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwell/scheduling/internal/db"
	"github.com/bookwell/scheduling/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool // nil when bound to a caller-owned transaction
	q    db.Querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

// WithTx returns a repository bound to tx. Composite methods that open
// their own transaction rely on the caller's one instead.
func (r *PgRepository) WithTx(tx pgx.Tx) *PgRepository {
	return &PgRepository{q: tx}
}

// Helpers

const appointmentColumns = `id, provider_id, client_id, starts_at, ends_at, status, paid, cost_cents, reason, cancellation_reason, cancelled_by, no_show_by, created_at, updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var email *string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	c.Email = email
	return &c, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancellationReason *string
	var cancelledBy *string
	var noShowBy *string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.ClientID,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Paid,
		&a.CostCents,
		&a.Reason,
		&cancellationReason,
		&cancelledBy,
		&noShowBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.CancellationReason = cancellationReason
	if cancelledBy != nil {
		role := ActorRole(*cancelledBy)
		a.CancelledBy = &role
	}
	if noShowBy != nil {
		party := NoShowParty(*noShowBy)
		a.NoShowBy = &party
	}
	return &a, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateIfFree(ctx context.Context, appt *Appointment) error {
	if r.pool == nil {
		// Already inside a caller-owned transaction.
		return r.createIfFree(ctx, r.q, appt)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.createIfFree(ctx, tx, appt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// createIfFree runs the overlap check and insert on the same querier so the
// two cannot be separated by a concurrent write.
func (r *PgRepository) createIfFree(ctx context.Context, q db.Querier, appt *Appointment) error {
	var existingID uuid.UUID
	err := q.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE provider_id = $1
		  AND status = ANY($2::text[])
		  AND starts_at < $4
		  AND ends_at > $3
		LIMIT 1
		FOR UPDATE
	`, appt.ProviderID, statusStrings([]Status{StatusPending, StatusConfirmed}), appt.Start, appt.End).Scan(&existingID)

	if err == nil {
		return ErrSlotConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check overlapping appointments: %w", err)
	}

	row := q.QueryRow(ctx, `
		INSERT INTO appointments
			(id, provider_id, client_id, starts_at, ends_at, status, paid, cost_cents, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.ProviderID, appt.ClientID, appt.Start, appt.End, appt.Status, appt.Paid, appt.CostCents, appt.Reason)

	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	*appt = *created
	return nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, from ...Status) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3::text[])
		RETURNING `+appointmentColumns+`
	`, id, to, statusStrings(from))

	return scanAppointment(row)
}

func (r *PgRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string, by ActorRole, from ...Status) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancellation_reason = $3,
		    cancelled_by = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($5::text[])
		RETURNING `+appointmentColumns+`
	`, id, StatusCancelled, reason, string(by), statusStrings(from))

	return scanAppointment(row)
}

func (r *PgRepository) MarkNoShow(ctx context.Context, id uuid.UUID, by NoShowParty, from ...Status) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    no_show_by = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($4::text[])
		RETURNING `+appointmentColumns+`
	`, id, StatusNoShow, string(by), statusStrings(from))

	return scanAppointment(row)
}

func (r *PgRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		ORDER BY starts_at
		LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY starts_at
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) BookedIntervals(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]schedule.Interval, error) {
	rows, err := r.q.Query(ctx, `
		SELECT starts_at, ends_at
		FROM appointments
		WHERE provider_id = $1
		  AND status = ANY($2::text[])
		  AND starts_at < $4
		  AND ends_at > $3
		ORDER BY starts_at
	`, providerID, statusStrings([]Status{StatusPending, StatusConfirmed}), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		result = append(result, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FindConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND starts_at >= $1
		  AND starts_at < $2
		ORDER BY starts_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
