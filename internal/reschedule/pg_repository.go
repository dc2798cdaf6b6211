package reschedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwell/scheduling/internal/booking"
	"github.com/bookwell/scheduling/internal/db"
)

type PgRepository struct {
	pool     *pgxpool.Pool
	q        db.Querier
	bookings *booking.PgRepository
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{
		pool:     pool,
		q:        pool,
		bookings: booking.NewPgRepository(pool),
	}
}

const requestColumns = `id, original_appointment_id, requester_id, requester_role, reason, description, justification, proposed_dates, selected_date, status, replacement_appointment_id, refund_required, refund_processed, rejection_reason, approved_at, rejected_at, created_at, updated_at`

func scanRequest(row pgx.Row) (*RescheduleRequest, error) {
	var r RescheduleRequest
	var requesterRole string
	var reason string
	var status string
	var selectedDate *time.Time
	var replacementID *uuid.UUID
	var rejectionReason *string

	err := row.Scan(
		&r.ID,
		&r.OriginalAppointmentID,
		&r.RequesterID,
		&requesterRole,
		&reason,
		&r.Description,
		&r.Justification,
		&r.ProposedDates,
		&selectedDate,
		&status,
		&replacementID,
		&r.RefundRequired,
		&r.RefundProcessed,
		&rejectionReason,
		&r.ApprovedAt,
		&r.RejectedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	r.RequesterRole = booking.ActorRole(requesterRole)
	r.Reason = Reason(reason)
	r.Status = Status(status)
	r.SelectedDate = selectedDate
	r.ReplacementAppointmentID = replacementID
	r.RejectionReason = rejectionReason
	return &r, nil
}

func (r *PgRepository) Create(ctx context.Context, req *RescheduleRequest) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO reschedule_requests
			(id, original_appointment_id, requester_id, requester_role, reason, description,
			 justification, proposed_dates, status, refund_required, refund_processed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, now(), now())
		RETURNING `+requestColumns+`
	`, req.ID, req.OriginalAppointmentID, req.RequesterID, string(req.RequesterRole), string(req.Reason),
		req.Description, req.Justification, req.ProposedDates, string(req.Status), req.RefundRequired)

	created, err := scanRequest(row)
	if err != nil {
		return fmt.Errorf("insert reschedule request: %w", err)
	}
	*req = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM reschedule_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (r *PgRepository) FindOpenByOriginal(ctx context.Context, appointmentID uuid.UUID) (*RescheduleRequest, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM reschedule_requests
		WHERE original_appointment_id = $1
		  AND status = ANY($2::text[])
		ORDER BY created_at DESC
		LIMIT 1
	`, appointmentID, []string{string(StatusPending), string(StatusApproved)})
	return scanRequest(row)
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]RescheduleRequest, int, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var status, reason *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}
	if f.Reason != nil {
		s := string(*f.Reason)
		reason = &s
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+prefixedRequestColumns("r")+`, COUNT(*) OVER() AS total
		FROM reschedule_requests r
		JOIN appointments a ON a.id = r.original_appointment_id
		WHERE (CASE WHEN $1 = 'provider' THEN a.provider_id ELSE a.client_id END) = $2
		  AND ($3::text IS NULL OR r.status = $3)
		  AND ($4::text IS NULL OR r.reason = $4)
		ORDER BY r.created_at DESC
		LIMIT $5 OFFSET $6
	`, string(f.Role), f.ActorID, status, reason, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []RescheduleRequest
	var total int
	for rows.Next() {
		req, n, err := scanRequestWithTotal(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *req)
		total = n
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PgRepository) Approve(ctx context.Context, p ApproveParams) (*RescheduleRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	btx := r.bookings.WithTx(tx)

	// Cancel the original booking; the CAS fails if it already reached a
	// terminal state concurrently.
	_, err = btx.MarkCancelled(ctx, p.OriginalAppointmentID, p.CancelReason, p.CancelActor,
		booking.StatusPending, booking.StatusConfirmed)
	if err != nil {
		if errors.Is(err, booking.ErrAppointmentNotFound) {
			return nil, ErrOriginalNotActive
		}
		return nil, fmt.Errorf("cancel original appointment: %w", err)
	}

	var replacementID *uuid.UUID
	if p.Replacement != nil {
		if err := btx.CreateIfFree(ctx, p.Replacement); err != nil {
			return nil, fmt.Errorf("create replacement appointment: %w", err)
		}
		replacementID = &p.Replacement.ID
	}

	row := tx.QueryRow(ctx, `
		UPDATE reschedule_requests
		SET status = $2,
		    selected_date = $3,
		    approved_at = $4,
		    replacement_appointment_id = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status = $6
		RETURNING `+requestColumns+`
	`, p.RequestID, string(StatusApproved), p.SelectedDate, p.ApprovedAt, replacementID, string(StatusPending))

	updated, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			// The request left pending while we worked: the loser reports it.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("approve reschedule request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return updated, nil
}

func (r *PgRepository) MarkRejected(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*RescheduleRequest, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE reschedule_requests
		SET status = $2,
		    rejection_reason = $3,
		    rejected_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = $5
		RETURNING `+requestColumns+`
	`, id, string(StatusRejected), reason, at, string(StatusPending))

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return req, nil
}

func (r *PgRepository) MarkCancelled(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE reschedule_requests
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+requestColumns+`
	`, id, string(StatusCancelled), string(StatusPending))

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	return req, nil
}

func (r *PgRepository) SetRefundProcessed(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE reschedule_requests
		SET refund_processed = true,
		    updated_at = now()
		WHERE id = $1
		  AND refund_required = true
		RETURNING `+requestColumns+`
	`, id)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			// Distinguish a missing row from one with no refund obligation.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrRefundNotRequired
		}
		return nil, err
	}
	return req, nil
}

func scanRequestWithTotal(rows pgx.Rows) (*RescheduleRequest, int, error) {
	var r RescheduleRequest
	var requesterRole string
	var reason string
	var status string
	var total int

	err := rows.Scan(
		&r.ID,
		&r.OriginalAppointmentID,
		&r.RequesterID,
		&requesterRole,
		&reason,
		&r.Description,
		&r.Justification,
		&r.ProposedDates,
		&r.SelectedDate,
		&status,
		&r.ReplacementAppointmentID,
		&r.RefundRequired,
		&r.RefundProcessed,
		&r.RejectionReason,
		&r.ApprovedAt,
		&r.RejectedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
		&total,
	)
	if err != nil {
		return nil, 0, err
	}

	r.RequesterRole = booking.ActorRole(requesterRole)
	r.Reason = Reason(reason)
	r.Status = Status(status)
	return &r, total, nil
}

func prefixedRequestColumns(alias string) string {
	return alias + ".id, " + alias + ".original_appointment_id, " + alias + ".requester_id, " +
		alias + ".requester_role, " + alias + ".reason, " + alias + ".description, " +
		alias + ".justification, " + alias + ".proposed_dates, " + alias + ".selected_date, " +
		alias + ".status, " + alias + ".replacement_appointment_id, " + alias + ".refund_required, " +
		alias + ".refund_processed, " + alias + ".rejection_reason, " + alias + ".approved_at, " +
		alias + ".rejected_at, " + alias + ".created_at, " + alias + ".updated_at"
}
