package event

import (
	"context"
	"fmt"
	"time"

	"github.com/bookwell/scheduling/internal/db"
)

// Recorder appends domain events to the outbox. Inserts are best effort
// from the caller's point of view; a failed insert must not fail the
// business operation that produced it.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

type PgRecorder struct {
	q db.Querier
}

func NewPgRecorder(q db.Querier) *PgRecorder {
	return &PgRecorder{q: q}
}

func (r *PgRecorder) Record(ctx context.Context, rec Record) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, request_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, rec.EventType, rec.AppointmentID, rec.RequestID, rec.Payload, nullableTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
