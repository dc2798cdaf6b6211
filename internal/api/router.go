package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bookwell/scheduling/internal/booking"
	"github.com/bookwell/scheduling/internal/reschedule"
	"github.com/bookwell/scheduling/internal/schedule"
)

// ScheduleService is the availability surface the handlers need.
type ScheduleService interface {
	CreateBlock(ctx context.Context, p schedule.CreateBlockParams) (*schedule.WeeklyAvailabilityBlock, error)
	UpdateBlock(ctx context.Context, id uuid.UUID, p schedule.UpdateBlockParams) (*schedule.WeeklyAvailabilityBlock, error)
	ListBlocks(ctx context.Context, providerID uuid.UUID) ([]schedule.WeeklyAvailabilityBlock, error)
	DaySchedule(ctx context.Context, providerID uuid.UUID, date time.Time) (schedule.DaySchedule, error)
}

// BookingService is the appointment surface the handlers need.
type BookingService interface {
	Create(ctx context.Context, p booking.CreateParams) (*booking.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]booking.Appointment, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]booking.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actor booking.ActorRole, reason string) (*booking.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID, whoMissed booking.NoShowParty, reason string) (*booking.Appointment, bool, error)
}

// RescheduleService is the reschedule-request surface the handlers need.
type RescheduleService interface {
	RequestManual(ctx context.Context, p reschedule.ManualRequestParams) (*reschedule.RescheduleRequest, error)
	RequestAutomatic(ctx context.Context, original *booking.Appointment, cause reschedule.Reason) (*reschedule.RescheduleRequest, error)
	Approve(ctx context.Context, id uuid.UUID, approver booking.ActorRole, selectedDate time.Time, createReplacement bool) (*reschedule.RescheduleRequest, error)
	Reject(ctx context.Context, id uuid.UUID, rejecter booking.ActorRole, reason string) (*reschedule.RescheduleRequest, error)
	Cancel(ctx context.Context, id uuid.UUID, actor booking.ActorRole, reason string) (*reschedule.RescheduleRequest, error)
	SetRefundProcessed(ctx context.Context, id uuid.UUID) (*reschedule.RescheduleRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*reschedule.RescheduleRequest, error)
	List(ctx context.Context, f reschedule.ListFilter) ([]reschedule.RescheduleRequest, int, error)
	ListPending(ctx context.Context, actorID uuid.UUID, role booking.ActorRole) ([]reschedule.RescheduleRequest, error)
}

type RouterConfig struct {
	Schedule   ScheduleService
	Bookings   BookingService
	Reschedule RescheduleService
	Logger     *zap.Logger
	PgPool     *pgxpool.Pool
	Redis      *redis.Client
	Env        string
	Version    string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Post("/availability", createBlockHandler(cfg.Schedule))
		r.Get("/availability", listBlocksHandler(cfg.Schedule))
		r.Get("/slots", dayScheduleHandler(cfg.Schedule))
	})
	r.Patch("/availability/{blockID}", updateBlockHandler(cfg.Schedule))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Bookings))
		r.Get("/", listAppointmentsHandler(cfg.Bookings))
		r.Get("/{id}", getAppointmentHandler(cfg.Bookings))
		r.Post("/{id}/confirm", confirmAppointmentHandler(cfg.Bookings))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Bookings))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))
		r.Post("/{id}/no-show", noShowHandler(cfg.Bookings, cfg.Reschedule))
	})

	r.Route("/reschedule-requests", func(r chi.Router) {
		r.Post("/", createRescheduleHandler(cfg.Reschedule))
		r.Get("/", listReschedulesHandler(cfg.Reschedule))
		r.Get("/pending", listPendingReschedulesHandler(cfg.Reschedule))
		r.Get("/{id}", getRescheduleHandler(cfg.Reschedule))
		r.Post("/{id}/approve", approveRescheduleHandler(cfg.Reschedule))
		r.Post("/{id}/reject", rejectRescheduleHandler(cfg.Reschedule))
		r.Post("/{id}/cancel", cancelRescheduleHandler(cfg.Reschedule))
		r.Post("/{id}/refund-processed", refundProcessedHandler(cfg.Reschedule))
	})

	return r
}
