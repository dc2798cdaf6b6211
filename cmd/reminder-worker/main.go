package main

import (
	"context"
	"encoding/json"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bookwell/scheduling/internal/booking"
	"github.com/bookwell/scheduling/internal/config"
	"github.com/bookwell/scheduling/internal/db"
	"github.com/bookwell/scheduling/internal/event"
	"github.com/bookwell/scheduling/internal/logging"
	redisclient "github.com/bookwell/scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("lead_time", cfg.ReminderLead),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	w := &worker{
		repo:   booking.NewPgRepository(pgPool),
		events: event.NewPgRecorder(pgPool),
		rdb:    rdb,
		logger: logger,
		lead:   cfg.ReminderLead,
	}

	// Run once at startup
	w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			w.runOnce(rootCtx)
		}
	}
}

type worker struct {
	repo   booking.Repository
	events event.Recorder
	rdb    *redis.Client
	logger *zap.Logger
	lead   time.Duration
}

// runOnce emits a REMINDER_DUE event for every confirmed appointment starting
// within the lead window. A Redis SETNX key per appointment keeps repeated
// runs, and concurrent workers, from emitting duplicates.
func (w *worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	upcoming, err := w.repo.FindConfirmedStartingBetween(runCtx, start, start.Add(w.lead))
	if err != nil {
		w.logger.Error("load upcoming appointments", zap.Error(err))
		return
	}

	sent := 0
	for i := range upcoming {
		appt := &upcoming[i]

		key := "reminder:" + appt.ID.String()
		// Keep the dedupe key until well after the appointment has started.
		ttl := time.Until(appt.Start) + w.lead
		ok, err := w.rdb.SetNX(runCtx, key, "1", ttl).Result()
		if err != nil {
			w.logger.Error("reminder dedupe check", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		payload, _ := json.Marshal(map[string]any{
			"provider_id": appt.ProviderID.String(),
			"client_id":   appt.ClientID.String(),
			"starts_at":   appt.Start,
		})
		apptID := appt.ID
		rec := event.Record{
			EventType:     event.TypeReminderDue,
			AppointmentID: &apptID,
			Payload:       payload,
			CreatedAt:     time.Now(),
		}
		if err := w.events.Record(runCtx, rec); err != nil {
			w.logger.Error("insert reminder event", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			// Drop the dedupe key so the next run retries this appointment.
			w.rdb.Del(runCtx, key)
			continue
		}
		sent++
	}

	w.logger.Info("reminder run complete",
		zap.Int("upcoming", len(upcoming)),
		zap.Int("reminders_sent", sent),
		zap.Duration("took", time.Since(start)),
	)
}
