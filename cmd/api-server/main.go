package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bookwell/scheduling/internal/api"
	"github.com/bookwell/scheduling/internal/booking"
	"github.com/bookwell/scheduling/internal/config"
	"github.com/bookwell/scheduling/internal/db"
	"github.com/bookwell/scheduling/internal/event"
	"github.com/bookwell/scheduling/internal/logging"
	redisclient "github.com/bookwell/scheduling/internal/redis"
	"github.com/bookwell/scheduling/internal/reschedule"
	"github.com/bookwell/scheduling/internal/schedule"
)

const version = "0.1.0"

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

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
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

	migrator, err := db.NewMigrator(pgPool, cfg.MigrationsDir)
	if err != nil {
		logger.Fatal("migrator init error", zap.Error(err))
	}
	if err := migrator.Up(rootCtx); err != nil {
		logger.Fatal("migrations error", zap.Error(err))
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("migrator close error", zap.Error(err))
	}
	logger.Info("migrations applied")

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

	bookingRepo := booking.NewPgRepository(pgPool)
	scheduleRepo := schedule.NewPgRepository(pgPool)
	rescheduleRepo := reschedule.NewPgRepository(pgPool)
	events := event.NewPgRecorder(pgPool)
	locker := redisclient.NewRedisProviderLocker(rdb, cfg.LockTTL)

	scheduleSvc := schedule.NewService(scheduleRepo, bookingRepo, logger)
	bookingSvc := booking.NewService(bookingRepo, scheduleSvc, locker, events, logger)
	rescheduleSvc := reschedule.NewService(rescheduleRepo, bookingSvc, scheduleSvc, events, logger, cfg.ProposeHorizon, cfg.ProposeMaxSlots)

	router := api.NewRouter(api.RouterConfig{
		Schedule:   scheduleSvc,
		Bookings:   bookingSvc,
		Reschedule: rescheduleSvc,
		Logger:     logger,
		PgPool:     pgPool,
		Redis:      rdb,
		Env:        cfg.Env,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	case <-rootCtx.Done():
		logger.Info("shutting down api-server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}

	logger.Info("api-server stopped")
}
