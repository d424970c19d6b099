package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/careclinic/slot-reservation-engine/internal/appointment"
	"github.com/careclinic/slot-reservation-engine/internal/config"
	"github.com/careclinic/slot-reservation-engine/internal/db"
	"github.com/careclinic/slot-reservation-engine/internal/metrics"
	"github.com/careclinic/slot-reservation-engine/internal/notification"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "notification-worker").Logger()
	log.Info().Msg("notification-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("configuration loaded")

	metrics.Register()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	apptRepo := appointment.NewPgRepository(pgPool)
	notifRepo := notification.NewPgRepository(pgPool)
	svc := notification.NewService(notifRepo, apptRepo, notification.LogSender{Log: log}, cfg.NotificationBatch, log)

	// Run once at startup, then on the ticker.
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping notification worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *notification.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.Sweep(runCtx); err != nil {
		log.Error().Err(err).Msg("sweep error")
		return
	}
	log.Info().Dur("duration", time.Since(start)).Msg("sweep complete")
}
