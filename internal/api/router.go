package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careclinic/slot-reservation-engine/internal/appointment"
	"github.com/careclinic/slot-reservation-engine/internal/availability"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Availability *availability.Service
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Log          zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(IdentityMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Appointments))
		r.Get("/", listAppointmentsHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
		r.Patch("/{id}/status", updateStatusHandler(cfg.Appointments))
	})

	r.Route("/availability", func(r chi.Router) {
		r.Put("/working-hours", setWorkingHoursHandler(cfg.Availability))
		r.Post("/block", blockSlotsHandler(cfg.Availability))
		r.Post("/emergency-block", emergencyBlockHandler(cfg.Availability))
		r.Get("/{doctorID}", availableSlotsHandler(cfg.Availability))
	})

	r.Get("/doctors/{doctorID}/profile", doctorProfileHandler(cfg.Availability))

	return r
}
