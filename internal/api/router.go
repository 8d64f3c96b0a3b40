package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oncotrack/chemo-scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service *scheduling.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", listAppointmentsHandler(cfg.Service))
		r.Post("/", createAppointmentHandler(cfg.Service))
		r.Post("/bulk-update", bulkUpdateAppointmentsHandler(cfg.Service))
		r.Post("/bulk-reschedule", bulkRescheduleAppointmentsHandler(cfg.Service))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Service))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
	})

	r.Route("/prescriptions", func(r chi.Router) {
		r.Post("/", createPrescriptionHandler(cfg.Service))
		r.Get("/{id}", getPrescriptionHandler(cfg.Service))
		r.Post("/{id}/status", setPrescriptionStatusHandler(cfg.Service))
		r.Post("/{id}/replace", replacePrescriptionHandler(cfg.Service))
		r.Post("/{id}/reconcile", reconcilePrescriptionHandler(cfg.Service))
	})

	return r
}
