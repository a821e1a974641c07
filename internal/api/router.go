package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careops/priority-token-scheduling/internal/persist"
	redisclient "github.com/careops/priority-token-scheduling/internal/redis"
	"github.com/careops/priority-token-scheduling/internal/token"
)

type RouterConfig struct {
	Service   *token.Service
	Locker    redisclient.Locker
	Persister persist.Persister
	PgPool    *pgxpool.Pool // nil when the json driver is in use
	Redis     *redis.Client // nil when day locking is disabled
	Logger    zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := NewHandlers(cfg.Service, cfg.Locker, cfg.Persister, cfg.Logger)

	r.Post("/doctors", h.createDoctor)
	r.Get("/doctors", h.listDoctors)
	r.Get("/doctors/{id}/slots", h.listSlots)
	r.Get("/doctors/{id}/schedule", h.getSchedule)

	r.Post("/tokens", h.allocateToken)
	r.Post("/tokens/{id}/cancel", h.cancelToken)
	r.Post("/tokens/{id}/no-show", h.noShowToken)

	return r
}
