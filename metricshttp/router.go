package metricshttp

import (
	"net/http"
	"time"

	"github.com/baechuer/nanobus/amqpx"
	"github.com/baechuer/nanobus/breaker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps wires the health handler's dependencies.
type RouterDeps struct {
	Pool      *amqpx.Pool
	Breaker   *breaker.Breaker
	StartedAt time.Time
}

// NewRouter builds the operator-facing HTTP surface: /healthz and /metrics.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	h := NewHandler(d.Pool, d.Breaker, d.StartedAt)
	r.Get("/healthz", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
