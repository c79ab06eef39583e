package metricshttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/baechuer/nanobus/amqpx"
	"github.com/baechuer/nanobus/breaker"
)

// CheckResult is the outcome of one dependency health probe.
type CheckResult struct {
	Status string `json:"status"` // "up" or "down"
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the body returned by the liveness endpoint.
type HealthResponse struct {
	Status string                 `json:"status"` // "healthy" or "unhealthy"
	Uptime string                 `json:"uptime"`
	Checks map[string]CheckResult `json:"checks"`
}

// Handler serves the liveness endpoint over the process-wide AMQP pool
// and outage breaker.
type Handler struct {
	pool      *amqpx.Pool
	br        *breaker.Breaker
	startedAt time.Time
}

// NewHandler builds a Handler. br may be nil if the caller doesn't run
// an outage breaker for this process.
func NewHandler(pool *amqpx.Pool, br *breaker.Breaker, startedAt time.Time) *Handler {
	return &Handler{pool: pool, br: br, startedAt: startedAt}
}

// HealthCheck reports AMQP connection liveness and breaker outage state.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]CheckResult)
	status := "healthy"

	conn := h.checkConnection(ctx)
	checks["amqp_connection"] = conn
	if conn.Status != "up" {
		status = "unhealthy"
	}

	if h.br != nil {
		if h.br.InOutage() {
			checks["breaker"] = CheckResult{Status: "down", Error: "breaker is in outage mode"}
			status = "unhealthy"
		} else {
			checks["breaker"] = CheckResult{Status: "up"}
		}
	}

	resp := HealthResponse{
		Status: status,
		Uptime: time.Since(h.startedAt).String(),
		Checks: checks,
	}

	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) checkConnection(ctx context.Context) CheckResult {
	if h.pool == nil {
		return CheckResult{Status: "down", Error: "pool not configured"}
	}
	if !h.pool.IsConnected() {
		return CheckResult{Status: "down", Error: "connection not established"}
	}
	if err := h.pool.HealthCheck(ctx); err != nil {
		return CheckResult{Status: "down", Error: err.Error()}
	}
	return CheckResult{Status: "up"}
}
