package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	redis  Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. redis may be nil when Redis is
// disabled.
func NewHealthHandler(redis Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{redis: redis, logger: logHandler(logger, "health")}
}

// HealthCheck reports liveness and, when configured, Redis reachability.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "redis ping failed", slog.String("error", err.Error()))
			body["status"] = "degraded"
			body["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			body["redis"] = "ok"
		}
	}

	writeJSON(w, status, body)
}
