package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
)

// Pinger is a dependency whose reachability is reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	views  ViewSource
	deps   map[string]Pinger
	maxLag time.Duration
	clock  clock.Clock
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. The loop counts as unhealthy
// when its last published view is older than maxLag.
func NewHealthHandler(views ViewSource, deps map[string]Pinger, maxLag time.Duration, c clock.Clock, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		views:  views,
		deps:   deps,
		maxLag: maxLag,
		clock:  c,
		logger: logHandler(logger, "health"),
	}
}

// HealthCheck reports loop liveness and dependency reachability.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	now := h.clock.Now()
	status := http.StatusOK
	body := map[string]any{
		"status":    "ok",
		"timestamp": now.UTC().Format(time.RFC3339),
	}

	if v := h.views.View(); v == nil {
		body["loop"] = "starting"
	} else if lag := now.Sub(v.At); h.maxLag > 0 && lag > h.maxLag {
		body["loop"] = "stalled"
		body["loop_lag"] = lag.String()
		status = http.StatusServiceUnavailable
	} else {
		body["loop"] = "running"
		body["tick"] = v.Tick
	}

	deps := make(map[string]string, len(h.deps))
	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}
