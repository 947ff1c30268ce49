package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
)

// StatusHandler serves the bot mode and loop counters.
type StatusHandler struct {
	Mode      string
	Venue     string
	StartedAt time.Time
	views     ViewSource
	clock     clock.Clock
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, venue string, startedAt time.Time, views ViewSource, c clock.Clock) *StatusHandler {
	return &StatusHandler{Mode: mode, Venue: venue, StartedAt: startedAt, views: views, clock: c}
}

// GetStatus responds with mode, uptime and a summary of the last tick.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.Mode,
		"venue":          h.Venue,
		"uptime_seconds": int64(h.clock.Now().Sub(h.StartedAt).Seconds()),
	}
	if v := h.views.View(); v != nil {
		body["tick"] = v.Tick
		body["last_tick_at"] = v.At
		body["open_positions"] = len(v.Positions)
		body["watchlist"] = len(v.Watchlist)
		body["halted"] = v.Safety.Halted
		body["balance_sol"] = v.Safety.Account.BalanceSOL
		body["daily_pnl_sol"] = v.Safety.Account.DailyPnLSOL
	}
	writeJSON(w, http.StatusOK, body)
}
