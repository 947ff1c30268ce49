package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/feed"
)

// CommandPusher enqueues operator commands for the next tick.
type CommandPusher interface {
	Push(cmd domain.Command) error
}

// ControlHandler accepts operator commands. Commands are only queued here;
// the control loop applies them inside its next tick.
type ControlHandler struct {
	commands CommandPusher
	clock    clock.Clock
	logger   *slog.Logger
}

// NewControlHandler creates a ControlHandler.
func NewControlHandler(commands CommandPusher, c clock.Clock, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{commands: commands, clock: c, logger: logHandler(logger, "control")}
}

type controlRequest struct {
	Mint       string  `json:"mint"`
	BalanceSOL float64 `json:"balance_sol"`
}

// PostCommand queues a resume, stop, force_sell or rollover command. The
// optional JSON body carries mint for force_sell and balance_sol for
// rollover.
// POST /api/control/{command}
func (h *ControlHandler) PostCommand(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if r.Body != nil {
		err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Mint == "" {
		req.Mint = r.URL.Query().Get("mint")
	}

	cmd, err := feed.ValidateCommand(domain.Command{
		ID:         uuid.NewString(),
		Kind:       domain.CommandKind(r.PathValue("command")),
		Mint:       req.Mint,
		BalanceSOL: req.BalanceSOL,
	}, h.clock.Now())
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, feed.ErrUnknownCommand) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	if err := h.commands.Push(cmd); err != nil {
		h.logger.WarnContext(r.Context(), "command rejected",
			slog.String("command", string(cmd.Kind)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "command queued",
		slog.String("id", cmd.ID),
		slog.String("command", string(cmd.Kind)),
		slog.String("mint", cmd.Mint),
	)
	writeJSON(w, http.StatusAccepted, cmd)
}
