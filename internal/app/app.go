// Package app assembles the bot. Wire turns configuration into backend
// adapters, and the mode functions build price feeds, the control loop and
// the operator API on top of them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/convexbot/internal/config"
)

// App runs one configured mode and owns whatever that mode opened.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New returns an App for cfg.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run connects the enabled backends and blocks in the selected mode until
// ctx is cancelled or a component fails. Backends stay open until Close.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	run, ok := map[string]func(context.Context, *Dependencies) error{
		"paper":   a.TradeMode,
		"live":    a.TradeMode,
		"monitor": a.MonitorMode,
	}[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "starting",
		slog.String("component", "app"),
		slog.String("mode", mode),
		slog.String("venue", a.cfg.Execution.Venue),
		slog.String("log_level", a.cfg.LogLevel),
	)
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return run(ctx, deps)
}

// Close releases resources newest first. Later calls do nothing.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("closing backends", slog.String("component", "app"))
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
