package app

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/service"
	"github.com/alanyoungcy/convexbot/internal/strategy"
)

// watchPrices is the part of the Price Aggregator the watcher drives.
type watchPrices interface {
	Subscribe(mint string, phase domain.Phase)
	MarkOpen(mint string)
	GetLatestPrice(mint string) (domain.Quote, bool)
}

// Watcher stands in for the control loop in monitor mode. It follows the
// positions of the last snapshot and every signalled asset without trading,
// and publishes a View with refreshed prices on each tick.
type Watcher struct {
	interval time.Duration
	prices   watchPrices
	signals  strategy.Drainer[domain.QueueSignal]
	commands strategy.Drainer[domain.Command]
	safety   *service.SafetySupervisor
	clock    clock.Clock
	logger   *slog.Logger

	positions []domain.Position
	watchlist []domain.BounceWatchlistEntry
	watched   map[string]bool
	ticks     uint64

	view atomic.Pointer[domain.View]
}

// NewWatcher creates a Watcher. signals and commands may be nil.
func NewWatcher(interval time.Duration, prices watchPrices, signals strategy.Drainer[domain.QueueSignal], commands strategy.Drainer[domain.Command], safety *service.SafetySupervisor, c clock.Clock, logger *slog.Logger) *Watcher {
	w := &Watcher{
		interval: interval,
		prices:   prices,
		signals:  signals,
		commands: commands,
		safety:   safety,
		clock:    c,
		logger:   logger.With(slog.String("component", "watcher")),
		watched:  make(map[string]bool),
	}
	w.publish(c.Now())
	return w
}

// Restore loads the positions and account of snap for display.
func (w *Watcher) Restore(snap domain.Snapshot) {
	w.safety.Restore(snap.Account, snap.Safety)
	w.watchlist = append([]domain.BounceWatchlistEntry(nil), snap.Watchlist...)
	w.positions = w.positions[:0]
	for i := range snap.Positions {
		p := snap.Positions[i].Clone()
		if p.Mint == "" || p.State.Terminal() {
			continue
		}
		w.positions = append(w.positions, p)
		w.prices.Subscribe(p.Mint, p.Phase)
		w.prices.MarkOpen(p.Mint)
		w.watched[p.Mint] = true
	}
	w.publish(w.clock.Now())
	w.logger.Info("snapshot loaded for monitoring",
		slog.String("snapshot_id", snap.ID),
		slog.Int("positions", len(w.positions)),
	)
}

// Run ticks every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick subscribes newly signalled assets, refreshes position prices and
// publishes a new View. Operator commands are logged and dropped.
func (w *Watcher) Tick(ctx context.Context) {
	if w.signals != nil {
		for _, sig := range w.signals.Drain() {
			if w.watched[sig.Mint] {
				continue
			}
			w.watched[sig.Mint] = true
			w.prices.Subscribe(sig.Mint, sig.Phase)
			w.logger.DebugContext(ctx, "watching signalled asset",
				slog.String("mint", sig.Mint),
				slog.String("source", string(sig.Source)),
			)
		}
	}
	if w.commands != nil {
		for _, cmd := range w.commands.Drain() {
			w.logger.WarnContext(ctx, "command ignored in monitor mode",
				slog.String("kind", string(cmd.Kind)),
				slog.String("mint", cmd.Mint),
			)
		}
	}

	now := w.clock.Now()
	for i := range w.positions {
		p := &w.positions[i]
		q, ok := w.prices.GetLatestPrice(p.Mint)
		if !ok || q.Stale {
			continue
		}
		p.LastPrice = q.Price
		p.LastUpdate = q.UpdatedAt
		if q.Price > p.PeakPrice {
			p.PeakPrice = q.Price
		}
	}
	w.ticks++
	w.publish(now)
}

// View returns the last published view.
func (w *Watcher) View() *domain.View {
	return w.view.Load()
}

func (w *Watcher) publish(now time.Time) {
	positions := make([]domain.Position, len(w.positions))
	for i := range w.positions {
		positions[i] = w.positions[i].Clone()
	}
	w.view.Store(&domain.View{
		Tick:      w.ticks,
		At:        now,
		Positions: positions,
		Safety:    w.safety.Status(),
		Watchlist: append([]domain.BounceWatchlistEntry(nil), w.watchlist...),
	})
}
