package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
)

func (e *Engine) applyCommands(ctx context.Context, now time.Time) {
	if e.deps.Commands == nil {
		return
	}
	for _, cmd := range e.deps.Commands.Drain() {
		e.logger.InfoContext(ctx, "applying command",
			slog.String("command", string(cmd.Kind)),
			slog.String("mint", cmd.Mint),
		)
		switch cmd.Kind {
		case domain.CommandResume:
			e.emitSafety(e.deps.Safety.Resume(), now)
		case domain.CommandStop:
			e.deps.Safety.Stop("operator command")
		case domain.CommandForceSell:
			p, ok := e.positions[cmd.Mint]
			if !ok {
				e.logger.WarnContext(ctx, "force sell for unknown position", slog.String("mint", cmd.Mint))
				continue
			}
			p.PendingExit = ReasonForceSell
		case domain.CommandRollover:
			e.emitSafety(e.deps.Safety.Rollover(cmd.BalanceSOL), now)
		default:
			metrics.RecordQueueDrop("commands", "unknown_kind")
		}
	}
}

// drainSignals empties the signal queue. Sells mark their position for exit
// right away; buys are returned for the entry phase of the tick.
func (e *Engine) drainSignals(ctx context.Context, now time.Time) []domain.QueueSignal {
	if e.deps.Signals == nil {
		return nil
	}
	var buys []domain.QueueSignal
	for _, sig := range e.deps.Signals.Drain() {
		if sig.ID != "" && e.deps.Dedup != nil && e.deps.Dedup.IsDuplicate(sig.ID) {
			metrics.RecordQueueDrop("signals", "duplicate")
			continue
		}
		switch sig.Action {
		case domain.ActionBuy:
			buys = append(buys, sig)
		case domain.ActionSell:
			p, ok := e.positions[sig.Mint]
			if !ok {
				metrics.RecordQueueDrop("signals", "no_position")
				continue
			}
			if p.PendingExit == "" {
				p.PendingExit = ReasonSignalSell
			}
		default:
			metrics.RecordQueueDrop("signals", "unknown_action")
			e.logger.WarnContext(ctx, "dropping signal with unknown action",
				slog.String("id", sig.ID),
				slog.String("action", string(sig.Action)),
			)
		}
	}
	return buys
}

// Snapshot captures the full persisted state. It must be called from the
// goroutine that runs Tick.
func (e *Engine) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		ID:           uuid.NewString(),
		TakenAt:      e.deps.Clock.Now(),
		Positions:    e.clonePositions(),
		Account:      e.deps.Safety.Account(),
		Safety:       e.deps.Safety.State(),
		TradedTokens: make(map[string]time.Time, len(e.traded)),
	}
	for mint, at := range e.traded {
		snap.TradedTokens[mint] = at
	}
	if e.deps.Bounce != nil {
		snap.Watchlist = e.deps.Bounce.Entries()
	}
	return snap
}

// Restore replaces the core state with snap and resubscribes every tracked
// asset. Positions held longer than StaleMaxHold exit on the next tick.
func (e *Engine) Restore(snap domain.Snapshot) {
	now := e.deps.Clock.Now()
	e.positions = make(map[string]*domain.Position, len(snap.Positions))
	e.traded = make(map[string]time.Time, len(snap.TradedTokens))
	for mint, at := range snap.TradedTokens {
		e.traded[mint] = at
	}

	stale := 0
	for i := range snap.Positions {
		p := snap.Positions[i].Clone()
		if p.Mint == "" || !p.State.Valid() || p.State.Terminal() {
			e.logger.Warn("skipping unrestorable position",
				slog.String("mint", p.Mint),
				slog.String("state", string(p.State)),
			)
			continue
		}
		if p.Milestones == nil {
			p.Milestones = map[string]bool{}
		}
		if e.cfg.StaleMaxHold > 0 && now.Sub(p.OpenedAt) > e.cfg.StaleMaxHold && p.PendingExit == "" {
			p.PendingExit = ReasonStaleRestore
			e.traded[p.Mint] = now
			stale++
		}
		e.positions[p.Mint] = &p
		e.deps.Prices.Subscribe(p.Mint, p.Phase)
		e.deps.Prices.MarkOpen(p.Mint)
	}

	e.deps.Safety.Restore(snap.Account, snap.Safety)
	if e.deps.Bounce != nil {
		e.deps.Bounce.Restore(snap.Watchlist)
		for _, w := range snap.Watchlist {
			if _, held := e.positions[w.Mint]; held {
				continue
			}
			e.deps.Prices.Subscribe(w.Mint, w.Phase)
			e.deps.Prices.MarkClosed(w.Mint)
		}
	}
	e.publishView(now)

	e.logger.Info("state restored",
		slog.String("snapshot_id", snap.ID),
		slog.Time("taken_at", snap.TakenAt),
		slog.Int("positions", len(e.positions)),
		slog.Int("stale", stale),
		slog.Int("watchlist", len(snap.Watchlist)),
	)
}
