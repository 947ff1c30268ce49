package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
)

// ReasonSignalSell is the exit reason for a sell drained from a signal queue.
const ReasonSignalSell = "signal-sell"

func (e *Engine) processPosition(ctx context.Context, p *domain.Position, now time.Time) {
	if p.PendingExit != "" {
		e.closePosition(ctx, p, p.PendingExit, now)
		return
	}

	// A stale quote is still used: exiting on an old price beats not exiting.
	price := p.LastPrice
	if q, ok := e.deps.Prices.GetLatestPrice(p.Mint); ok && q.Price > 0 {
		price = q.Price
	}
	if price <= 0 {
		return
	}
	e.tracker.Track(p.Mint, price, now)
	crashed := e.crashed(p, now)
	p.Observe(price, now)
	pnl := p.PnLPct(price)
	p.Runner = RunnerFor(pnl)

	var (
		tr   domain.StateTransition
		fire bool
	)
	info, err := e.deps.Market.TokenInfo(ctx, p.Mint)
	if err != nil {
		e.logger.DebugContext(ctx, "market snapshot unavailable",
			slog.String("mint", p.Mint),
			slog.String("error", err.Error()),
		)
		tr, fire = e.lifecycle.CheckExit(p, pnl, now)
	} else {
		sig := e.scorer.Score(info)
		e.classify(p, sig, pnl)
		tr, fire = e.lifecycle.Evaluate(p, sig, pnl, now)
	}
	if crashed && !(fire && tr.To == domain.StateExit) {
		tr, fire = ForceExit(p, ReasonCrash), true
	}

	if e.exits.MaybeArmBreakEven(p, pnl) {
		e.logger.InfoContext(ctx, "break-even armed",
			slog.String("mint", p.Mint),
			slog.Float64("pnl_pct", pnl),
		)
	}

	if fire {
		if tr.To == domain.StateExit {
			if e.suppressed(ctx, p, tr.Reason, now) {
				return
			}
			e.closePosition(ctx, p, tr.Reason, now)
			return
		}
		e.escalate(ctx, p, tr, price, now)
	}

	if reason, hit := e.exits.CheckTrailing(p, price, pnl); hit {
		if e.suppressed(ctx, p, reason, now) {
			return
		}
		e.closePosition(ctx, p, reason, now)
		return
	}

	for _, pe := range e.exits.MaybeTakePartialExits(p, p.Risk, p.Runner, pnl) {
		if !e.sellPartial(ctx, p, pe, price, now) {
			return
		}
	}

	if tr, ok := e.lifecycle.ShouldEnterMoonbag(p); ok {
		e.transition(ctx, p, tr, now)
	}
}

func (e *Engine) classify(p *domain.Position, sig domain.SelectionSignals, pnl float64) {
	p.Narrative = NarrativeFor(pnl, sig.Score)
	p.EAS = ExpectedAsymmetry(sig.Score, e.tracker.Momentum(p.Mint))
	p.Risk = NextRisk(e.risk, p.Risk, p.EAS)
}

func (e *Engine) crashed(p *domain.Position, now time.Time) bool {
	if e.cfg.CrashThreshold <= 0 || now.Sub(p.OpenedAt) < e.cfg.CrashWarmup {
		return false
	}
	return e.tracker.TickDrop(p.Mint) > e.cfg.CrashThreshold
}

// suppressed swallows stop-type exits inside the grace window.
func (e *Engine) suppressed(ctx context.Context, p *domain.Position, reason string, now time.Time) bool {
	if !IsStopReason(reason) || !e.exits.Suppress(p, now) {
		return false
	}
	e.logger.InfoContext(ctx, "stop suppressed in grace window",
		slog.String("mint", p.Mint),
		slog.String("reason", reason),
		slog.Int("breaches", p.GraceBreaches),
	)
	return true
}

func (e *Engine) transition(ctx context.Context, p *domain.Position, tr domain.StateTransition, now time.Time) bool {
	if !e.lifecycle.Apply(p, tr, now) {
		return false
	}
	metrics.RecordTransition(string(tr.From), string(tr.To))
	e.logger.InfoContext(ctx, "position state changed",
		slog.String("mint", p.Mint),
		slog.String("from", string(tr.From)),
		slog.String("to", string(tr.To)),
		slog.String("reason", tr.Reason),
	)
	return true
}

func (e *Engine) addSize(to domain.LifecycleState) float64 {
	switch to {
	case domain.StateConfirm:
		return e.cfg.ConfirmAddSOL
	case domain.StateConviction:
		return e.cfg.ConvictionAddSOL
	default:
		return 0
	}
}

// escalate tries to add size for an upward transition. The transition is
// applied whether or not the add goes through. Adds grow the stake but keep
// the scout entry price, so PnL and stop thresholds stay anchored to it.
func (e *Engine) escalate(ctx context.Context, p *domain.Position, tr domain.StateTransition, price float64, now time.Time) {
	add := e.addSize(tr.To)
	if room := e.cfg.MaxPositionSizeSOL - p.SizeSOL; add > room {
		add = room
	}
	var trade *domain.TradeRecord
	if add > 0 {
		if ok, why := e.deps.Safety.CanTrade(add, e.cfg.MaxPositions, len(e.positions)-1); !ok {
			e.logger.InfoContext(ctx, "escalation add refused",
				slog.String("mint", p.Mint),
				slog.String("reason", why),
			)
		} else {
			fill := e.deps.Executor.Buy(ctx, p.Mint, add, price, tr.Reason)
			trade = e.newTrade(p, domain.SideBuy, fill, tr.Reason, now)
			if fill.Usable() {
				e.deps.Safety.RecordBuy(fill.FilledSizeSOL)
				p.SizeSOL += fill.FilledSizeSOL
				p.InitialSizeSOL += fill.FilledSizeSOL
				p.TokenAmountRaw += fill.TokenAmountRaw
			} else {
				e.logger.WarnContext(ctx, "escalation buy failed",
					slog.String("mint", p.Mint),
					slog.String("error", fill.Err),
				)
			}
		}
	}
	if e.transition(ctx, p, tr, now) {
		e.emit(domain.Event{Kind: domain.EventEscalation, Mint: p.Mint, Symbol: p.Symbol, Reason: tr.Reason, Trade: trade, At: now})
	}
}

// sellPartial executes one milestone. It reports false when the position is
// gone and the caller must stop touching it.
func (e *Engine) sellPartial(ctx context.Context, p *domain.Position, pe PartialExit, price float64, now time.Time) bool {
	reason := "partial:" + pe.Milestone
	fill := e.deps.Executor.Sell(ctx, p.Mint, pe.Fraction, price, reason)
	trade := e.newTrade(p, domain.SideSell, fill, reason, now)
	if fill.NoBalance {
		e.dropGhost(ctx, p, reason, trade, now)
		return false
	}
	if !fill.Usable() {
		// Not sold, so the milestone may fire again on a later tick.
		delete(p.Milestones, pe.Milestone)
		e.logger.WarnContext(ctx, "partial exit failed",
			slog.String("mint", p.Mint),
			slog.String("milestone", pe.Milestone),
			slog.String("error", fill.Err),
		)
		e.emit(domain.Event{Kind: domain.EventPartialExit, Mint: p.Mint, Symbol: p.Symbol, Reason: reason, Trade: trade, At: now})
		return true
	}

	basis := p.SizeSOL * pe.Fraction
	sold := fill.TokenAmountRaw
	if sold == 0 || sold > p.TokenAmountRaw {
		sold = uint64(float64(p.TokenAmountRaw) * pe.Fraction)
	}
	pnl := fill.FilledSizeSOL - basis
	p.SizeSOL -= basis
	p.TokenAmountRaw -= sold
	p.RealizedPnLSOL += pnl
	e.deps.Safety.RecordSell(fill.FilledSizeSOL)
	trade.PnLSOL = pnl

	e.logger.InfoContext(ctx, "partial exit taken",
		slog.String("mint", p.Mint),
		slog.String("milestone", pe.Milestone),
		slog.Float64("fraction", pe.Fraction),
		slog.Float64("pnl_sol", pnl),
	)
	e.emit(domain.Event{Kind: domain.EventPartialExit, Mint: p.Mint, Symbol: p.Symbol, Reason: reason, PnLSOL: pnl, Trade: trade, At: now})
	return true
}

// closePosition liquidates p. A failed sell keeps the position and retries
// on the next tick; a no-balance report removes it as a ghost.
func (e *Engine) closePosition(ctx context.Context, p *domain.Position, reason string, now time.Time) {
	fill := e.deps.Executor.SellAll(ctx, p.Mint, p.LastPrice, reason, p.TokenAmountRaw)
	trade := e.newTrade(p, domain.SideSell, fill, reason, now)
	if fill.NoBalance {
		e.dropGhost(ctx, p, reason, trade, now)
		return
	}
	if !fill.Usable() {
		p.PendingExit = reason
		e.logger.WarnContext(ctx, "exit failed, retrying next tick",
			slog.String("mint", p.Mint),
			slog.String("reason", reason),
			slog.String("error", fill.Err),
		)
		e.emit(domain.Event{Kind: domain.EventExit, Mint: p.Mint, Symbol: p.Symbol, Reason: reason, Trade: trade, At: now})
		return
	}

	pnl := p.RealizedPnLSOL + fill.FilledSizeSOL - p.SizeSOL
	trade.PnLSOL = pnl
	e.deps.Safety.RecordSell(fill.FilledSizeSOL)
	for _, ev := range e.deps.Safety.RecordTradeResult(pnl, reason) {
		e.emitSafety(ev, now)
	}

	e.lifecycle.Apply(p, ForceExit(p, reason), now)
	delete(e.positions, p.Mint)
	e.traded[p.Mint] = now
	e.tracker.Forget(p.Mint)
	if e.deps.Bounce != nil && e.deps.Bounce.Watch(p, fill.FilledPrice, pnl, reason, now) {
		e.deps.Prices.MarkClosed(p.Mint)
	} else {
		e.deps.Prices.Unsubscribe(p.Mint)
	}
	metrics.RecordExit(reason)

	e.logger.InfoContext(ctx, "position closed",
		slog.String("mint", p.Mint),
		slog.String("reason", reason),
		slog.Float64("pnl_sol", pnl),
		slog.Duration("held", now.Sub(p.OpenedAt)),
	)
	e.emit(domain.Event{Kind: domain.EventExit, Mint: p.Mint, Symbol: p.Symbol, Reason: reason, PnLSOL: pnl, Trade: trade, At: now})
}

// dropGhost removes a position whose holding no longer exists. The stake
// still held on paper is booked as lost, so the daily loss limit and the
// losing streak see it.
func (e *Engine) dropGhost(ctx context.Context, p *domain.Position, reason string, trade *domain.TradeRecord, now time.Time) {
	pnl := p.RealizedPnLSOL - p.SizeSOL
	if trade != nil {
		trade.PnLSOL = pnl
	}
	for _, ev := range e.deps.Safety.RecordTradeResult(pnl, "ghost:"+reason) {
		e.emitSafety(ev, now)
	}

	delete(e.positions, p.Mint)
	e.traded[p.Mint] = now
	e.tracker.Forget(p.Mint)
	e.deps.Prices.Unsubscribe(p.Mint)
	metrics.RecordGhost()
	e.logger.WarnContext(ctx, "ghost position removed",
		slog.String("mint", p.Mint),
		slog.String("reason", reason),
		slog.Float64("size_sol", p.SizeSOL),
		slog.Float64("pnl_sol", pnl),
	)
	e.emit(domain.Event{Kind: domain.EventGhost, Mint: p.Mint, Symbol: p.Symbol, Reason: reason, PnLSOL: pnl, Trade: trade, At: now})
}

// enter opens a SCOUT position for a buy signal.
func (e *Engine) enter(ctx context.Context, sig domain.QueueSignal, now time.Time) {
	if _, held := e.positions[sig.Mint]; held {
		e.logger.DebugContext(ctx, "entry skipped, already held", slog.String("mint", sig.Mint))
		return
	}
	bounce := sig.Source == domain.SourceBounce
	if at, ok := e.traded[sig.Mint]; ok && !bounce && now.Sub(at) < e.cfg.TradedCooldown {
		e.logger.InfoContext(ctx, "entry skipped, recently traded",
			slog.String("mint", sig.Mint),
			slog.Duration("since_exit", now.Sub(at)),
		)
		return
	}

	size := sig.SizeSOL
	if size <= 0 {
		size = e.cfg.ScoutSizeSOL
	}
	if e.cfg.MaxPositionSizeSOL > 0 && size > e.cfg.MaxPositionSizeSOL {
		size = e.cfg.MaxPositionSizeSOL
	}
	if ok, why := e.deps.Safety.CanTrade(size, e.cfg.MaxPositions, len(e.positions)); !ok {
		e.logger.InfoContext(ctx, "entry refused",
			slog.String("mint", sig.Mint),
			slog.String("source", string(sig.Source)),
			slog.String("reason", why),
		)
		return
	}

	phase := sig.Phase
	if phase == "" {
		phase = domain.PhaseUnknown
	}
	reason := sig.Reason
	if reason == "" {
		reason = string(sig.Source)
	}
	e.deps.Prices.Subscribe(sig.Mint, phase)
	var ref float64
	if q, ok := e.deps.Prices.GetLatestPrice(sig.Mint); ok {
		ref = q.Price
	}

	fill := e.deps.Executor.Buy(ctx, sig.Mint, size, ref, reason)
	probe := &domain.Position{Mint: sig.Mint, Symbol: sig.Symbol, State: domain.StateScout}
	trade := e.newTrade(probe, domain.SideBuy, fill, reason, now)
	if !fill.Usable() {
		if e.deps.Bounce == nil || !e.deps.Bounce.Has(sig.Mint) {
			e.deps.Prices.Unsubscribe(sig.Mint)
		}
		e.logger.WarnContext(ctx, "entry buy failed",
			slog.String("mint", sig.Mint),
			slog.String("error", fill.Err),
		)
		e.emit(domain.Event{Kind: domain.EventEntry, Mint: sig.Mint, Symbol: sig.Symbol, Reason: reason, Trade: trade, At: now})
		return
	}

	e.deps.Safety.RecordBuy(fill.FilledSizeSOL)
	p := domain.NewPosition(sig.Mint, sig.Symbol, phase, fill, now, e.lifecycle.Config().ScoutTimeout)
	if bounce {
		p.BounceReentry = 1
	}
	e.positions[p.Mint] = p
	e.deps.Prices.SetInitialPrice(p.Mint, fill.FilledPrice)
	e.tracker.Track(p.Mint, fill.FilledPrice, now)

	e.logger.InfoContext(ctx, "position opened",
		slog.String("mint", p.Mint),
		slog.String("source", string(sig.Source)),
		slog.Float64("size_sol", p.SizeSOL),
		slog.Float64("price", p.EntryPrice),
	)
	e.emit(domain.Event{Kind: domain.EventEntry, Mint: p.Mint, Symbol: p.Symbol, Reason: reason, Trade: trade, At: now})
}

func (e *Engine) newTrade(p *domain.Position, side domain.Side, fill domain.Fill, reason string, now time.Time) *domain.TradeRecord {
	metrics.RecordTrade(string(side), fill.Usable())
	return &domain.TradeRecord{
		ID:         uuid.NewString(),
		Mint:       p.Mint,
		Symbol:     p.Symbol,
		Side:       side,
		State:      p.State,
		SizeSOL:    fill.FilledSizeSOL,
		Price:      fill.FilledPrice,
		Reason:     reason,
		Success:    fill.Usable(),
		Signature:  fill.Signature,
		ExecutedAt: now,
	}
}
