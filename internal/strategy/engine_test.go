package strategy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/service"
)

const rawPerToken = 1e6

type fakeExec struct {
	holdings  map[string]uint64
	noBalance map[string]bool
	failBuy   bool
	failSell  bool
	sells     []string
}

func newFakeExec() *fakeExec {
	return &fakeExec{holdings: map[string]uint64{}, noBalance: map[string]bool{}}
}

func (f *fakeExec) Buy(_ context.Context, mint string, size, ref float64, _ string) domain.Fill {
	if f.failBuy {
		return domain.Fill{Err: "quote failed"}
	}
	if ref <= 0 {
		ref = 1.0
	}
	tokens := uint64(size / ref * rawPerToken)
	f.holdings[mint] += tokens
	return domain.Fill{Success: true, FilledSizeSOL: size, FilledPrice: ref, TokenAmountRaw: tokens}
}

func (f *fakeExec) Sell(_ context.Context, mint string, fraction, ref float64, reason string) domain.Fill {
	return f.sell(mint, uint64(float64(f.holdings[mint])*fraction), ref, reason)
}

func (f *fakeExec) SellAll(_ context.Context, mint string, ref float64, reason string, _ uint64) domain.Fill {
	return f.sell(mint, f.holdings[mint], ref, reason)
}

func (f *fakeExec) sell(mint string, tokens uint64, ref float64, reason string) domain.Fill {
	if f.noBalance[mint] {
		return domain.Fill{NoBalance: true, Err: "no balance"}
	}
	if f.failSell {
		return domain.Fill{Err: "slippage exceeded"}
	}
	f.holdings[mint] -= tokens
	f.sells = append(f.sells, mint+":"+reason)
	return domain.Fill{Success: true, FilledSizeSOL: float64(tokens) / rawPerToken * ref, FilledPrice: ref, TokenAmountRaw: tokens}
}

type stubMarket struct {
	infos map[string]domain.TokenInfo
}

func (s *stubMarket) TokenInfo(_ context.Context, mint string) (domain.TokenInfo, error) {
	info, ok := s.infos[mint]
	if !ok {
		return domain.TokenInfo{}, domain.ErrNotFound
	}
	return info, nil
}

type sliceQueue[T any] struct {
	items []T
}

func (q *sliceQueue[T]) Push(v T) { q.items = append(q.items, v) }

func (q *sliceQueue[T]) Drain() []T {
	out := q.items
	q.items = nil
	return out
}

type seenIDs map[string]bool

func (s seenIDs) IsDuplicate(id string) bool {
	if s[id] {
		return true
	}
	s[id] = true
	return false
}

type recordingSink struct {
	events []domain.Event
	snaps  []domain.Snapshot
}

func (r *recordingSink) Emit(ev domain.Event) { r.events = append(r.events, ev) }

func (r *recordingSink) Submit(snap domain.Snapshot) { r.snaps = append(r.snaps, snap) }

func (r *recordingSink) last(kind domain.EventKind) (domain.Event, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return domain.Event{}, false
}

type harness struct {
	clk      *clock.Manual
	prices   *service.PriceAggregator
	exec     *fakeExec
	market   *stubMarket
	safety   *service.SafetySupervisor
	signals  *sliceQueue[domain.QueueSignal]
	commands *sliceQueue[domain.Command]
	sink     *recordingSink
	engine   *Engine
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, tweak ...func(*EngineConfig)) *harness {
	t.Helper()
	cfg := DefaultEngineConfig()
	for _, fn := range tweak {
		fn(&cfg)
	}
	h := &harness{
		clk:      clock.NewManual(t0),
		exec:     newFakeExec(),
		market:   &stubMarket{infos: map[string]domain.TokenInfo{}},
		signals:  &sliceQueue[domain.QueueSignal]{},
		commands: &sliceQueue[domain.Command]{},
		sink:     &recordingSink{},
	}
	log := testLogger()
	h.prices = service.NewPriceAggregator(service.DefaultAggregatorConfig(), h.clk, nil, log)
	h.safety = service.NewSafetySupervisor(service.DefaultSafetyConfig(), h.clk, log)
	h.safety.Seed(10)
	bounce := service.NewBounceWatchdog(service.DefaultBounceConfig(), h.prices, nil, log)

	h.engine = NewEngine(cfg,
		NewScorer(DefaultScorerConfig()),
		NewLifecycle(DefaultLifecycleConfig()),
		newExits(),
		DefaultRiskConfig(),
		EngineDeps{
			Clock:     h.clk,
			Executor:  h.exec,
			Market:    h.market,
			Prices:    h.prices,
			Safety:    h.safety,
			Bounce:    bounce,
			Signals:   h.signals,
			Commands:  h.commands,
			Dedup:     seenIDs{},
			Events:    h.sink,
			Snapshots: h.sink,
		},
		log,
	)
	return h
}

func (h *harness) buy(id, mint string) {
	h.signals.Push(domain.QueueSignal{
		ID:     id,
		Mint:   mint,
		Symbol: "TKN",
		Action: domain.ActionBuy,
		Phase:  domain.PhaseBondingCurve,
		Source: domain.SourceCopyTrade,
	})
}

func (h *harness) tick() { h.engine.Tick(context.Background()) }

// step moves past the priority hold on the fill price and ticks at price.
func (h *harness) step(d time.Duration, mint string, price float64) {
	h.clk.Advance(d)
	h.prices.UpdatePrice(mint, price, domain.SourceOpenPoller)
	h.tick()
}

func (h *harness) position(mint string) (*domain.Position, bool) {
	p, ok := h.engine.positions[mint]
	return p, ok
}

func TestEngineEntryOpensScout(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()

	p, ok := h.position("A")
	require.True(t, ok)
	assert.Equal(t, domain.StateScout, p.State)
	assert.InDelta(t, 0.01, p.SizeSOL, 1e-12)
	assert.Equal(t, 1.0, p.EntryPrice)
	assert.Equal(t, t0.Add(180*time.Second), p.ScoutDeadline)

	q, ok := h.prices.GetLatestPrice("A")
	require.True(t, ok)
	assert.Equal(t, domain.SourceFill, q.Source)
	assert.Contains(t, h.prices.OpenMints(), "A")

	assert.InDelta(t, 9.99, h.safety.Account().BalanceSOL, 1e-12)
	ev, ok := h.sink.last(domain.EventEntry)
	require.True(t, ok)
	require.NotNil(t, ev.Trade)
	assert.True(t, ev.Trade.Success)

	view := h.engine.View()
	require.Len(t, view.Positions, 1)
	assert.Equal(t, uint64(1), view.Tick)
	assert.Len(t, h.sink.snaps, 1)
}

func TestEngineDropsDuplicateSignals(t *testing.T) {
	h := newHarness(t)
	h.buy("same", "A")
	h.buy("same", "B")
	h.tick()

	_, okA := h.position("A")
	_, okB := h.position("B")
	assert.True(t, okA)
	assert.False(t, okB)
}

func TestEngineOnePositionPerMint(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.buy("s2", "A")
	h.tick()

	p, ok := h.position("A")
	require.True(t, ok)
	assert.InDelta(t, 0.01, p.SizeSOL, 1e-12)
	assert.Len(t, h.engine.View().Positions, 1)
}

func TestEngineFailedBuyLeavesNoState(t *testing.T) {
	h := newHarness(t)
	h.exec.failBuy = true
	h.buy("s1", "A")
	h.tick()

	assert.Empty(t, h.engine.positions)
	assert.Equal(t, 10.0, h.safety.Account().BalanceSOL)
	_, subscribed := h.prices.Route("A")
	assert.False(t, subscribed)
}

func TestEngineGraceSuppressesEarlyStop(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()

	h.step(6*time.Second, "A", 0.8)
	p, ok := h.position("A")
	require.True(t, ok, "stop inside the grace window is suppressed")
	assert.Equal(t, 1, p.GraceBreaches)

	h.step(16*time.Second, "A", 0.8)
	_, ok = h.position("A")
	require.False(t, ok)
	assert.Equal(t, []string{"A:" + domain.ReasonStopLoss}, h.exec.sells)

	ev, ok := h.sink.last(domain.EventExit)
	require.True(t, ok)
	assert.InDelta(t, -0.002, ev.PnLSOL, 1e-9)
	assert.Equal(t, 1, h.safety.Account().Losses)
	assert.Equal(t, 1, h.safety.Account().DailyTrades)

	view := h.engine.View()
	require.Len(t, view.Watchlist, 1, "losing stop-loss exits go on the bounce watchlist")
	assert.Equal(t, "A", view.Watchlist[0].Mint)
}

func TestEngineGhostRemovedOnNoBalance(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()

	h.exec.noBalance["A"] = true
	h.commands.Push(domain.Command{Kind: domain.CommandForceSell, Mint: "A"})
	h.clk.Advance(2 * time.Second)
	h.tick()

	_, ok := h.position("A")
	assert.False(t, ok)
	ev, ok := h.sink.last(domain.EventGhost)
	require.True(t, ok)
	assert.Equal(t, "A", ev.Mint)
	require.NotNil(t, ev.Trade)
	assert.False(t, ev.Trade.Success)
	assert.InDelta(t, -0.01, ev.PnLSOL, 1e-12)
	assert.InDelta(t, -0.01, ev.Trade.PnLSOL, 1e-12)
	assert.Equal(t, 1, h.safety.Account().DailyTrades)
	assert.InDelta(t, -0.01, h.safety.Account().DailyPnLSOL, 1e-12)
	assert.Equal(t, 1, h.safety.Account().ConsecutiveLosses)
	_, subscribed := h.prices.Route("A")
	assert.False(t, subscribed)
}

func TestEngineGhostLossCanHalt(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()
	_, ok := h.position("A")
	require.True(t, ok)

	// Earlier losses leave the day just inside the 0.05 SOL limit.
	h.safety.RecordTradeResult(-0.045, "stop-loss")
	require.False(t, h.safety.Halted())

	h.exec.noBalance["A"] = true
	h.commands.Push(domain.Command{Kind: domain.CommandForceSell, Mint: "A"})
	h.clk.Advance(2 * time.Second)
	h.tick()

	_, ok = h.position("A")
	assert.False(t, ok)
	assert.True(t, h.safety.Halted())
	_, ok = h.sink.last(domain.EventHalt)
	assert.True(t, ok)
}

func TestEngineFailedExitRetriesNextTick(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()

	h.exec.failSell = true
	h.commands.Push(domain.Command{Kind: domain.CommandForceSell, Mint: "A"})
	h.clk.Advance(2 * time.Second)
	h.tick()

	p, ok := h.position("A")
	require.True(t, ok)
	assert.Equal(t, ReasonForceSell, p.PendingExit)
	assert.InDelta(t, 9.99, h.safety.Account().BalanceSOL, 1e-12)

	h.exec.failSell = false
	h.clk.Advance(2 * time.Second)
	h.tick()
	_, ok = h.position("A")
	assert.False(t, ok)
	assert.Equal(t, []string{"A:" + ReasonForceSell}, h.exec.sells)
}

func TestEngineEscalatesToConfirm(t *testing.T) {
	h := newHarness(t)
	info := hotToken()
	info.Mint = "A"
	h.market.infos["A"] = info
	h.buy("s1", "A")
	h.tick()

	h.step(6*time.Second, "A", 1.2)
	p, ok := h.position("A")
	require.True(t, ok)
	assert.Equal(t, domain.StateScout, p.State)
	assert.Equal(t, 1, p.SelectionConsecutive)
	assert.Equal(t, domain.RiskLow, p.Risk)

	h.step(6*time.Second, "A", 1.2)
	assert.Equal(t, domain.StateConfirm, p.State)
	assert.InDelta(t, 0.05, p.SizeSOL, 1e-12)
	assert.InDelta(t, 0.05, p.InitialSizeSOL, 1e-12)
	assert.Equal(t, 1.0, p.EntryPrice, "adds keep the scout entry")
	assert.InDelta(t, 0.2, p.PnLPct(1.2), 1e-12)

	ev, ok := h.sink.last(domain.EventEscalation)
	require.True(t, ok)
	require.NotNil(t, ev.Trade)
	assert.InDelta(t, 0.04, ev.Trade.SizeSOL, 1e-12)
}

func TestEngineEscalationCappedByMaxPositionSize(t *testing.T) {
	h := newHarness(t, func(c *EngineConfig) { c.MaxPositionSizeSOL = 0.01 })
	info := hotToken()
	info.Mint = "A"
	h.market.infos["A"] = info
	h.buy("s1", "A")
	h.tick()

	h.step(6*time.Second, "A", 1.2)
	h.step(6*time.Second, "A", 1.2)

	p, ok := h.position("A")
	require.True(t, ok)
	assert.Equal(t, domain.StateConfirm, p.State, "a refused add keeps the transition")
	assert.InDelta(t, 0.01, p.SizeSOL, 1e-12)
	ev, ok := h.sink.last(domain.EventEscalation)
	require.True(t, ok)
	assert.Nil(t, ev.Trade)
}

func TestEngineCrashExit(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()
	p, _ := h.position("A")
	p.State = domain.StateConviction

	h.step(31*time.Second, "A", 1.5)
	_, ok := h.position("A")
	require.True(t, ok)

	// 1.5 -> 1.0 is a 33% single-tick drop with pnl still at zero
	h.step(6*time.Second, "A", 1.0)
	_, ok = h.position("A")
	require.False(t, ok)
	ev, ok := h.sink.last(domain.EventExit)
	require.True(t, ok)
	assert.Equal(t, ReasonCrash, ev.Reason)
}

func TestEnginePartialExit(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()
	p, _ := h.position("A")
	p.State = domain.StateConviction

	h.step(31*time.Second, "A", 2.0)

	require.True(t, p.HasMilestone(MilestoneMoonbag))
	assert.True(t, p.BreakEven)
	assert.InDelta(t, 0.005, p.SizeSOL, 1e-12)
	assert.Equal(t, uint64(5000), p.TokenAmountRaw)
	assert.InDelta(t, 0.005, p.RealizedPnLSOL, 1e-12)
	assert.Equal(t, domain.StateConviction, p.State, "half of the commitment remains")

	ev, ok := h.sink.last(domain.EventPartialExit)
	require.True(t, ok)
	assert.Equal(t, "partial:"+MilestoneMoonbag, ev.Reason)

	h.step(6*time.Second, "A", 2.0)
	assert.Len(t, h.exec.sells, 1, "milestones fire once")
}

func TestEngineTradedCooldown(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()
	h.commands.Push(domain.Command{Kind: domain.CommandForceSell, Mint: "A"})
	h.clk.Advance(2 * time.Second)
	h.tick()
	require.Empty(t, h.engine.positions)

	h.buy("s2", "A")
	h.clk.Advance(time.Minute)
	h.tick()
	_, ok := h.position("A")
	assert.False(t, ok, "recently traded")

	h.signals.Push(domain.QueueSignal{ID: "s3", Mint: "A", Action: domain.ActionBuy, Source: domain.SourceBounce, SizeSOL: 0.005})
	h.tick()
	p, ok := h.position("A")
	require.True(t, ok, "bounce re-entries are exempt")
	assert.Equal(t, 1, p.BounceReentry)

	h.commands.Push(domain.Command{Kind: domain.CommandForceSell, Mint: "A"})
	h.clk.Advance(2 * time.Second)
	h.tick()
	h.clk.Advance(61 * time.Minute)
	h.buy("s4", "A")
	h.tick()
	_, ok = h.position("A")
	assert.True(t, ok, "cooldown expired")
}

func TestEngineSellSignalExits(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()

	h.signals.Push(domain.QueueSignal{ID: "s2", Mint: "A", Action: domain.ActionSell, Source: domain.SourceCopyTrade})
	h.signals.Push(domain.QueueSignal{ID: "s3", Mint: "B", Action: domain.ActionSell, Source: domain.SourceCopyTrade})
	h.clk.Advance(2 * time.Second)
	h.tick()

	assert.Empty(t, h.engine.positions)
	assert.Equal(t, []string{"A:" + ReasonSignalSell}, h.exec.sells)
}

func TestEngineStopAndResume(t *testing.T) {
	h := newHarness(t)
	h.commands.Push(domain.Command{Kind: domain.CommandStop})
	h.buy("s1", "A")
	h.tick()

	assert.Empty(t, h.engine.positions)
	assert.True(t, h.engine.View().Safety.Stopped)

	h.commands.Push(domain.Command{Kind: domain.CommandResume})
	h.tick()
	_, ok := h.position("A")
	assert.True(t, ok, "queued signal is taken after resume")
	_, ok = h.sink.last(domain.EventResume)
	assert.True(t, ok)
}

func TestEngineHaltBlocksEntriesButNotExits(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.tick()

	h.safety.RecordTradeResult(-1.0, "stop-loss")
	require.True(t, h.safety.Halted())

	h.buy("s2", "B")
	h.commands.Push(domain.Command{Kind: domain.CommandForceSell, Mint: "A"})
	h.clk.Advance(2 * time.Second)
	h.tick()

	assert.Empty(t, h.engine.positions)
	assert.Equal(t, []string{"A:" + ReasonForceSell}, h.exec.sells)
}

func TestEngineSnapshotRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.buy("s1", "A")
	h.buy("s2", "B")
	h.tick()
	h.step(6*time.Second, "A", 1.1)

	snap := h.engine.Snapshot()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded domain.Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	h2 := newHarness(t)
	h2.clk.Set(h.clk.Now())
	h2.engine.Restore(decoded)

	got := h2.engine.Snapshot()
	require.Len(t, got.Positions, len(snap.Positions))
	for i, want := range snap.Positions {
		p := got.Positions[i]
		assert.Equal(t, want.Mint, p.Mint)
		assert.Equal(t, want.State, p.State)
		assert.Equal(t, want.SizeSOL, p.SizeSOL)
		assert.Equal(t, want.EntryPrice, p.EntryPrice)
		assert.Equal(t, want.PeakPrice, p.PeakPrice)
		assert.Equal(t, want.TokenAmountRaw, p.TokenAmountRaw)
		assert.True(t, want.OpenedAt.Equal(p.OpenedAt))
		assert.True(t, want.ScoutDeadline.Equal(p.ScoutDeadline))
		assert.Empty(t, p.PendingExit)
	}
	assert.Equal(t, snap.Account.BalanceSOL, got.Account.BalanceSOL)
	assert.Equal(t, snap.Safety, got.Safety)
	assert.ElementsMatch(t, []string{"A", "B"}, h2.prices.OpenMints())
}

func TestEngineStaleRestoreExitsOnFirstTick(t *testing.T) {
	h := newHarness(t)
	fill := domain.Fill{Success: true, FilledSizeSOL: 0.01, FilledPrice: 1.0, TokenAmountRaw: 10_000}
	old := domain.NewPosition("A", "OLD", domain.PhaseMigrated, fill, t0.Add(-20*time.Minute), time.Minute)
	fresh := domain.NewPosition("B", "NEW", domain.PhaseMigrated, fill, t0.Add(-time.Minute), 3*time.Minute)
	h.exec.holdings["A"] = 10_000
	h.exec.holdings["B"] = 10_000

	h.engine.Restore(domain.Snapshot{
		ID:        "snap",
		TakenAt:   t0.Add(-30 * time.Second),
		Positions: []domain.Position{old.Clone(), fresh.Clone()},
		Account:   domain.AccountStats{BalanceSOL: 5, DayStartSOL: 5, DayStartedAt: t0.Add(-time.Hour)},
	})
	a, ok := h.position("A")
	require.True(t, ok)
	assert.Equal(t, ReasonStaleRestore, a.PendingExit)

	h.tick()
	_, ok = h.position("A")
	assert.False(t, ok)
	_, ok = h.position("B")
	assert.True(t, ok)
	assert.Equal(t, []string{"A:" + ReasonStaleRestore}, h.exec.sells)

	h.buy("s1", "A")
	h.tick()
	_, ok = h.position("A")
	assert.False(t, ok, "stale-restored assets are on the traded cooldown")
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, func(c *EngineConfig) { c.TickInterval = time.Millisecond })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.engine.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEmpty(t, h.sink.snaps, "final snapshot on shutdown")
}
