package strategy

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
	"github.com/alanyoungcy/convexbot/internal/service"
)

// EngineConfig holds the control loop sizing and timing parameters.
type EngineConfig struct {
	TickInterval       time.Duration
	MaxPositions       int
	ScoutSizeSOL       float64
	ConfirmAddSOL      float64
	ConvictionAddSOL   float64
	MaxPositionSizeSOL float64
	SnapshotInterval   time.Duration
	StaleMaxHold       time.Duration
	TradedCooldown     time.Duration
	CrashThreshold     float64
	CrashWarmup        time.Duration
	MomentumWindow     time.Duration
}

// DefaultEngineConfig returns the production parameters.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval:       2 * time.Second,
		MaxPositions:       3,
		ScoutSizeSOL:       0.01,
		ConfirmAddSOL:      0.04,
		ConvictionAddSOL:   0.05,
		MaxPositionSizeSOL: 0.15,
		SnapshotInterval:   30 * time.Second,
		StaleMaxHold:       15 * time.Minute,
		TradedCooldown:     60 * time.Minute,
		CrashThreshold:     0.30,
		CrashWarmup:        30 * time.Second,
		MomentumWindow:     5 * time.Minute,
	}
}

// PriceBook is the part of the Price Aggregator the control loop drives.
type PriceBook interface {
	Subscribe(mint string, phase domain.Phase)
	Unsubscribe(mint string)
	SetInitialPrice(mint string, price float64)
	MarkOpen(mint string)
	MarkClosed(mint string)
	GetLatestPrice(mint string) (domain.Quote, bool)
}

// Drainer is a queue the tick empties in one call.
type Drainer[T any] interface {
	Drain() []T
}

// Deduper drops IDs that were already seen recently.
type Deduper interface {
	IsDuplicate(id string) bool
}

// EventSink receives operator-visible events. Emit must not block.
type EventSink interface {
	Emit(ev domain.Event)
}

// SnapshotSink persists snapshots off the tick. Submit must not block.
type SnapshotSink interface {
	Submit(snap domain.Snapshot)
}

// EngineDeps are the collaborators of the control loop. Signals, Commands,
// Dedup, Events and Snapshots are optional.
type EngineDeps struct {
	Clock     clock.Clock
	Executor  domain.Executor
	Market    domain.MarketDataProvider
	Prices    PriceBook
	Safety    *service.SafetySupervisor
	Bounce    *service.BounceWatchdog
	Signals   Drainer[domain.QueueSignal]
	Commands  Drainer[domain.Command]
	Dedup     Deduper
	Events    EventSink
	Snapshots SnapshotSink
}

// Engine is the control loop. One Tick runs to completion before the next
// starts, and all core state is touched only from inside Tick, Restore and
// Snapshot. Readers outside the loop use View.
type Engine struct {
	cfg       EngineConfig
	deps      EngineDeps
	scorer    *Scorer
	lifecycle *Lifecycle
	exits     *Exits
	risk      RiskConfig
	tracker   *PriceTracker
	logger    *slog.Logger

	positions    map[string]*domain.Position
	traded       map[string]time.Time
	ticks        uint64
	lastSnapshot time.Time

	view atomic.Pointer[domain.View]
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig, scorer *Scorer, lifecycle *Lifecycle, exits *Exits, risk RiskConfig, deps EngineDeps, logger *slog.Logger) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	e := &Engine{
		cfg:       cfg,
		deps:      deps,
		scorer:    scorer,
		lifecycle: lifecycle,
		exits:     exits,
		risk:      risk,
		tracker:   NewPriceTracker(cfg.MomentumWindow),
		logger:    logger.With(slog.String("component", "control_loop")),
		positions: make(map[string]*domain.Position),
		traded:    make(map[string]time.Time),
	}
	e.publishView(deps.Clock.Now())
	return e
}

// Run ticks every TickInterval until ctx is done, then hands a final
// snapshot to the sink.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "control loop started",
		slog.Duration("tick_interval", e.cfg.TickInterval),
		slog.Int("positions", len(e.positions)),
	)
	defer func() {
		if e.deps.Snapshots != nil {
			e.deps.Snapshots.Submit(e.Snapshot())
		}
		e.logger.Info("control loop stopped", slog.Int("positions", len(e.positions)))
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one pass of the control loop.
func (e *Engine) Tick(ctx context.Context) {
	start := e.deps.Clock.Now()
	now := start
	e.ticks++

	e.applyCommands(ctx, now)
	if e.deps.Safety.Stopped() {
		e.publishView(now)
		return
	}
	for _, ev := range e.deps.Safety.Tick() {
		e.emitSafety(ev, now)
	}

	entries := e.drainSignals(ctx, now)

	for _, mint := range e.sortedMints() {
		if ctx.Err() != nil {
			break
		}
		e.processPosition(ctx, e.positions[mint], now)
	}

	if e.deps.Bounce != nil {
		bounces, removed := e.deps.Bounce.Check(ctx, now)
		for _, mint := range removed {
			if _, held := e.positions[mint]; !held {
				e.deps.Prices.Unsubscribe(mint)
			}
		}
		for _, sig := range bounces {
			e.emit(domain.Event{Kind: domain.EventBounce, Mint: sig.Mint, Symbol: sig.Symbol, Reason: sig.Reason, At: now})
		}
		entries = append(entries, bounces...)
	}

	for _, sig := range entries {
		if ctx.Err() != nil {
			break
		}
		e.enter(ctx, sig, now)
	}

	e.pruneTraded(now)
	e.publishView(now)
	e.maybeSnapshot(now)
	metrics.RecordTick(e.deps.Clock.Now().Sub(start), len(e.positions))
}

// View returns the state published at the end of the last tick. It is safe
// to call from any goroutine.
func (e *Engine) View() *domain.View {
	return e.view.Load()
}

func (e *Engine) publishView(now time.Time) {
	v := &domain.View{
		Tick:      e.ticks,
		At:        now,
		Positions: e.clonePositions(),
		Safety:    e.deps.Safety.Status(),
	}
	if e.deps.Bounce != nil {
		v.Watchlist = e.deps.Bounce.Entries()
	}
	e.view.Store(v)
}

func (e *Engine) clonePositions() []domain.Position {
	out := make([]domain.Position, 0, len(e.positions))
	for _, mint := range e.sortedMints() {
		out = append(out, e.positions[mint].Clone())
	}
	return out
}

func (e *Engine) sortedMints() []string {
	mints := make([]string, 0, len(e.positions))
	for m := range e.positions {
		mints = append(mints, m)
	}
	sort.Strings(mints)
	return mints
}

func (e *Engine) pruneTraded(now time.Time) {
	for mint, at := range e.traded {
		if now.Sub(at) >= e.cfg.TradedCooldown {
			delete(e.traded, mint)
		}
	}
}

func (e *Engine) maybeSnapshot(now time.Time) {
	if e.deps.Snapshots == nil || e.cfg.SnapshotInterval <= 0 {
		return
	}
	if !e.lastSnapshot.IsZero() && now.Sub(e.lastSnapshot) < e.cfg.SnapshotInterval {
		return
	}
	e.lastSnapshot = now
	e.deps.Snapshots.Submit(e.Snapshot())
}

func (e *Engine) emit(ev domain.Event) {
	if e.deps.Events != nil {
		e.deps.Events.Emit(ev)
	}
}

func (e *Engine) emitSafety(ev service.SafetyEvent, now time.Time) {
	var kind domain.EventKind
	switch ev.Kind {
	case service.SafetyHalt:
		kind = domain.EventHalt
	case service.SafetyCooldown:
		kind = domain.EventCooldown
	case service.SafetyResume:
		kind = domain.EventResume
	case service.SafetyRollover:
		kind = domain.EventRollover
	default:
		return
	}
	e.emit(domain.Event{Kind: kind, Reason: ev.Reason, At: now})
}
