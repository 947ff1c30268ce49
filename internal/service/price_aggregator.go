package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
)

// PriceRoute is the background source currently responsible for an asset.
type PriceRoute string

const (
	RouteStream PriceRoute = "stream"
	RoutePoll   PriceRoute = "poll"
)

// StreamSubscriber is the push stream the aggregator routes pre-migration
// assets to.
type StreamSubscriber interface {
	Subscribe(mint string)
	Unsubscribe(mint string)
}

// TickRecorder receives every accepted price. Record must not block.
type TickRecorder interface {
	Record(tick domain.PriceTick)
}

// AggregatorConfig holds the Price Aggregator timings.
type AggregatorConfig struct {
	StaleThreshold  time.Duration
	HealthInterval  time.Duration
	FallbackSpacing time.Duration
	PriorityHold    time.Duration
	FetchTimeout    time.Duration
}

// DefaultAggregatorConfig returns the production timings.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		StaleThreshold:  10 * time.Second,
		HealthInterval:  5 * time.Second,
		FallbackSpacing: 5 * time.Second,
		PriorityHold:    5 * time.Second,
		FetchTimeout:    4 * time.Second,
	}
}

type assetState struct {
	phase     domain.Phase
	route     PriceRoute
	open      bool
	price     float64
	updatedAt time.Time
	source    domain.PriceSourceKind
}

// PriceAggregator keeps the best-known price per tracked asset from several
// ranked, independently failing sources. Reads never block on I/O.
type PriceAggregator struct {
	cfg      AggregatorConfig
	clock    clock.Clock
	chain    []domain.PriceSource
	limiter  domain.RateLimiter
	stream   StreamSubscriber
	mirror   domain.PriceCache
	recorder TickRecorder
	logger   *slog.Logger

	mu     sync.RWMutex
	assets map[string]*assetState

	mirrorCh chan domain.PriceTick
}

// AggregatorOption configures optional collaborators.
type AggregatorOption func(*PriceAggregator)

// WithStream routes pre-migration assets to s.
func WithStream(s StreamSubscriber) AggregatorOption {
	return func(a *PriceAggregator) { a.stream = s }
}

// WithRateLimiter replaces the in-process fallback limiter.
func WithRateLimiter(l domain.RateLimiter) AggregatorOption {
	return func(a *PriceAggregator) {
		if l != nil {
			a.limiter = l
		}
	}
}

// WithMirror writes every accepted price through to an external cache.
func WithMirror(c domain.PriceCache) AggregatorOption {
	return func(a *PriceAggregator) { a.mirror = c }
}

// WithTickRecorder forwards every accepted price to r.
func WithTickRecorder(r TickRecorder) AggregatorOption {
	return func(a *PriceAggregator) { a.recorder = r }
}

// NewPriceAggregator creates a PriceAggregator. chain is the ordered pull
// fallback, tried first to last.
func NewPriceAggregator(cfg AggregatorConfig, c clock.Clock, chain []domain.PriceSource, logger *slog.Logger, opts ...AggregatorOption) *PriceAggregator {
	a := &PriceAggregator{
		cfg:      cfg,
		clock:    c,
		chain:    chain,
		limiter:  NewLocalRateLimiter(c),
		logger:   logger.With(slog.String("component", "price_aggregator")),
		assets:   make(map[string]*assetState),
		mirrorCh: make(chan domain.PriceTick, 1024),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Subscribe starts tracking mint. Pre-migration assets are routed to the push
// stream, everything else to polling. Re-subscribing only refreshes the
// phase hint of an unknown asset.
func (a *PriceAggregator) Subscribe(mint string, phase domain.Phase) {
	a.mu.Lock()
	st, ok := a.assets[mint]
	if ok {
		if st.phase == domain.PhaseUnknown && phase != domain.PhaseUnknown {
			st.phase = phase
		}
		a.mu.Unlock()
		return
	}
	route := RoutePoll
	if phase.PreMigration() && a.stream != nil {
		route = RouteStream
	}
	a.assets[mint] = &assetState{phase: phase, route: route}
	a.mu.Unlock()

	if route == RouteStream {
		a.stream.Subscribe(mint)
	}
	a.logger.Debug("price subscription added",
		slog.String("mint", mint),
		slog.String("phase", string(phase)),
		slog.String("route", string(route)),
	)
}

// Unsubscribe stops tracking mint and forgets its price.
func (a *PriceAggregator) Unsubscribe(mint string) {
	a.mu.Lock()
	st, ok := a.assets[mint]
	delete(a.assets, mint)
	a.mu.Unlock()
	if !ok {
		return
	}
	if st.route == RouteStream && a.stream != nil {
		a.stream.Unsubscribe(mint)
	}
	if l, ok := a.limiter.(*LocalRateLimiter); ok {
		l.Forget(fallbackKey(mint))
	}
}

// SetInitialPrice seeds mint from an execution fill and marks it as an open
// position, which moves it onto the dedicated open-position poller. The fill
// price bypasses source priority.
func (a *PriceAggregator) SetInitialPrice(mint string, price float64) {
	a.MarkOpen(mint)
	a.UpdatePrice(mint, price, domain.SourceFill)
}

// MarkOpen puts mint on the open-position poller without seeding a price.
// Unknown mints are subscribed on the polling route.
func (a *PriceAggregator) MarkOpen(mint string) {
	a.mu.Lock()
	st, ok := a.assets[mint]
	if !ok {
		st = &assetState{phase: domain.PhaseUnknown, route: RoutePoll}
		a.assets[mint] = st
	}
	st.open = true
	a.mu.Unlock()
}

// MarkClosed takes mint off the open-position poller while keeping it
// subscribed.
func (a *PriceAggregator) MarkClosed(mint string) {
	a.mu.Lock()
	if st, ok := a.assets[mint]; ok {
		st.open = false
	}
	a.mu.Unlock()
}

// UpdatePrice is the push entry point for every source. An update from a
// lower-priority source only replaces a higher-priority value once that value
// is older than the priority hold. It reports whether the update was taken.
func (a *PriceAggregator) UpdatePrice(mint string, price float64, source domain.PriceSourceKind) bool {
	if price <= 0 {
		return false
	}
	now := a.clock.Now()

	a.mu.Lock()
	st, ok := a.assets[mint]
	if !ok {
		a.mu.Unlock()
		metrics.RecordPriceUpdate(string(source), false)
		return false
	}
	if !a.acceptLocked(st, source, now) {
		a.mu.Unlock()
		metrics.RecordPriceUpdate(string(source), false)
		return false
	}
	st.price = price
	st.updatedAt = now
	st.source = source
	a.mu.Unlock()

	metrics.RecordPriceUpdate(string(source), true)
	tick := domain.PriceTick{Mint: mint, Price: price, Source: source, ObservedAt: now}
	if a.recorder != nil {
		a.recorder.Record(tick)
	}
	if a.mirror != nil {
		select {
		case a.mirrorCh <- tick:
		default:
		}
	}
	return true
}

func (a *PriceAggregator) acceptLocked(st *assetState, source domain.PriceSourceKind, now time.Time) bool {
	if st.price <= 0 || source == domain.SourceFill {
		return true
	}
	if source.Rank() <= st.source.Rank() {
		return true
	}
	return now.Sub(st.updatedAt) >= a.cfg.PriorityHold
}

// GetLatestPrice returns the last known price for mint. It never blocks and
// never withholds a stale value: an exit on a slightly old price beats an
// exit on no price.
func (a *PriceAggregator) GetLatestPrice(mint string) (domain.Quote, bool) {
	a.mu.RLock()
	st, ok := a.assets[mint]
	if !ok || st.price <= 0 {
		a.mu.RUnlock()
		return domain.Quote{}, false
	}
	q := domain.Quote{Price: st.price, UpdatedAt: st.updatedAt, Source: st.source}
	a.mu.RUnlock()

	q.Age = a.clock.Now().Sub(q.UpdatedAt)
	q.Stale = q.Age > a.cfg.StaleThreshold
	if q.Stale {
		metrics.RecordStaleRead()
		a.logger.Warn("serving stale price",
			slog.String("mint", mint),
			slog.Duration("age", q.Age),
			slog.String("source", string(q.Source)),
		)
	}
	return q, true
}

// Route returns the background route of mint.
func (a *PriceAggregator) Route(mint string) (PriceRoute, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.assets[mint]
	if !ok {
		return "", false
	}
	return st.route, true
}

// OpenMints returns the assets held as open positions, sorted.
func (a *PriceAggregator) OpenMints() []string {
	return a.collect(func(st *assetState) bool { return st.open })
}

// PolledMints returns the non-open assets on the polling route, sorted.
func (a *PriceAggregator) PolledMints() []string {
	return a.collect(func(st *assetState) bool { return !st.open && st.route == RoutePoll })
}

func (a *PriceAggregator) collect(keep func(*assetState) bool) []string {
	a.mu.RLock()
	out := make([]string, 0, len(a.assets))
	for mint, st := range a.assets {
		if keep(st) {
			out = append(out, mint)
		}
	}
	a.mu.RUnlock()
	sort.Strings(out)
	return out
}

// RunHealthLoop checks staleness on every HealthInterval until ctx is done.
func (a *PriceAggregator) RunHealthLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.HealthInterval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "price health loop started",
		slog.Duration("interval", a.cfg.HealthInterval),
		slog.Duration("stale_threshold", a.cfg.StaleThreshold),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.CheckHealth(ctx)
		}
	}
}

// CheckHealth runs one health pass: every subscribed asset with no price or a
// price older than the staleness threshold gets a rate-limited pull fallback.
// A fallback success for an asset still routed to the push stream is a
// migration signal and moves the asset to polling.
func (a *PriceAggregator) CheckHealth(ctx context.Context) {
	now := a.clock.Now()
	type candidate struct {
		mint  string
		route PriceRoute
	}
	var stale []candidate
	a.mu.RLock()
	for mint, st := range a.assets {
		if st.price <= 0 || now.Sub(st.updatedAt) > a.cfg.StaleThreshold {
			stale = append(stale, candidate{mint: mint, route: st.route})
		}
	}
	a.mu.RUnlock()
	sort.Slice(stale, func(i, j int) bool { return stale[i].mint < stale[j].mint })

	for _, c := range stale {
		if ctx.Err() != nil {
			return
		}
		allowed, err := a.limiter.Allow(ctx, fallbackKey(c.mint), 1, a.cfg.FallbackSpacing)
		if err != nil {
			a.logger.WarnContext(ctx, "fallback rate limiter failed",
				slog.String("mint", c.mint),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !allowed {
			metrics.RecordFallback("throttled")
			continue
		}
		price, source, ok := a.fetchFallback(ctx, c.mint)
		if !ok {
			metrics.RecordFallback("miss")
			a.logger.WarnContext(ctx, "price fallback chain exhausted", slog.String("mint", c.mint))
			continue
		}
		metrics.RecordFallback("hit")
		a.UpdatePrice(c.mint, price, domain.SourceFallback)
		if c.route == RouteStream {
			a.migrate(ctx, c.mint, source)
		}
	}
}

// FetchNow runs the fallback chain for mint outside the health loop, still
// subject to the per-asset rate limit.
func (a *PriceAggregator) FetchNow(ctx context.Context, mint string) (float64, bool) {
	allowed, err := a.limiter.Allow(ctx, fallbackKey(mint), 1, a.cfg.FallbackSpacing)
	if err != nil || !allowed {
		return 0, false
	}
	price, _, ok := a.fetchFallback(ctx, mint)
	if !ok {
		return 0, false
	}
	a.UpdatePrice(mint, price, domain.SourceFallback)
	return price, true
}

func (a *PriceAggregator) fetchFallback(ctx context.Context, mint string) (float64, string, bool) {
	for _, src := range a.chain {
		fctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		price, ok := src.FetchPrice(fctx, mint)
		cancel()
		if ok && price > 0 {
			return price, src.Name(), true
		}
		a.logger.DebugContext(ctx, "fallback source missed",
			slog.String("mint", mint),
			slog.String("source", src.Name()),
		)
	}
	return 0, "", false
}

func (a *PriceAggregator) migrate(ctx context.Context, mint, via string) {
	a.mu.Lock()
	st, ok := a.assets[mint]
	if !ok || st.route != RouteStream {
		a.mu.Unlock()
		return
	}
	st.route = RoutePoll
	st.phase = domain.PhaseMigrated
	a.mu.Unlock()

	if a.stream != nil {
		a.stream.Unsubscribe(mint)
	}
	metrics.RecordMigration()
	a.logger.InfoContext(ctx, "migration detected, moved to polling",
		slog.String("mint", mint),
		slog.String("via", via),
	)
}

// RunMirror writes accepted prices through to the external cache until ctx
// is done. It is a no-op without a mirror.
func (a *PriceAggregator) RunMirror(ctx context.Context) error {
	if a.mirror == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-a.mirrorCh:
			if err := a.mirror.SetPrice(ctx, tick.Mint, tick.Price, tick.ObservedAt); err != nil {
				a.logger.WarnContext(ctx, "price mirror write failed",
					slog.String("mint", tick.Mint),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func fallbackKey(mint string) string {
	return "fallback:" + mint
}
