package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/crypto"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/executor"
	"github.com/alanyoungcy/convexbot/internal/feed"
	"github.com/alanyoungcy/convexbot/internal/platform/dexscreener"
	"github.com/alanyoungcy/convexbot/internal/platform/jupiter"
	"github.com/alanyoungcy/convexbot/internal/server"
	"github.com/alanyoungcy/convexbot/internal/server/handler"
	"github.com/alanyoungcy/convexbot/internal/server/ws"
	"github.com/alanyoungcy/convexbot/internal/service"
	"github.com/alanyoungcy/convexbot/internal/strategy"
)

// instanceLockKey guards against two trading processes sharing one wallet
// and one snapshot history.
const instanceLockKey = "instance"

// TradeMode runs the control loop against the configured venue: price feeds,
// signal intake, the engine, persistence and the operator API. Paper and live
// differ only in the venue.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("mode", a.cfg.Mode),
		slog.String("venue", a.cfg.Execution.Venue),
	)
	clk := clock.Real{}

	var lock domain.Lock
	if deps.LockManager != nil {
		var err error
		lock, err = deps.LockManager.Acquire(ctx, instanceLockKey, a.cfg.Redis.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("trade mode: %w", err)
		}
		defer lock.Release()
	}

	signals := feed.NewQueue[domain.QueueSignal]("signals", a.cfg.Engine.QueueCapacity)
	commands := feed.NewQueue[domain.Command]("commands", a.cfg.Engine.QueueCapacity)

	prices, err := a.buildPrices(deps, clk)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	exec, paper := a.buildExecutor(prices.quotes)

	safety := service.NewSafetySupervisor(service.SafetyConfig{
		MaxDailyLossSOL:      a.cfg.Safety.MaxDailyLossSOL,
		MaxDailyLossPct:      a.cfg.Safety.MaxDailyLossPct,
		MaxDailyTrades:       a.cfg.Safety.MaxDailyTrades,
		MinReserveSOL:        a.cfg.Safety.MinReserveSOL,
		MaxTradePct:          a.cfg.Safety.MaxTradePct,
		MaxConsecutiveLosses: a.cfg.Safety.MaxConsecutiveLosses,
		Cooldown:             a.cfg.Safety.Cooldown.Duration,
	}, clk, a.logger)
	bounce := service.NewBounceWatchdog(service.BounceConfig{
		Enabled:         a.cfg.Bounce.Enabled,
		Threshold:       a.cfg.Bounce.ThresholdPct,
		MinVolumeSpike:  a.cfg.Bounce.VolumeSpikePct,
		MaxReentries:    a.cfg.Bounce.MaxReentries,
		SizeMultiplier:  a.cfg.Bounce.SizeMultiplier,
		MonitorDuration: a.cfg.Bounce.MonitorDuration.Duration,
		Triggers:        a.cfg.Bounce.TriggerReasons,
	}, prices.agg, prices.market, a.logger)

	journalDeps := service.JournalDeps{
		Trades: deps.TradeStore,
		Bus:    deps.SignalBus,
		Audit:  deps.AuditStore,
	}
	if deps.Notifier.Enabled() {
		journalDeps.Notifier = deps.Notifier
	}
	journal := service.NewJournal(journalDeps, a.cfg.Engine.QueueCapacity, a.logger)
	snapshots := a.newSnapshotService(deps)
	dedup := executor.NewDedup(a.cfg.Engine.SignalDedupTTL.Duration, clk)

	engineCfg, scorer, lifecycle, exits, risk := a.strategyConfig()
	engine := strategy.NewEngine(engineCfg, scorer, lifecycle, exits, risk, strategy.EngineDeps{
		Clock:     clk,
		Executor:  exec,
		Market:    prices.market,
		Prices:    prices.agg,
		Safety:    safety,
		Bounce:    bounce,
		Signals:   signals,
		Commands:  commands,
		Dedup:     dedup,
		Events:    journal,
		Snapshots: snapshots,
	}, a.logger)

	if err := a.restore(ctx, snapshots, engine, safety, exec, paper); err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	// Sinks outlive the loop so the final snapshot and events are written.
	sinkCtx, stopSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSinks()
	sinks, sinkCtx := errgroup.WithContext(sinkCtx)
	sinks.Go(func() error { return journal.Run(sinkCtx) })
	sinks.Go(func() error { return snapshots.Run(sinkCtx) })
	if prices.ticks != nil {
		sinks.Go(func() error { return prices.ticks.Run(sinkCtx) })
	}

	g, gctx := errgroup.WithContext(ctx)
	prices.start(gctx, g)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error {
		return feed.NewRolloverScheduler(commands, exec.BalanceSOL, clk, a.logger).Run(gctx)
	})
	g.Go(func() error { return a.cleanupDedup(gctx, dedup) })
	if deps.SignalBus != nil {
		reader := feed.NewSignalReader(feed.DefaultSignalReaderConfig(), deps.SignalBus, signals, commands, clk, a.logger)
		g.Go(func() error { return reader.Run(gctx) })
	}
	if lock != nil {
		g.Go(func() error { return a.holdLock(gctx, lock) })
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, engine, prices.agg, commands, journal, clk)
	}

	err = g.Wait()
	stopSinks()
	if sinkErr := sinks.Wait(); sinkErr != nil && !errors.Is(sinkErr, context.Canceled) {
		a.logger.Error("sink stopped with error", slog.String("error", sinkErr.Error()))
	}
	return err
}

// MonitorMode runs the price plumbing, signal intake and the operator API
// without a trading engine. The positions of the last snapshot and every
// signalled asset are priced and published, but no order is placed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	clk := clock.Real{}

	signals := feed.NewQueue[domain.QueueSignal]("signals", a.cfg.Engine.QueueCapacity)
	commands := feed.NewQueue[domain.Command]("commands", a.cfg.Engine.QueueCapacity)

	prices, err := a.buildPrices(deps, clk)
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	safety := service.NewSafetySupervisor(service.SafetyConfig{
		MaxDailyLossSOL: a.cfg.Safety.MaxDailyLossSOL,
		MaxDailyLossPct: a.cfg.Safety.MaxDailyLossPct,
		MaxDailyTrades:  a.cfg.Safety.MaxDailyTrades,
		MinReserveSOL:   a.cfg.Safety.MinReserveSOL,
		Cooldown:        a.cfg.Safety.Cooldown.Duration,
	}, clk, a.logger)
	watcher := NewWatcher(a.cfg.Engine.TickInterval.Duration, prices.agg, signals, commands, safety, clk, a.logger)

	snapshots := a.newSnapshotService(deps)
	snap, err := snapshots.Latest(ctx)
	switch {
	case err == nil:
		watcher.Restore(snap)
	case errors.Is(err, domain.ErrNotFound):
		a.logger.InfoContext(ctx, "no snapshot to monitor, watching signals only")
	default:
		a.logger.WarnContext(ctx, "snapshot read failed, watching signals only",
			slog.String("error", err.Error()),
		)
	}

	sinkCtx, stopSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSinks()
	sinks, sinkCtx := errgroup.WithContext(sinkCtx)
	if prices.ticks != nil {
		sinks.Go(func() error { return prices.ticks.Run(sinkCtx) })
	}

	g, gctx := errgroup.WithContext(ctx)
	prices.start(gctx, g)
	g.Go(func() error { return watcher.Run(gctx) })
	if deps.SignalBus != nil {
		reader := feed.NewSignalReader(feed.DefaultSignalReaderConfig(), deps.SignalBus, signals, commands, clk, a.logger)
		g.Go(func() error { return reader.Run(gctx) })
	}

	// HTTP server is always started in monitor mode.
	journal := service.NewJournal(service.JournalDeps{Trades: deps.TradeStore}, 1, a.logger)
	a.startHTTPServer(gctx, g, deps, watcher, prices.agg, commands, journal, clk)

	err = g.Wait()
	stopSinks()
	if sinkErr := sinks.Wait(); sinkErr != nil && !errors.Is(sinkErr, context.Canceled) {
		a.logger.Error("sink stopped with error", slog.String("error", sinkErr.Error()))
	}
	return err
}

// priceStack is the Price Aggregator and the feeds that push into it.
type priceStack struct {
	agg     *service.PriceAggregator
	stream  *feed.PumpStream
	market  *feed.FlowMarket
	quotes  domain.PriceSource
	ticks   *service.TickBatcher
	pollers []*feed.Poller
}

func (a *App) buildPrices(deps *Dependencies, clk clock.Clock) (*priceStack, error) {
	pc := a.cfg.Price
	jup := jupiter.NewClient(a.cfg.Market.JupiterURL, a.cfg.Market.JupiterAPIKey, a.cfg.Market.SOLMint, pc.FetchTimeout.Duration)
	dex := dexscreener.NewClient(a.cfg.Market.DexScreenerURL, a.cfg.Market.SOLMint, clk, pc.FetchTimeout.Duration)

	chain, err := fallbackChain(pc.FallbackChain, jup, dex)
	if err != nil {
		return nil, err
	}

	stream := feed.NewPumpStream(feed.StreamConfig{
		URL:         a.cfg.Market.PumpPortalWS,
		BackoffBase: pc.BackoffBase.Duration,
		BackoffMax:  pc.BackoffMax.Duration,
	}, nil, a.logger)
	flow := feed.NewTradeFlow(clk)
	stream.TrackFlow(flow)

	opts := []service.AggregatorOption{
		service.WithStream(stream),
		service.WithRateLimiter(deps.RateLimiter),
		service.WithMirror(deps.PriceCache),
	}
	var ticks *service.TickBatcher
	if deps.TickSink != nil {
		ticks = service.NewTickBatcher(service.TickBatcherConfig{
			BatchSize:     a.cfg.ClickHouse.BatchSize,
			FlushInterval: a.cfg.ClickHouse.FlushInterval.Duration,
		}, deps.TickSink, a.logger)
		opts = append(opts, service.WithTickRecorder(ticks))
	}

	agg := service.NewPriceAggregator(service.AggregatorConfig{
		StaleThreshold:  pc.StaleThreshold.Duration,
		HealthInterval:  pc.HealthInterval.Duration,
		FallbackSpacing: pc.FallbackSpacing.Duration,
		PriorityHold:    pc.PriorityHold.Duration,
		FetchTimeout:    pc.FetchTimeout.Duration,
	}, clk, chain, a.logger, opts...)
	stream.Attach(agg)

	pollCfg := func(interval time.Duration) feed.PollerConfig {
		return feed.PollerConfig{
			Interval:    interval,
			BackoffBase: pc.BackoffBase.Duration,
			BackoffMax:  pc.BackoffMax.Duration,
			Timeout:     pc.FetchTimeout.Duration,
		}
	}
	pollers := []*feed.Poller{
		feed.NewPoller("open", pollCfg(pc.OpenPollInterval.Duration), jup, agg.OpenMints, domain.SourceOpenPoller, agg, a.logger),
		feed.NewPoller("migrated", pollCfg(pc.MigratedPollInterval.Duration), dex, agg.PolledMints, domain.SourceMigratedPoller, agg, a.logger),
	}

	return &priceStack{
		agg:     agg,
		stream:  stream,
		market:  feed.NewFlowMarket(dex, flow),
		quotes:  jup,
		ticks:   ticks,
		pollers: pollers,
	}, nil
}

func (s *priceStack) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return s.stream.Run(ctx) })
	g.Go(func() error { return s.agg.RunHealthLoop(ctx) })
	g.Go(func() error { return s.agg.RunMirror(ctx) })
	for _, p := range s.pollers {
		g.Go(func() error { return p.Run(ctx) })
	}
}

// fallbackChain orders the pull sources by name.
func fallbackChain(names []string, jup *jupiter.Client, dex *dexscreener.Client) ([]domain.PriceSource, error) {
	chain := make([]domain.PriceSource, 0, len(names))
	for _, name := range names {
		switch name {
		case "jupiter":
			chain = append(chain, jup)
		case "dexscreener":
			chain = append(chain, dex)
		default:
			return nil, fmt.Errorf("unknown price source %q", name)
		}
	}
	return chain, nil
}

// buildExecutor returns the guarded executor and, for the paper venue, the
// simulated broker behind it.
func (a *App) buildExecutor(quotes domain.PriceSource) (*executor.Executor, *executor.Paper) {
	exCfg := executor.DefaultConfig()
	if a.cfg.Execution.Timeout.Duration > 0 {
		exCfg.Timeout = a.cfg.Execution.Timeout.Duration
	}

	if a.cfg.Execution.Venue == "remote" {
		var auth *crypto.HMACAuth
		if a.cfg.Execution.RemoteKey != "" {
			auth = &crypto.HMACAuth{Key: a.cfg.Execution.RemoteKey, Secret: a.cfg.Execution.RemoteSecret}
		}
		remote := executor.NewRemote(a.cfg.Execution.RemoteURL, auth, exCfg.Timeout)
		return executor.New(remote, exCfg, a.logger), nil
	}

	fees := a.cfg.Fees
	paper := executor.NewPaper(executor.PaperConfig{
		StartingBalanceSOL: a.cfg.Engine.PaperBalanceSOL,
		SlippageBps:        a.cfg.Execution.SlippageBps,
		FeeBps:             fees.SwapFeeBps,
		FixedFeeSOL:        fees.PriorityFeeSOL + fees.BaseFeeSOL + fees.TipSOL,
		TokenDecimals:      6,
	}, quotes)
	return executor.New(paper, exCfg, a.logger), paper
}

func (a *App) strategyConfig() (strategy.EngineConfig, *strategy.Scorer, *strategy.Lifecycle, *strategy.Exits, strategy.RiskConfig) {
	ec, lc, sc, xc, fc := a.cfg.Engine, a.cfg.Lifecycle, a.cfg.Scorer, a.cfg.Exit, a.cfg.Fees

	engineCfg := strategy.EngineConfig{
		TickInterval:       ec.TickInterval.Duration,
		MaxPositions:       ec.MaxPositions,
		ScoutSizeSOL:       ec.ScoutSizeSOL,
		ConfirmAddSOL:      ec.ConfirmSizeSOL,
		ConvictionAddSOL:   ec.ConvictionSizeSOL,
		MaxPositionSizeSOL: ec.MaxPositionSizeSOL,
		SnapshotInterval:   ec.SnapshotInterval.Duration,
		StaleMaxHold:       ec.StaleMaxHold.Duration,
		TradedCooldown:     ec.TradedCooldown.Duration,
		CrashThreshold:     ec.CrashThreshold,
		CrashWarmup:        ec.CrashWarmup.Duration,
		MomentumWindow:     ec.MomentumWindow.Duration,
	}
	scorer := strategy.NewScorer(strategy.ScorerConfig{
		TxAccelMin:         sc.TxAccelMin,
		WalletAccelMin:     sc.WalletAccelMin,
		CurveAccelMin:      sc.CurveAccelMin,
		AbsorptionRatio:    sc.AbsorptionRatio,
		MinTxns5m:          sc.MinTxns5m,
		MaxAvgTradeUSD:     sc.MaxAvgTradeUSD,
		MinUniqueBuyerRate: sc.MinUniqueBuyerRate,
	})
	lifecycle := strategy.NewLifecycle(strategy.LifecycleConfig{
		ScoutTimeout:             lc.ScoutTimeout.Duration,
		ScoutStopLossPct:         lc.ScoutStopLossPct,
		SelectionThreshold:       lc.SelectionThreshold,
		SelectionWindows:         lc.SelectionWindows,
		ConfirmMinPnLPct:         lc.ConfirmMinPnLPct,
		ConfirmStopLossPct:       lc.ConfirmStopLossPct,
		ConvictionThreshold:      lc.ConvictionThreshold,
		ConvictionWindows:        lc.ConvictionWindows,
		ConvictionProfitPct:      lc.ConvictionProfitPct,
		ConvictionStopLossPct:    lc.ConvictionStopLossPct,
		MoonbagStopLossPct:       lc.MoonbagStopLossPct,
		MoonbagRemainingFraction: lc.MoonbagRemainingFraction,
	})
	exits := strategy.NewExits(strategy.ExitConfig{
		BasePct:              xc.TrailingBasePct,
		MinPct:               xc.TrailingMinPct,
		MaxPct:               xc.TrailingMaxPct,
		UnderwaterPct:        xc.UnderwaterPct,
		BreakEvenMinTrailPct: xc.BreakEvenMinTrailPct,
		BreakEvenSellPct:     xc.BreakEvenSellPct,
		BreakEvenBufferPct:   xc.BreakEvenBufferPct,
		BreakEvenFloor:       xc.BreakEvenFloor,
		GraceWindow:          xc.GraceWindow.Duration,
		MoonbagTriggerPct:    xc.MoonbagTriggerPct,
		MoonbagSellFraction:  xc.MoonbagSellFraction,
		RiskMediumSell:       xc.RiskMediumSell,
		RiskHighSell:         xc.RiskHighSell,
		ParabolicHighSell:    xc.ParabolicHighSell,
	}, strategy.FeeModel{
		SwapFeeBps:     fc.SwapFeeBps,
		ExitFeeBps:     fc.ExitFeeBps,
		PriorityFeeSOL: fc.PriorityFeeSOL,
		BaseFeeSOL:     fc.BaseFeeSOL,
		TipSOL:         fc.TipSOL,
	})
	risk := strategy.RiskConfig{
		LowToMedium:  xc.RiskLowToMedium,
		ToHigh:       xc.RiskToHigh,
		MediumToLow:  xc.RiskMediumToLow,
		HighToMedium: xc.RiskHighToMedium,
	}
	return engineCfg, scorer, lifecycle, exits, risk
}

func (a *App) newSnapshotService(deps *Dependencies) *service.SnapshotService {
	return service.NewSnapshotService(service.SnapshotServiceConfig{
		Keep:         a.cfg.Postgres.KeepSnapshots,
		ArchiveEvery: a.cfg.S3.ArchiveEvery,
	}, deps.SnapshotStore, deps.SnapshotArchive, a.logger)
}

// restore loads the newest snapshot into the engine, or seeds a fresh day
// from the venue balance when there is none. Any other read failure aborts
// start-up: trading on without the open positions would orphan them.
func (a *App) restore(ctx context.Context, snapshots *service.SnapshotService, engine *strategy.Engine, safety *service.SafetySupervisor, exec *executor.Executor, paper *executor.Paper) error {
	if a.cfg.Engine.RestoreOnStart {
		snap, err := snapshots.Latest(ctx)
		switch {
		case err == nil:
			engine.Restore(snap)
			if paper != nil {
				paper.SetBalance(snap.Account.BalanceSOL)
				for _, p := range snap.Positions {
					paper.Seed(p.Mint, p.TokenAmountRaw)
				}
			}
			a.logger.InfoContext(ctx, "state restored",
				slog.String("snapshot_id", snap.ID),
				slog.Time("taken_at", snap.TakenAt),
				slog.Int("positions", len(snap.Positions)),
			)
			return nil
		case errors.Is(err, domain.ErrNotFound):
			a.logger.InfoContext(ctx, "no snapshot found, starting fresh")
		default:
			return fmt.Errorf("restore snapshot: %w", err)
		}
	}

	balance, err := exec.BalanceSOL(ctx)
	if err != nil {
		return fmt.Errorf("read starting balance: %w", err)
	}
	safety.Seed(balance)
	a.logger.InfoContext(ctx, "trading day seeded", slog.Float64("balance_sol", balance))
	return nil
}

// holdLock extends the instance lock until ctx is done. Losing the lock stops
// the process.
func (a *App) holdLock(ctx context.Context, lock domain.Lock) error {
	ttl := a.cfg.Redis.LockTTL.Duration
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := lock.Extend(ctx, ttl); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("instance lock: %w", err)
			}
		}
	}
}

// cleanupDedup bounds the signal dedup memory.
func (a *App) cleanupDedup(ctx context.Context, dedup *executor.Dedup) error {
	interval := a.cfg.Engine.SignalDedupTTL.Duration
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := dedup.Cleanup(); n > 0 {
				a.logger.DebugContext(ctx, "dedup entries expired",
					slog.Int("removed", n),
					slog.Int("tracked", dedup.Len()),
				)
			}
		}
	}
}

// startHTTPServer builds the operator API and runs it with its WebSocket hub
// inside g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, views handler.ViewSource, prices handler.PriceReader, commands handler.CommandPusher, trades handler.TradeJournal, clk clock.Clock) {
	tick := a.cfg.Engine.TickInterval.Duration
	maxLag := max(5*tick, 10*time.Second)

	hub := ws.NewHub(ws.Config{
		ViewInterval:   tick,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	}, deps.SignalBus, views, a.logger)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(views, deps.Pingers, maxLag, clk, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Execution.Venue, clk.Now(), views, clk),
		Positions: handler.NewPositionHandler(views),
		Safety:    handler.NewSafetyHandler(views),
		Prices:    handler.NewPriceHandler(prices, deps.PriceCache, a.logger),
		Control:   handler.NewControlHandler(commands, clk, a.logger),
		Trades:    handler.NewTradeHandler(trades, a.logger),
		Hub:       hub,
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
}
