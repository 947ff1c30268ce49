package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// BounceConfig holds the re-entry watchdog parameters.
type BounceConfig struct {
	Enabled         bool
	Threshold       float64
	MinVolumeSpike  float64
	MaxReentries    int
	SizeMultiplier  float64
	MonitorDuration time.Duration
	Triggers        []string
}

// DefaultBounceConfig returns the production parameters.
func DefaultBounceConfig() BounceConfig {
	return BounceConfig{
		Enabled:         true,
		Threshold:       0.15,
		MinVolumeSpike:  0.5,
		MaxReentries:    1,
		SizeMultiplier:  0.5,
		MonitorDuration: 30 * time.Minute,
		Triggers:        []string{"stop-loss", "crash"},
	}
}

// QuoteReader is the read side of the Price Aggregator.
type QuoteReader interface {
	GetLatestPrice(mint string) (domain.Quote, bool)
}

// BounceWatchdog watches recently stopped-out assets for a rebound off their
// post-exit bottom and emits sized re-entry signals. It is owned by the
// control loop and is not safe for concurrent use.
type BounceWatchdog struct {
	cfg      BounceConfig
	prices   QuoteReader
	market   domain.MarketDataProvider
	triggers map[string]bool
	entries  map[string]*domain.BounceWatchlistEntry
	logger   *slog.Logger
}

// NewBounceWatchdog creates a BounceWatchdog. market may be nil, in which
// case the volume spike check is skipped.
func NewBounceWatchdog(cfg BounceConfig, prices QuoteReader, market domain.MarketDataProvider, logger *slog.Logger) *BounceWatchdog {
	triggers := make(map[string]bool, len(cfg.Triggers))
	for _, r := range cfg.Triggers {
		triggers[r] = true
	}
	return &BounceWatchdog{
		cfg:      cfg,
		prices:   prices,
		market:   market,
		triggers: triggers,
		entries:  make(map[string]*domain.BounceWatchlistEntry),
		logger:   logger.With(slog.String("component", "bounce_watchdog")),
	}
}

// Watch registers a losing force-close. Only configured exit reasons
// qualify, and a position that was itself a bounce re-entry is not watched
// again. It reports whether an entry was added.
func (w *BounceWatchdog) Watch(p *domain.Position, exitPrice, pnlSOL float64, reason string, now time.Time) bool {
	if !w.cfg.Enabled || pnlSOL >= 0 || exitPrice <= 0 || !w.triggers[reason] || p.BounceReentry > 0 {
		return false
	}
	e := &domain.BounceWatchlistEntry{
		Mint:            p.Mint,
		Symbol:          p.Symbol,
		Phase:           p.Phase,
		Reason:          reason,
		OriginalSizeSOL: p.InitialSizeSOL,
		OriginalLossSOL: pnlSOL,
		ExitPrice:       exitPrice,
		ExitTime:        now,
		BottomPrice:     exitPrice,
	}
	w.entries[p.Mint] = e
	w.logger.Info("bounce watch added",
		slog.String("mint", e.Mint),
		slog.String("symbol", e.Symbol),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("loss_sol", pnlSOL),
		slog.Duration("monitor", w.cfg.MonitorDuration),
	)
	return true
}

// Check runs one pass over the watchlist. It returns the re-entry signals to
// act on and the mints whose entries were dropped, expired or exhausted, so
// the caller can release their price subscriptions.
func (w *BounceWatchdog) Check(ctx context.Context, now time.Time) ([]domain.QueueSignal, []string) {
	var (
		signals []domain.QueueSignal
		removed []string
	)
	for _, mint := range w.sortedMints() {
		e := w.entries[mint]
		if now.Sub(e.ExitTime) > w.cfg.MonitorDuration {
			delete(w.entries, mint)
			removed = append(removed, mint)
			w.logger.InfoContext(ctx, "bounce watch expired", slog.String("mint", mint))
			continue
		}

		q, ok := w.prices.GetLatestPrice(mint)
		if !ok {
			continue
		}
		if q.Price < e.BottomPrice {
			e.BottomPrice = q.Price
			w.logger.DebugContext(ctx, "bounce bottom lowered",
				slog.String("mint", mint),
				slog.Float64("bottom", q.Price),
			)
			continue
		}
		bounce := e.BouncePct(q.Price)
		if bounce <= w.cfg.Threshold || e.ReentryCount >= w.cfg.MaxReentries {
			continue
		}
		spike, ok := w.volumeSpike(ctx, mint)
		if !ok || spike < w.cfg.MinVolumeSpike {
			continue
		}

		e.ReentryCount++
		signals = append(signals, domain.QueueSignal{
			ID:        uuid.NewString(),
			Mint:      mint,
			Symbol:    e.Symbol,
			Action:    domain.ActionBuy,
			SizeSOL:   e.OriginalSizeSOL * w.cfg.SizeMultiplier,
			Phase:     e.Phase,
			Source:    domain.SourceBounce,
			Reason:    fmt.Sprintf("bounce +%.1f%% off bottom", bounce*100),
			Timestamp: now,
		})
		w.logger.InfoContext(ctx, "bounce detected",
			slog.String("mint", mint),
			slog.Float64("bounce_pct", bounce*100),
			slog.Float64("bottom", e.BottomPrice),
			slog.Float64("price", q.Price),
			slog.Float64("volume_spike_pct", spike*100),
		)
		if e.ReentryCount >= w.cfg.MaxReentries {
			delete(w.entries, mint)
			removed = append(removed, mint)
		}
	}
	return signals, removed
}

// volumeSpike compares the 5m volume with the average 5m slice of the last
// hour. Without a market provider the check passes.
func (w *BounceWatchdog) volumeSpike(ctx context.Context, mint string) (float64, bool) {
	if w.market == nil {
		return w.cfg.MinVolumeSpike, true
	}
	info, err := w.market.TokenInfo(ctx, mint)
	if err != nil {
		w.logger.WarnContext(ctx, "bounce volume lookup failed",
			slog.String("mint", mint),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	baseline := info.Market.Volume1hUSD / 12
	if baseline <= 0 {
		return 0, info.Market.Volume5mUSD > 0
	}
	return info.Market.Volume5mUSD/baseline - 1, true
}

// Remove drops mint from the watchlist and reports whether it was present.
func (w *BounceWatchdog) Remove(mint string) bool {
	if _, ok := w.entries[mint]; !ok {
		return false
	}
	delete(w.entries, mint)
	return true
}

// Has reports whether mint is being watched.
func (w *BounceWatchdog) Has(mint string) bool {
	_, ok := w.entries[mint]
	return ok
}

// Entries returns copies of the watchlist, sorted by mint.
func (w *BounceWatchdog) Entries() []domain.BounceWatchlistEntry {
	out := make([]domain.BounceWatchlistEntry, 0, len(w.entries))
	for _, mint := range w.sortedMints() {
		out = append(out, *w.entries[mint])
	}
	return out
}

// Restore replaces the watchlist with entries from a snapshot.
func (w *BounceWatchdog) Restore(entries []domain.BounceWatchlistEntry) {
	w.entries = make(map[string]*domain.BounceWatchlistEntry, len(entries))
	for i := range entries {
		e := entries[i]
		w.entries[e.Mint] = &e
	}
}

func (w *BounceWatchdog) sortedMints() []string {
	mints := make([]string, 0, len(w.entries))
	for m := range w.entries {
		mints = append(mints, m)
	}
	sort.Strings(mints)
	return mints
}
