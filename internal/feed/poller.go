package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// PollerConfig holds one background poller's cadence.
type PollerConfig struct {
	Interval    time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Timeout     time.Duration
}

// Poller periodically batch-fetches prices for a changing set of assets and
// feeds them to the aggregator under one source rank. Fetch failures back
// off exponentially; a success resets the delay to Interval.
type Poller struct {
	name    string
	cfg     PollerConfig
	fetcher domain.BatchPriceFetcher
	mints   func() []string
	source  domain.PriceSourceKind
	updater PriceUpdater
	logger  *slog.Logger
}

// NewPoller creates a Poller. mints is called before each round; an empty
// set skips the round.
func NewPoller(name string, cfg PollerConfig, fetcher domain.BatchPriceFetcher, mints func() []string, source domain.PriceSourceKind, updater PriceUpdater, logger *slog.Logger) *Poller {
	return &Poller{
		name:    name,
		cfg:     cfg,
		fetcher: fetcher,
		mints:   mints,
		source:  source,
		updater: updater,
		logger: logger.With(
			slog.String("component", "poller"),
			slog.String("poller", name),
			slog.String("fetcher", fetcher.Name()),
		),
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poller started", slog.Duration("interval", p.cfg.Interval))
	defer p.logger.Info("poller stopped")

	delay := p.cfg.Interval
	backoff := p.cfg.BackoffBase
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.WarnContext(ctx, "poll failed, backing off",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)
			delay = backoff
			backoff *= 2
			if backoff > p.cfg.BackoffMax {
				backoff = p.cfg.BackoffMax
			}
			continue
		}
		delay = p.cfg.Interval
		backoff = p.cfg.BackoffBase
	}
}

// Poll runs a single round.
func (p *Poller) Poll(ctx context.Context) error {
	mints := p.mints()
	if len(mints) == 0 {
		return nil
	}
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	prices, err := p.fetcher.FetchPrices(ctx, mints)
	if err != nil {
		return err
	}
	accepted := 0
	for _, mint := range mints {
		price, ok := prices[mint]
		if !ok || price <= 0 {
			continue
		}
		if p.updater.UpdatePrice(mint, price, p.source) {
			accepted++
		}
	}
	p.logger.DebugContext(ctx, "poll round",
		slog.Int("requested", len(mints)),
		slog.Int("returned", len(prices)),
		slog.Int("accepted", accepted),
	)
	return nil
}
