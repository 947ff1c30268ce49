package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

type fakeQuotes map[string]float64

func (f fakeQuotes) GetLatestPrice(mint string) (domain.Quote, bool) {
	p, ok := f[mint]
	if !ok {
		return domain.Quote{}, false
	}
	return domain.Quote{Price: p}, true
}

type fakeMarket struct {
	infos map[string]domain.TokenInfo
	err   error
}

func (f *fakeMarket) TokenInfo(_ context.Context, mint string) (domain.TokenInfo, error) {
	if f.err != nil {
		return domain.TokenInfo{}, f.err
	}
	info, ok := f.infos[mint]
	if !ok {
		return domain.TokenInfo{}, domain.ErrNotFound
	}
	return info, nil
}

func lossPosition(mint string, size float64) *domain.Position {
	return &domain.Position{
		Mint:           mint,
		Symbol:         "TEST",
		Phase:          domain.PhaseBondingCurve,
		State:          domain.StateExit,
		SizeSOL:        size,
		InitialSizeSOL: size,
	}
}

func spikingMarket(mint string) *fakeMarket {
	return &fakeMarket{infos: map[string]domain.TokenInfo{
		mint: {Mint: mint, Market: domain.MarketSignals{Volume5mUSD: 2000, Volume1hUSD: 12000}},
	}}
}

func TestBounceWatchQualifyingExitsOnly(t *testing.T) {
	w := NewBounceWatchdog(DefaultBounceConfig(), fakeQuotes{}, nil, discardLogger())

	assert.False(t, w.Watch(lossPosition("a", 0.1), 1.0, 0.01, "stop-loss", t0), "winning exit")
	assert.False(t, w.Watch(lossPosition("b", 0.1), 1.0, -0.01, "trailing-stop", t0), "non-trigger reason")
	reentry := lossPosition("c", 0.1)
	reentry.BounceReentry = 1
	assert.False(t, w.Watch(reentry, 1.0, -0.01, "stop-loss", t0), "already a re-entry")

	require.True(t, w.Watch(lossPosition("d", 0.1), 1.0, -0.01, "crash", t0))
	entries := w.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 1.0, entries[0].BottomPrice)
	assert.Equal(t, 0.1, entries[0].OriginalSizeSOL)
}

func TestBounceReentryAfterBottom(t *testing.T) {
	cfg := DefaultBounceConfig()
	quotes := fakeQuotes{}
	w := NewBounceWatchdog(cfg, quotes, spikingMarket("m"), discardLogger())
	require.True(t, w.Watch(lossPosition("m", 0.2), 1.0, -0.05, "stop-loss", t0))
	ctx := context.Background()

	quotes["m"] = 0.8
	signals, removed := w.Check(ctx, t0.Add(time.Minute))
	assert.Empty(t, signals)
	assert.Empty(t, removed)
	assert.Equal(t, 0.8, w.Entries()[0].BottomPrice)

	// +12.5% off the bottom is below the threshold
	quotes["m"] = 0.9
	signals, _ = w.Check(ctx, t0.Add(2*time.Minute))
	assert.Empty(t, signals)

	quotes["m"] = 0.96
	signals, removed = w.Check(ctx, t0.Add(3*time.Minute))
	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, "m", sig.Mint)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.Equal(t, domain.SourceBounce, sig.Source)
	assert.InDelta(t, 0.1, sig.SizeSOL, 1e-12)
	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, []string{"m"}, removed, "single re-entry cap reached")
	assert.False(t, w.Has("m"))
}

func TestBounceMustExceedThreshold(t *testing.T) {
	cfg := DefaultBounceConfig()
	cfg.Threshold = 0.25
	quotes := fakeQuotes{}
	w := NewBounceWatchdog(cfg, quotes, spikingMarket("m"), discardLogger())
	require.True(t, w.Watch(lossPosition("m", 0.2), 1.0, -0.05, "stop-loss", t0))
	ctx := context.Background()

	quotes["m"] = 1.25
	signals, _ := w.Check(ctx, t0.Add(time.Minute))
	assert.Empty(t, signals, "a bounce equal to the threshold does not trigger")

	quotes["m"] = 1.26
	signals, _ = w.Check(ctx, t0.Add(2*time.Minute))
	assert.Len(t, signals, 1)
}

func TestBounceNeedsVolumeSpike(t *testing.T) {
	quotes := fakeQuotes{"m": 1.2}
	market := &fakeMarket{infos: map[string]domain.TokenInfo{
		"m": {Mint: "m", Market: domain.MarketSignals{Volume5mUSD: 1100, Volume1hUSD: 12000}},
	}}
	w := NewBounceWatchdog(DefaultBounceConfig(), quotes, market, discardLogger())
	require.True(t, w.Watch(lossPosition("m", 0.2), 1.0, -0.05, "stop-loss", t0))

	signals, _ := w.Check(context.Background(), t0.Add(time.Minute))
	assert.Empty(t, signals, "10% over baseline is not a spike")

	market.err = errors.New("dexscreener down")
	signals, _ = w.Check(context.Background(), t0.Add(2*time.Minute))
	assert.Empty(t, signals)
	assert.True(t, w.Has("m"))
}

func TestBounceEntriesExpire(t *testing.T) {
	cfg := DefaultBounceConfig()
	w := NewBounceWatchdog(cfg, fakeQuotes{}, nil, discardLogger())
	require.True(t, w.Watch(lossPosition("m", 0.2), 1.0, -0.05, "stop-loss", t0))

	_, removed := w.Check(context.Background(), t0.Add(cfg.MonitorDuration))
	assert.Empty(t, removed)

	_, removed = w.Check(context.Background(), t0.Add(cfg.MonitorDuration+time.Second))
	assert.Equal(t, []string{"m"}, removed)
	assert.Empty(t, w.Entries())
}

func TestBounceMultipleReentries(t *testing.T) {
	cfg := DefaultBounceConfig()
	cfg.MaxReentries = 2
	quotes := fakeQuotes{"m": 1.2}
	w := NewBounceWatchdog(cfg, quotes, nil, discardLogger())
	require.True(t, w.Watch(lossPosition("m", 0.2), 1.0, -0.05, "stop-loss", t0))

	signals, removed := w.Check(context.Background(), t0.Add(time.Minute))
	require.Len(t, signals, 1)
	assert.Empty(t, removed)

	signals, removed = w.Check(context.Background(), t0.Add(2*time.Minute))
	require.Len(t, signals, 1)
	assert.Equal(t, []string{"m"}, removed)
}

func TestBounceRestore(t *testing.T) {
	w := NewBounceWatchdog(DefaultBounceConfig(), fakeQuotes{}, nil, discardLogger())
	w.Restore([]domain.BounceWatchlistEntry{
		{Mint: "b", ExitPrice: 1, BottomPrice: 1, ExitTime: t0},
		{Mint: "a", ExitPrice: 2, BottomPrice: 2, ExitTime: t0},
	})
	entries := w.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Mint)
	assert.True(t, w.Remove("b"))
	assert.False(t, w.Remove("b"))
}
