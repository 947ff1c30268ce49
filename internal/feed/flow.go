package feed

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
)

const flowWindow = time.Hour

type flowTrade struct {
	trader string
	at     time.Time
}

// TradeFlow counts distinct buying wallets per asset from the push stream
// over the last 5 minutes and the last hour.
type TradeFlow struct {
	clock clock.Clock

	mu   sync.Mutex
	buys map[string][]flowTrade
}

// NewTradeFlow creates an empty TradeFlow.
func NewTradeFlow(c clock.Clock) *TradeFlow {
	return &TradeFlow{clock: c, buys: make(map[string][]flowTrade)}
}

// ObserveBuy records a buy of mint by trader.
func (f *TradeFlow) ObserveBuy(mint, trader string) {
	now := f.clock.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buys[mint] = append(prune(f.buys[mint], now), flowTrade{trader: trader, at: now})
}

// Buyers returns the distinct buyer counts over 5 minutes and 1 hour.
func (f *TradeFlow) Buyers(mint string) (buyers5m, buyers1h int) {
	now := f.clock.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	trades := prune(f.buys[mint], now)
	if len(trades) == 0 {
		delete(f.buys, mint)
		return 0, 0
	}
	f.buys[mint] = trades

	seen1h := make(map[string]struct{}, len(trades))
	seen5m := make(map[string]struct{})
	for _, t := range trades {
		seen1h[t.trader] = struct{}{}
		if now.Sub(t.at) <= 5*time.Minute {
			seen5m[t.trader] = struct{}{}
		}
	}
	return len(seen5m), len(seen1h)
}

// Forget drops all history for mint.
func (f *TradeFlow) Forget(mint string) {
	f.mu.Lock()
	delete(f.buys, mint)
	f.mu.Unlock()
}

func prune(trades []flowTrade, now time.Time) []flowTrade {
	i := 0
	for i < len(trades) && now.Sub(trades[i].at) > flowWindow {
		i++
	}
	return trades[i:]
}

// FlowMarket overlays stream-derived buyer counts on a market data provider
// that does not report them.
type FlowMarket struct {
	base domain.MarketDataProvider
	flow *TradeFlow
}

var _ domain.MarketDataProvider = (*FlowMarket)(nil)

// NewFlowMarket wraps base.
func NewFlowMarket(base domain.MarketDataProvider, flow *TradeFlow) *FlowMarket {
	return &FlowMarket{base: base, flow: flow}
}

// TokenInfo implements domain.MarketDataProvider.
func (m *FlowMarket) TokenInfo(ctx context.Context, mint string) (domain.TokenInfo, error) {
	info, err := m.base.TokenInfo(ctx, mint)
	if err != nil {
		return info, err
	}
	if info.Market.Buyers5m == 0 && info.Market.Buyers1h == 0 {
		info.Market.Buyers5m, info.Market.Buyers1h = m.flow.Buyers(mint)
	}
	return info, nil
}
