package domain

import "context"

// Executor is the execution collaborator. Implementations re-quote
// internally and report recoverable failures with Success=false instead of
// returning errors.
type Executor interface {
	Buy(ctx context.Context, mint string, sizeSOL, refPrice float64, reason string) Fill
	// Sell sells fraction (0,1] of the held token amount.
	Sell(ctx context.Context, mint string, fraction, refPrice float64, reason string) Fill
	// SellAll liquidates the full holding. knownTokenAmount is used when the
	// venue cannot look the balance up itself.
	SellAll(ctx context.Context, mint string, refPrice float64, reason string, knownTokenAmount uint64) Fill
}

// MarketDataProvider returns a market snapshot for a mint on demand.
type MarketDataProvider interface {
	TokenInfo(ctx context.Context, mint string) (TokenInfo, error)
}

// PriceSource is one strategy in the pull fallback chain.
type PriceSource interface {
	Name() string
	FetchPrice(ctx context.Context, mint string) (float64, bool)
}

// BatchPriceFetcher serves the background pollers.
type BatchPriceFetcher interface {
	Name() string
	FetchPrices(ctx context.Context, mints []string) (map[string]float64, error)
}
