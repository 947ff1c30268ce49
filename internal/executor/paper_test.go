package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

type fixedQuote float64

func (fixedQuote) Name() string { return "fixed" }

func (q fixedQuote) FetchPrice(context.Context, string) (float64, bool) {
	return float64(q), q > 0
}

func frictionless() PaperConfig {
	return PaperConfig{StartingBalanceSOL: 1, TokenDecimals: 6}
}

func TestPaperBuyAndSellRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(frictionless(), nil)

	fill, err := p.Swap(ctx, Order{Mint: "m", Side: domain.SideBuy, SizeSOL: 0.1, ReferencePrice: 0.5})
	require.NoError(t, err)
	assert.True(t, fill.Usable())
	assert.InDelta(t, 200_000, float64(fill.TokenAmountRaw), 1)
	assert.InDelta(t, 200_000, float64(p.Holding("m")), 1)

	bal, _ := p.BalanceSOL(ctx)
	assert.InDelta(t, 0.9, bal, 1e-9)

	fill, err = p.Swap(ctx, Order{Mint: "m", Side: domain.SideSell, Fraction: 0.5, ReferencePrice: 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, fill.FilledSizeSOL, 1e-5)
	assert.InDelta(t, 100_000, float64(p.Holding("m")), 1)

	fill, err = p.Swap(ctx, Order{Mint: "m", Side: domain.SideSell, All: true, ReferencePrice: 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, fill.FilledSizeSOL, 1e-5)
	assert.Zero(t, p.Holding("m"))

	bal, _ = p.BalanceSOL(ctx)
	assert.InDelta(t, 1.1, bal, 1e-5)
}

func TestPaperAppliesSlippageAndFees(t *testing.T) {
	cfg := PaperConfig{StartingBalanceSOL: 1, SlippageBps: 100, FeeBps: 100, FixedFeeSOL: 0.001, TokenDecimals: 6}
	p := NewPaper(cfg, nil)

	fill, err := p.Swap(context.Background(), Order{Mint: "m", Side: domain.SideBuy, SizeSOL: 0.1, ReferencePrice: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.01, fill.FilledPrice, 1e-12)
	// (0.1 * 0.99 - 0.001) / 1.01 tokens
	assert.InDelta(t, 97_029, float64(fill.TokenAmountRaw), 1)
	assert.InDelta(t, 0.1, fill.FilledSizeSOL, 1e-12)
}

func TestPaperSellWithoutHoldingIsNoBalance(t *testing.T) {
	p := NewPaper(frictionless(), nil)
	_, err := p.Swap(context.Background(), Order{Mint: "m", Side: domain.SideSell, All: true, ReferencePrice: 1})
	assert.ErrorIs(t, err, ErrNoBalance)
}

func TestPaperRejectsOversizedBuy(t *testing.T) {
	p := NewPaper(frictionless(), nil)
	_, err := p.Swap(context.Background(), Order{Mint: "m", Side: domain.SideBuy, SizeSOL: 2, ReferencePrice: 1})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Zero(t, p.Holding("m"))
}

func TestPaperRequotesMissingReference(t *testing.T) {
	ctx := context.Background()

	p := NewPaper(frictionless(), fixedQuote(0.25))
	fill, err := p.Swap(ctx, Order{Mint: "m", Side: domain.SideBuy, SizeSOL: 0.1})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, fill.FilledPrice, 1e-12)

	bare := NewPaper(frictionless(), nil)
	_, err = bare.Swap(ctx, Order{Mint: "m", Side: domain.SideBuy, SizeSOL: 0.1})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestPaperSeed(t *testing.T) {
	p := NewPaper(frictionless(), nil)
	p.Seed("m", 500)
	assert.Equal(t, uint64(500), p.Holding("m"))
	p.Seed("m", 0)
	assert.Zero(t, p.Holding("m"))

	p.SetBalance(2.5)
	bal, err := p.BalanceSOL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.5, bal)
}
