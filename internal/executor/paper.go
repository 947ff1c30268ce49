package executor

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// PaperConfig holds the simulated cost structure.
type PaperConfig struct {
	StartingBalanceSOL float64
	SlippageBps        float64
	FeeBps             float64
	FixedFeeSOL        float64
	TokenDecimals      int
}

// DefaultPaperConfig returns a cost structure close to a bonding-curve venue.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		StartingBalanceSOL: 1.0,
		SlippageBps:        100,
		FeeBps:             50,
		FixedFeeSOL:        0.000355,
		TokenDecimals:      6,
	}
}

// Paper is a simulated venue. It fills at the reference price moved against
// the trader by the slippage, charges the proportional and fixed fees, and
// tracks SOL and token balances in memory.
type Paper struct {
	cfg    PaperConfig
	quotes domain.PriceSource
	scale  float64

	mu       sync.Mutex
	balance  float64
	holdings map[string]uint64
}

var (
	_ Venue         = (*Paper)(nil)
	_ BalanceReader = (*Paper)(nil)
)

// NewPaper creates a Paper venue. quotes, when set, re-quotes orders that
// arrive without a reference price.
func NewPaper(cfg PaperConfig, quotes domain.PriceSource) *Paper {
	return &Paper{
		cfg:      cfg,
		quotes:   quotes,
		scale:    math.Pow10(cfg.TokenDecimals),
		balance:  cfg.StartingBalanceSOL,
		holdings: make(map[string]uint64),
	}
}

// Name implements Venue.
func (p *Paper) Name() string { return "paper" }

// Swap implements Venue.
func (p *Paper) Swap(ctx context.Context, o Order) (domain.Fill, error) {
	ref := o.ReferencePrice
	if ref <= 0 && p.quotes != nil {
		if q, ok := p.quotes.FetchPrice(ctx, o.Mint); ok {
			ref = q
		}
	}
	if ref <= 0 {
		return domain.Fill{}, fmt.Errorf("executor/paper: %w: no quote for %s", ErrTransient, o.Mint)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch o.Side {
	case domain.SideBuy:
		return p.buy(o, ref)
	case domain.SideSell:
		return p.sell(o, ref)
	default:
		return domain.Fill{}, fmt.Errorf("executor/paper: unknown side %q", o.Side)
	}
}

func (p *Paper) buy(o Order, ref float64) (domain.Fill, error) {
	if o.SizeSOL <= 0 {
		return domain.Fill{}, fmt.Errorf("executor/paper: buy size %g must be positive", o.SizeSOL)
	}
	if o.SizeSOL > p.balance {
		return domain.Fill{}, fmt.Errorf("executor/paper: %w: want %.6f, have %.6f", ErrInsufficientFunds, o.SizeSOL, p.balance)
	}
	net := o.SizeSOL*(1-p.cfg.FeeBps/10_000) - p.cfg.FixedFeeSOL
	if net <= 0 {
		return domain.Fill{}, fmt.Errorf("executor/paper: buy of %g SOL is eaten by fees", o.SizeSOL)
	}
	price := ref * (1 + p.cfg.SlippageBps/10_000)
	tokens := uint64(net / price * p.scale)

	p.balance -= o.SizeSOL
	p.holdings[o.Mint] += tokens
	return domain.Fill{
		Success:        true,
		FilledSizeSOL:  o.SizeSOL,
		FilledPrice:    price,
		TokenAmountRaw: tokens,
		Signature:      "paper-" + uuid.NewString(),
	}, nil
}

func (p *Paper) sell(o Order, ref float64) (domain.Fill, error) {
	held := p.holdings[o.Mint]
	if held == 0 {
		return domain.Fill{}, fmt.Errorf("executor/paper: %w: %s", ErrNoBalance, o.Mint)
	}
	tokens := held
	if !o.All {
		tokens = uint64(float64(held) * o.Fraction)
	}
	if tokens == 0 {
		return domain.Fill{}, fmt.Errorf("executor/paper: sell of %g rounds to zero tokens", o.Fraction)
	}
	price := ref * (1 - p.cfg.SlippageBps/10_000)
	proceeds := float64(tokens)/p.scale*price*(1-p.cfg.FeeBps/10_000) - p.cfg.FixedFeeSOL
	if proceeds < 0 {
		proceeds = 0
	}

	p.holdings[o.Mint] = held - tokens
	if p.holdings[o.Mint] == 0 {
		delete(p.holdings, o.Mint)
	}
	p.balance += proceeds
	return domain.Fill{
		Success:        true,
		FilledSizeSOL:  proceeds,
		FilledPrice:    price,
		TokenAmountRaw: tokens,
		Signature:      "paper-" + uuid.NewString(),
	}, nil
}

// BalanceSOL implements BalanceReader.
func (p *Paper) BalanceSOL(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// Holding returns the raw token amount held for mint.
func (p *Paper) Holding(mint string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings[mint]
}

// Seed sets a holding directly, for restoring a paper session.
func (p *Paper) Seed(mint string, tokens uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tokens == 0 {
		delete(p.holdings, mint)
		return
	}
	p.holdings[mint] = tokens
}

// SetBalance replaces the SOL balance, for restoring a paper session.
func (p *Paper) SetBalance(balanceSOL float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = balanceSOL
}
