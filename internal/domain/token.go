package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

// Phase classifies where a token currently trades.
type Phase string

const (
	PhaseBondingCurve Phase = "bonding_curve"
	PhaseMigrated     Phase = "migrated"
	PhaseAggregator   Phase = "aggregator"
	PhaseUnknown      Phase = "unknown"
)

// PreMigration reports whether the token still trades on its launch curve,
// which is the only phase served by the push stream.
func (p Phase) PreMigration() bool {
	return p == PhaseBondingCurve
}

// ParsePhase maps loose upstream labels to a Phase.
func ParsePhase(s string) Phase {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bonding_curve", "bonding-curve", "pumpfun", "pump":
		return PhaseBondingCurve
	case "migrated", "raydium", "pumpswap", "pump-amm", "meteora":
		return PhaseMigrated
	case "aggregator", "jupiter":
		return PhaseAggregator
	default:
		return PhaseUnknown
	}
}

// TokenInfo is a read-only market snapshot refreshed once per tick for every
// tracked asset. Prices are quoted in SOL per token.
type TokenInfo struct {
	Mint         string
	Symbol       string
	Age          time.Duration
	LiquidityUSD float64
	VolumeUSD    float64
	Price        float64
	PriceUSD     float64
	Phase        Phase
	Market       MarketSignals
}

// MarketSignals holds every derived market field the decision core reads.
// Zero values mean "unknown" and never satisfy a threshold on their own.
type MarketSignals struct {
	Top10HolderPct         float64
	DevHolderPct           float64
	MintAuthorityRevoked   bool
	FreezeAuthorityRevoked bool

	Volume5mUSD float64
	Volume1hUSD float64
	Txns5m      int
	Txns1h      int
	Buys5m      int
	Sells5m     int
	Buyers5m    int
	Buyers1h    int

	// PriceChange5m is a fraction: 0.12 means +12%.
	PriceChange5m float64
	// PriorHigh1h is the highest price seen in the hour before the current
	// 5 minute window, in SOL.
	PriorHigh1h float64

	// Curve progress in percentage points per minute. Only meaningful while
	// the token is on its bonding curve.
	CurveSlope5m float64
	CurveSlope1h float64
}

// mintLength is the decoded size of a Solana public key.
const mintLength = 32

// NormalizeMint trims surrounding whitespace and validates that s is a base58
// encoded 32 byte public key. Every ingestion point calls it once so that map
// lookups downstream can be exact.
func NormalizeMint(s string) (string, error) {
	m := strings.TrimSpace(s)
	if m == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidMint)
	}
	raw, err := base58.Decode(m)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidMint, m, err)
	}
	if len(raw) != mintLength {
		return "", fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidMint, m, len(raw))
	}
	return m, nil
}
