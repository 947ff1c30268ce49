package strategy

import "github.com/alanyoungcy/convexbot/internal/domain"

// ScorerConfig holds the sub-signal thresholds and anti-fake-volume limits.
type ScorerConfig struct {
	TxAccelMin         float64
	WalletAccelMin     float64
	CurveAccelMin      float64
	AbsorptionRatio    float64
	MinTxns5m          int
	MaxAvgTradeUSD     float64
	MinUniqueBuyerRate float64
}

// DefaultScorerConfig returns the production thresholds.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		TxAccelMin:         1.8,
		WalletAccelMin:     1.6,
		CurveAccelMin:      1.5,
		AbsorptionRatio:    1.2,
		MinTxns5m:          20,
		MaxAvgTradeUSD:     2000,
		MinUniqueBuyerRate: 0.3,
	}
}

// Scorer turns a TokenInfo snapshot into SelectionSignals. It is stateless.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a Scorer.
func NewScorer(cfg ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the five sub-signals and the anti-fake-volume gate. Each
// sub-signal that clears its threshold adds one point.
func (s *Scorer) Score(info domain.TokenInfo) domain.SelectionSignals {
	m := info.Market
	sig := domain.SelectionSignals{
		TxRateAccel:       rateAccel(float64(m.Txns5m), float64(m.Txns1h)),
		WalletInfluxAccel: rateAccel(float64(m.Buyers5m), float64(m.Buyers1h)),
		HigherHigh:        m.PriorHigh1h > 0 && info.Price > m.PriorHigh1h,
		SellAbsorption:    m.Sells5m > 0 && float64(m.Buys5m) >= s.cfg.AbsorptionRatio*float64(m.Sells5m) && m.PriceChange5m >= 0,
	}
	if m.CurveSlope1h > 0 {
		sig.CurveSlopeAccel = m.CurveSlope5m / m.CurveSlope1h
	}

	if sig.TxRateAccel >= s.cfg.TxAccelMin {
		sig.Score++
	}
	if sig.WalletInfluxAccel >= s.cfg.WalletAccelMin {
		sig.Score++
	}
	if sig.HigherHigh {
		sig.Score++
	}
	if sig.CurveSlopeAccel >= s.cfg.CurveAccelMin {
		sig.Score++
	}
	if sig.SellAbsorption {
		sig.Score++
	}

	sig.AntiFakeOK = s.antiFake(m)
	return sig
}

// antiFake rejects volume that looks wash-traded.
func (s *Scorer) antiFake(m domain.MarketSignals) bool {
	if m.Txns5m < s.cfg.MinTxns5m || m.Txns5m == 0 {
		return false
	}
	if s.cfg.MaxAvgTradeUSD > 0 && m.Volume5mUSD/float64(m.Txns5m) > s.cfg.MaxAvgTradeUSD {
		return false
	}
	if m.Buys5m > 0 && float64(m.Buyers5m)/float64(m.Buys5m) < s.cfg.MinUniqueBuyerRate {
		return false
	}
	return true
}

// rateAccel compares the per-minute rate of the last 5 minutes with the
// per-minute rate of the last hour.
func rateAccel(count5m, count1h float64) float64 {
	if count1h <= 0 {
		return 0
	}
	return (count5m / 5) / (count1h / 60)
}
