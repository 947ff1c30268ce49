package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

func hotToken() domain.TokenInfo {
	return domain.TokenInfo{
		Mint:  "mint",
		Price: 1.1,
		Market: domain.MarketSignals{
			Txns5m:        60,
			Txns1h:        240,
			Buyers5m:      30,
			Buyers1h:      120,
			Buys5m:        40,
			Sells5m:       20,
			Volume5mUSD:   6000,
			PriceChange5m: 5,
			PriorHigh1h:   1.0,
			CurveSlope5m:  3,
			CurveSlope1h:  1,
		},
	}
}

func TestScoreAllSignals(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	sig := s.Score(hotToken())

	assert.Equal(t, 5, sig.Score)
	assert.True(t, sig.AntiFakeOK)
	assert.InDelta(t, 3.0, sig.TxRateAccel, 1e-9)
	assert.InDelta(t, 3.0, sig.WalletInfluxAccel, 1e-9)
	assert.True(t, sig.HigherHigh)
	assert.InDelta(t, 3.0, sig.CurveSlopeAccel, 1e-9)
	assert.True(t, sig.SellAbsorption)
	assert.True(t, sig.Passes(3))
}

func TestScoreSubSignals(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	tests := []struct {
		name   string
		mutate func(*domain.TokenInfo)
		want   int
	}{
		{"no prior high", func(i *domain.TokenInfo) { i.Market.PriorHigh1h = 0 }, 4},
		{"below prior high", func(i *domain.TokenInfo) { i.Price = 0.9 }, 4},
		{"flat tx rate", func(i *domain.TokenInfo) { i.Market.Txns1h = 720 }, 4},
		{"no sells to absorb", func(i *domain.TokenInfo) { i.Market.Sells5m = 0 }, 4},
		{"falling price", func(i *domain.TokenInfo) { i.Market.PriceChange5m = -1 }, 4},
		{"no curve history", func(i *domain.TokenInfo) { i.Market.CurveSlope1h = 0 }, 4},
		{"empty", func(i *domain.TokenInfo) { *i = domain.TokenInfo{} }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := hotToken()
			tt.mutate(&info)
			assert.Equal(t, tt.want, s.Score(info).Score)
		})
	}
}

func TestAntiFakeVolume(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	tests := []struct {
		name   string
		mutate func(*domain.MarketSignals)
		want   bool
	}{
		{"healthy", func(*domain.MarketSignals) {}, true},
		{"too few trades", func(m *domain.MarketSignals) { m.Txns5m = 19 }, false},
		{"whale sized trades", func(m *domain.MarketSignals) { m.Volume5mUSD = 200_000 }, false},
		{"recycled buyers", func(m *domain.MarketSignals) { m.Buyers5m = 5 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := hotToken()
			tt.mutate(&info.Market)
			sig := s.Score(info)
			assert.Equal(t, tt.want, sig.AntiFakeOK)
			assert.Equal(t, tt.want, sig.Passes(1))
		})
	}
}

func TestRunnerBands(t *testing.T) {
	tests := []struct {
		pnl  float64
		want domain.RunnerState
	}{
		{-0.5, domain.RunnerNormal},
		{0.29, domain.RunnerNormal},
		{0.3, domain.RunnerPre},
		{0.79, domain.RunnerPre},
		{0.8, domain.RunnerRunner},
		{1.99, domain.RunnerRunner},
		{2.0, domain.RunnerParabolic},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RunnerFor(tt.pnl), "pnl %.2f", tt.pnl)
	}
}

func TestNarrative(t *testing.T) {
	assert.Equal(t, domain.NarrativeInflow, NarrativeFor(0.01, 3))
	assert.Equal(t, domain.NarrativeNeutral, NarrativeFor(0, 3))
	assert.Equal(t, domain.NarrativeDistribution, NarrativeFor(0.1, 1))
	assert.Equal(t, domain.NarrativeNeutral, NarrativeFor(0.25, 1))
	assert.Equal(t, domain.NarrativeNeutral, NarrativeFor(0.1, 2))
}

func TestExpectedAsymmetry(t *testing.T) {
	assert.InDelta(t, 0.88, ExpectedAsymmetry(2, 0), 1e-9)
	assert.InDelta(t, 1.32, ExpectedAsymmetry(3, 0.5), 1e-9)
	assert.InDelta(t, 1.04, ExpectedAsymmetry(1, 5), 1e-9, "momentum is capped at 1")
	assert.InDelta(t, 0.4, ExpectedAsymmetry(0, -0.4), 1e-9, "negative momentum counts as zero")
}

func TestRiskHysteresis(t *testing.T) {
	cfg := DefaultRiskConfig()
	tests := []struct {
		from domain.RiskLevel
		eas  float64
		want domain.RiskLevel
	}{
		{domain.RiskLow, 1.2, domain.RiskLow},
		{domain.RiskLow, 1.1, domain.RiskMedium},
		{domain.RiskLow, 0.9, domain.RiskHigh},
		{domain.RiskMedium, 1.2, domain.RiskMedium},
		{domain.RiskMedium, 1.26, domain.RiskLow},
		{domain.RiskMedium, 0.91, domain.RiskHigh},
		{domain.RiskHigh, 1.0, domain.RiskHigh},
		{domain.RiskHigh, 1.03, domain.RiskMedium},
		{domain.RiskHigh, 2.0, domain.RiskMedium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextRisk(cfg, tt.from, tt.eas), "%s at %.2f", tt.from, tt.eas)
	}
}

func TestRiskDoesNotFlapAtBoundary(t *testing.T) {
	cfg := DefaultRiskConfig()
	risk := domain.RiskLow
	seen := map[domain.RiskLevel]int{}
	for _, eas := range []float64{1.14, 1.16, 1.14, 1.16, 1.2, 1.14} {
		risk = NextRisk(cfg, risk, eas)
		seen[risk]++
	}
	assert.Equal(t, domain.RiskMedium, risk)
	assert.Equal(t, 6, seen[domain.RiskMedium])
}

func TestPriceTrackerWindow(t *testing.T) {
	pt := NewPriceTracker(5 * time.Minute)

	pt.Track("m", 1.0, t0)
	pt.Track("m", 1.0, t0)
	pt.Track("m", 1.2, t0.Add(time.Minute))
	assert.Len(t, pt.GetHistory("m"), 2)
	assert.InDelta(t, 0.2, pt.Momentum("m"), 1e-9)
	assert.Zero(t, pt.TickDrop("m"))

	pt.Track("m", 0.6, t0.Add(2*time.Minute))
	assert.InDelta(t, 0.5, pt.TickDrop("m"), 1e-9)

	pt.Track("m", 0.9, t0.Add(7*time.Minute))
	hist := pt.GetHistory("m")
	assert.Len(t, hist, 2)
	assert.Equal(t, 0.6, hist[0].Price)
	assert.InDelta(t, 0.5, pt.Momentum("m"), 1e-9)

	pt.Track("m", -1, t0.Add(8*time.Minute))
	assert.Len(t, pt.GetHistory("m"), 2)

	pt.Forget("m")
	assert.Nil(t, pt.GetHistory("m"))
	assert.Zero(t, pt.Momentum("m"))
}
