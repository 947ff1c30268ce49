package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

func newExits() *Exits {
	return NewExits(DefaultExitConfig(), DefaultFeeModel())
}

var (
	allRunners    = []domain.RunnerState{domain.RunnerNormal, domain.RunnerPre, domain.RunnerRunner, domain.RunnerParabolic}
	allRisks      = []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh}
	allNarratives = []domain.NarrativePhase{domain.NarrativeInflow, domain.NarrativeNeutral, domain.NarrativeDistribution}
)

func TestTrailingUnderwaterFallback(t *testing.T) {
	e := newExits()
	for _, runner := range allRunners {
		for _, risk := range allRisks {
			for _, narrative := range allNarratives {
				for _, pnl := range []float64{0, -0.01, -0.5, -0.99} {
					assert.Equal(t, 0.60, e.ComputeTrailingStopPct(runner, risk, narrative, pnl))
				}
			}
		}
	}
	assert.Greater(t, DefaultExitConfig().UnderwaterPct, DefaultLifecycleConfig().ConvictionStopLossPct)
}

func TestTrailingMonotonicAcrossProfitSteps(t *testing.T) {
	e := newExits()
	pnls := []float64{0.01, 0.19, 0.2, 0.35, 0.5, 0.75, 1.0, 1.5, 2.0, 5.0}
	for _, runner := range allRunners {
		for _, risk := range allRisks {
			for _, narrative := range allNarratives {
				prev := e.ComputeTrailingStopPct(runner, risk, narrative, pnls[0])
				for _, pnl := range pnls[1:] {
					cur := e.ComputeTrailingStopPct(runner, risk, narrative, pnl)
					assert.LessOrEqual(t, cur, prev, "%s/%s/%s at %.2f", runner, risk, narrative, pnl)
					assert.GreaterOrEqual(t, cur, 0.05)
					assert.LessOrEqual(t, cur, 0.40)
					prev = cur
				}
			}
		}
	}
}

func TestTrailingMultipliers(t *testing.T) {
	e := newExits()
	tests := []struct {
		name      string
		runner    domain.RunnerState
		risk      domain.RiskLevel
		narrative domain.NarrativePhase
		pnl       float64
		want      float64
	}{
		{"early profit loosens", domain.RunnerNormal, domain.RiskLow, domain.NarrativeNeutral, 0.1, 0.1875},
		{"base", domain.RunnerNormal, domain.RiskLow, domain.NarrativeNeutral, 0.3, 0.15},
		{"runner widens", domain.RunnerRunner, domain.RiskLow, domain.NarrativeNeutral, 1.0, 0.1575},
		{"high risk tightens", domain.RunnerNormal, domain.RiskHigh, domain.NarrativeNeutral, 0.3, 0.075},
		{"clamped low", domain.RunnerNormal, domain.RiskHigh, domain.NarrativeDistribution, 2.5, 0.05},
		{"clamped high", domain.RunnerParabolic, domain.RiskLow, domain.NarrativeInflow, 0.1, 0.40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.ComputeTrailingStopPct(tt.runner, tt.risk, tt.narrative, tt.pnl), 1e-9)
		})
	}
}

func TestStopPriceBreakEvenFloor(t *testing.T) {
	e := newExits()
	p := scoutPosition()
	p.PeakPrice = 1.02

	stop, floored := e.StopPrice(p, 0.15)
	assert.False(t, floored)
	assert.InDelta(t, 0.867, stop, 1e-9)

	p.BreakEven = true
	stop, floored = e.StopPrice(p, 0.15)
	assert.True(t, floored)
	assert.InDelta(t, 1.01, stop, 1e-9)

	reason, hit := e.CheckTrailing(p, 1.005, 0.005)
	require.True(t, hit)
	assert.Equal(t, ReasonBreakEvenStop, reason)

	p.PeakPrice = 2.0
	stop, floored = e.StopPrice(p, 0.01)
	assert.False(t, floored)
	assert.InDelta(t, 1.9, stop, 1e-9, "trail is floored at the after-break-even minimum")
}

func TestCheckTrailingFromPeak(t *testing.T) {
	e := newExits()
	p := scoutPosition()
	p.PeakPrice = 1.5

	// pnl 0.3 with neutral classifications trails 15% below the peak
	_, hit := e.CheckTrailing(p, 1.3, 0.3)
	assert.False(t, hit)
	reason, hit := e.CheckTrailing(p, 1.27, 0.27)
	require.True(t, hit)
	assert.Equal(t, ReasonTrailingStop, reason)
}

func TestBreakEvenArmsOnce(t *testing.T) {
	e := newExits()
	p := scoutPosition()

	trigger := e.BreakEvenTrigger(p)
	assert.InDelta(t, 0.42837, trigger, 1e-4)

	assert.False(t, e.MaybeArmBreakEven(p, 0.42))
	assert.True(t, e.MaybeArmBreakEven(p, 0.43))
	assert.True(t, p.BreakEven)
	assert.False(t, e.MaybeArmBreakEven(p, 0.9), "already armed")
	assert.True(t, p.BreakEven)
}

func TestGraceWindowSuppressesAndRecords(t *testing.T) {
	e := newExits()
	p := scoutPosition()

	assert.True(t, e.Suppress(p, t0.Add(5*time.Second)))
	assert.True(t, e.Suppress(p, t0.Add(19*time.Second)))
	assert.Equal(t, 2, p.GraceBreaches)
	assert.Equal(t, t0.Add(19*time.Second), p.LastBreachAt)

	assert.False(t, e.Suppress(p, t0.Add(20*time.Second)))
	assert.Equal(t, 2, p.GraceBreaches)
}

func TestIsStopReason(t *testing.T) {
	for _, r := range []string{domain.ReasonStopLoss, ReasonTrailingStop, ReasonBreakEvenStop, ReasonCrash} {
		assert.True(t, IsStopReason(r), r)
	}
	for _, r := range []string{domain.ReasonTimeout, ReasonForceSell, ReasonStaleRestore, domain.ReasonMoonbag} {
		assert.False(t, IsStopReason(r), r)
	}
}

func TestPartialExitMilestonesFireOnce(t *testing.T) {
	e := newExits()
	p := scoutPosition()

	got := e.MaybeTakePartialExits(p, domain.RiskLow, domain.RunnerRunner, 1.0)
	require.Len(t, got, 1)
	assert.Equal(t, PartialExit{Milestone: MilestoneMoonbag, Fraction: 0.5}, got[0])

	for i := 0; i < 5; i++ {
		assert.Empty(t, e.MaybeTakePartialExits(p, domain.RiskLow, domain.RunnerRunner, 1.2))
	}

	got = e.MaybeTakePartialExits(p, domain.RiskMedium, domain.RunnerRunner, 1.2)
	require.Len(t, got, 1)
	assert.Equal(t, MilestoneRiskMedium, got[0].Milestone)
	assert.Empty(t, e.MaybeTakePartialExits(p, domain.RiskMedium, domain.RunnerRunner, 1.2))

	assert.Equal(t, []string{MilestoneMoonbag, MilestoneRiskMedium}, p.MilestoneNames())
}

func TestRiskMediumFiresOnJumpToHigh(t *testing.T) {
	e := newExits()
	p := scoutPosition()

	got := e.MaybeTakePartialExits(p, domain.RiskHigh, domain.RunnerNormal, 0.1)
	assert.Equal(t, []PartialExit{
		{Milestone: MilestoneRiskMedium, Fraction: 0.2},
		{Milestone: MilestoneRiskHigh, Fraction: 0.35},
	}, got)

	assert.Empty(t, e.MaybeTakePartialExits(p, domain.RiskMedium, domain.RunnerNormal, 0.1))
}

func TestParabolicHighNeedsEarlierRiskHigh(t *testing.T) {
	e := newExits()
	p := scoutPosition()

	got := e.MaybeTakePartialExits(p, domain.RiskHigh, domain.RunnerParabolic, 2.5)
	names := make([]string, 0, len(got))
	for _, pe := range got {
		names = append(names, pe.Milestone)
	}
	assert.Equal(t, []string{MilestoneMoonbag, MilestoneRiskMedium, MilestoneRiskHigh}, names)

	got = e.MaybeTakePartialExits(p, domain.RiskHigh, domain.RunnerParabolic, 2.5)
	require.Len(t, got, 1)
	assert.Equal(t, PartialExit{Milestone: MilestoneParabolicHigh, Fraction: 0.25}, got[0])

	assert.Empty(t, e.MaybeTakePartialExits(p, domain.RiskHigh, domain.RunnerParabolic, 3.0))
}

func TestFeeModel(t *testing.T) {
	f := DefaultFeeModel()
	assert.InDelta(t, 0.03, f.ExitRate(), 1e-12)
	assert.InDelta(t, 0.000355, f.FixedExitFees(), 1e-12)
	assert.Zero(t, f.BreakEvenTrigger(0, 75, 0.005))
	assert.Zero(t, f.BreakEvenTrigger(1, 0, 0.005))

	// larger positions amortize the fixed fees
	assert.Less(t, f.BreakEvenTrigger(1, 75, 0.005), f.BreakEvenTrigger(0.01, 75, 0.005))
}
