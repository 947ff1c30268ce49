package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	passing = domain.SelectionSignals{Score: 3, AntiFakeOK: true}
	failing = domain.SelectionSignals{Score: 1, AntiFakeOK: true}
	faked   = domain.SelectionSignals{Score: 5, AntiFakeOK: false}
)

func scoutPosition() *domain.Position {
	fill := domain.Fill{Success: true, FilledSizeSOL: 0.01, FilledPrice: 1.0, TokenAmountRaw: 1_000_000}
	return domain.NewPosition("mint", "TEST", domain.PhaseBondingCurve, fill, t0, DefaultLifecycleConfig().ScoutTimeout)
}

func TestScoutNeedsProfitAndConsecutiveWindows(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())
	p := scoutPosition()
	now := t0.Add(time.Second)

	for i := 0; i < 2; i++ {
		_, ok := l.Evaluate(p, passing, 0.05, now)
		assert.False(t, ok, "profit gate unmet")
	}
	assert.Equal(t, 2, p.SelectionConsecutive)
}

func TestScoutCounterResetsOnMiss(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())
	p := scoutPosition()
	now := t0.Add(time.Second)

	seq := []domain.SelectionSignals{passing, failing, passing, passing}
	var fired []int
	for i, sig := range seq {
		tr, ok := l.Evaluate(p, sig, 0.12, now)
		if ok {
			fired = append(fired, i)
			assert.Equal(t, domain.StateConfirm, tr.To)
			assert.Equal(t, domain.ReasonSelectionConfirmed, tr.Reason)
			assert.True(t, tr.Escalation())
		}
		if i == 1 {
			assert.Zero(t, p.SelectionConsecutive)
		}
	}
	assert.Equal(t, []int{3}, fired)
}

func TestScoutAntiFakeCountsAsMiss(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())
	p := scoutPosition()

	l.Evaluate(p, passing, 0.2, t0)
	_, ok := l.Evaluate(p, faked, 0.2, t0)
	assert.False(t, ok)
	assert.Zero(t, p.SelectionConsecutive)
}

func TestScoutExits(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())

	p := scoutPosition()
	tr, ok := l.Evaluate(p, passing, 0.5, p.ScoutDeadline)
	require.True(t, ok)
	assert.Equal(t, domain.StateExit, tr.To)
	assert.Equal(t, domain.ReasonTimeout, tr.Reason)

	p = scoutPosition()
	tr, ok = l.Evaluate(p, passing, -0.15, t0.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, domain.ReasonStopLoss, tr.Reason)
	assert.False(t, tr.Escalation())
}

func TestConfirmEscalation(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())
	now := t0.Add(time.Minute)

	t.Run("windows", func(t *testing.T) {
		p := scoutPosition()
		p.State = domain.StateConfirm
		for i := 0; i < 2; i++ {
			_, ok := l.Evaluate(p, passing, 0.2, now)
			require.False(t, ok)
		}
		tr, ok := l.Evaluate(p, passing, 0.2, now)
		require.True(t, ok)
		assert.Equal(t, domain.StateConviction, tr.To)
		assert.Equal(t, domain.ReasonConvictionWindows, tr.Reason)
	})

	t.Run("profit", func(t *testing.T) {
		p := scoutPosition()
		p.State = domain.StateConfirm
		tr, ok := l.Evaluate(p, failing, 0.5, now)
		require.True(t, ok)
		assert.Equal(t, domain.ReasonConvictionProfit, tr.Reason)
	})

	t.Run("stop", func(t *testing.T) {
		p := scoutPosition()
		p.State = domain.StateConfirm
		tr, ok := l.Evaluate(p, passing, -0.2, now)
		require.True(t, ok)
		assert.Equal(t, domain.StateExit, tr.To)
	})
}

func TestConvictionAndMoonbagOnlyStop(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())
	for _, state := range []domain.LifecycleState{domain.StateConviction, domain.StateMoonbag} {
		p := scoutPosition()
		p.State = state
		_, ok := l.Evaluate(p, passing, 5.0, t0.Add(time.Hour))
		assert.False(t, ok, state)
		_, ok = l.Evaluate(p, passing, -0.34, t0.Add(time.Hour))
		assert.False(t, ok, state)
		tr, ok := l.Evaluate(p, passing, -0.35, t0.Add(time.Hour))
		require.True(t, ok, state)
		assert.Equal(t, domain.StateExit, tr.To)
	}
}

func TestExitIsTerminal(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())
	p := scoutPosition()
	now := t0.Add(time.Second)

	tr, ok := l.Evaluate(p, passing, -0.5, now)
	require.True(t, ok)
	require.True(t, l.Apply(p, tr, now))
	assert.Equal(t, domain.StateExit, p.State)

	for _, pnl := range []float64{-1, 0, 0.5, 10} {
		_, ok := l.Evaluate(p, passing, pnl, now.Add(time.Hour))
		assert.False(t, ok)
	}
	for _, to := range []domain.LifecycleState{domain.StateScout, domain.StateConfirm, domain.StateMoonbag, domain.StateExit} {
		assert.False(t, l.Apply(p, domain.StateTransition{From: domain.StateExit, To: to}, now))
	}
	assert.Equal(t, domain.StateExit, p.State)
}

func TestApplyRejectsStaleTransition(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())
	p := scoutPosition()
	p.SelectionConsecutive = 2

	assert.False(t, l.Apply(p, domain.StateTransition{From: domain.StateConfirm, To: domain.StateConviction}, t0))
	require.True(t, l.Apply(p, domain.StateTransition{From: domain.StateScout, To: domain.StateConfirm}, t0.Add(time.Second)))
	assert.Equal(t, domain.StateConfirm, p.State)
	assert.Equal(t, t0.Add(time.Second), p.StateSince)
	assert.Zero(t, p.SelectionConsecutive)
}

func TestShouldEnterMoonbag(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())
	p := scoutPosition()
	p.State = domain.StateConviction
	p.InitialSizeSOL = 0.1

	p.SizeSOL = 0.031
	_, ok := l.ShouldEnterMoonbag(p)
	assert.False(t, ok)

	p.SizeSOL = 0.029
	tr, ok := l.ShouldEnterMoonbag(p)
	require.True(t, ok)
	assert.Equal(t, domain.StateMoonbag, tr.To)

	p.State = domain.StateMoonbag
	_, ok = l.ShouldEnterMoonbag(p)
	assert.False(t, ok)
}

func TestStopLossPctByState(t *testing.T) {
	l := NewLifecycle(DefaultLifecycleConfig())
	assert.Equal(t, 0.15, l.StopLossPct(domain.StateScout))
	assert.Equal(t, 0.20, l.StopLossPct(domain.StateConfirm))
	assert.Equal(t, 0.35, l.StopLossPct(domain.StateConviction))
	assert.Equal(t, 0.35, l.StopLossPct(domain.StateMoonbag))
	assert.Zero(t, l.StopLossPct(domain.StateExit))
}
