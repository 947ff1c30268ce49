package strategy

import (
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// LifecycleConfig holds the thresholds of the position state machine.
// Percentages are fractions.
type LifecycleConfig struct {
	ScoutTimeout             time.Duration
	ScoutStopLossPct         float64
	SelectionThreshold       int
	SelectionWindows         int
	ConfirmMinPnLPct         float64
	ConfirmStopLossPct       float64
	ConvictionThreshold      int
	ConvictionWindows        int
	ConvictionProfitPct      float64
	ConvictionStopLossPct    float64
	MoonbagStopLossPct       float64
	MoonbagRemainingFraction float64
}

// DefaultLifecycleConfig returns the production thresholds.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		ScoutTimeout:             180 * time.Second,
		ScoutStopLossPct:         0.15,
		SelectionThreshold:       2,
		SelectionWindows:         2,
		ConfirmMinPnLPct:         0.10,
		ConfirmStopLossPct:       0.20,
		ConvictionThreshold:      3,
		ConvictionWindows:        3,
		ConvictionProfitPct:      0.50,
		ConvictionStopLossPct:    0.35,
		MoonbagStopLossPct:       0.35,
		MoonbagRemainingFraction: 0.30,
	}
}

// Lifecycle is the SCOUT -> CONFIRM -> CONVICTION -> MOONBAG state machine.
// It never executes trades; an upward transition only authorizes the control
// loop to try adding size.
type Lifecycle struct {
	cfg LifecycleConfig
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	return &Lifecycle{cfg: cfg}
}

// Config returns the thresholds in use.
func (l *Lifecycle) Config() LifecycleConfig { return l.cfg }

// StopLossPct returns the hard stop for state.
func (l *Lifecycle) StopLossPct(state domain.LifecycleState) float64 {
	switch state {
	case domain.StateScout:
		return l.cfg.ScoutStopLossPct
	case domain.StateConfirm:
		return l.cfg.ConfirmStopLossPct
	case domain.StateConviction:
		return l.cfg.ConvictionStopLossPct
	case domain.StateMoonbag:
		return l.cfg.MoonbagStopLossPct
	default:
		return 0
	}
}

// Evaluate advances the anti-flapping counters on p and returns the requested
// transition, if any. A position in EXIT never produces a transition.
func (l *Lifecycle) Evaluate(p *domain.Position, sig domain.SelectionSignals, pnlPct float64, now time.Time) (domain.StateTransition, bool) {
	p.SelectionScore = sig.Score

	if t, ok := l.CheckExit(p, pnlPct, now); ok {
		return t, true
	}

	switch p.State {
	case domain.StateScout:
		if sig.Passes(l.cfg.SelectionThreshold) {
			p.SelectionConsecutive++
		} else {
			p.SelectionConsecutive = 0
		}
		if p.SelectionConsecutive >= l.cfg.SelectionWindows && pnlPct >= l.cfg.ConfirmMinPnLPct {
			return domain.StateTransition{From: p.State, To: domain.StateConfirm, Reason: domain.ReasonSelectionConfirmed}, true
		}

	case domain.StateConfirm:
		if sig.Passes(l.cfg.ConvictionThreshold) {
			p.ConvictionConsecutive++
		} else {
			p.ConvictionConsecutive = 0
		}
		if p.ConvictionConsecutive >= l.cfg.ConvictionWindows {
			return domain.StateTransition{From: p.State, To: domain.StateConviction, Reason: domain.ReasonConvictionWindows}, true
		}
		if pnlPct >= l.cfg.ConvictionProfitPct {
			return domain.StateTransition{From: p.State, To: domain.StateConviction, Reason: domain.ReasonConvictionProfit}, true
		}
	}

	return domain.StateTransition{}, false
}

// CheckExit applies only the scout timeout and the per-state hard stop. The
// control loop uses it directly when no market snapshot is available, so a
// missing snapshot never advances or resets the signal counters.
func (l *Lifecycle) CheckExit(p *domain.Position, pnlPct float64, now time.Time) (domain.StateTransition, bool) {
	if p.State.Terminal() {
		return domain.StateTransition{}, false
	}
	if p.State == domain.StateScout && !now.Before(p.ScoutDeadline) {
		return exitTo(p, domain.ReasonTimeout), true
	}
	if pnlPct <= -l.StopLossPct(p.State) {
		return exitTo(p, domain.ReasonStopLoss), true
	}
	return domain.StateTransition{}, false
}

// ShouldEnterMoonbag reports the MOONBAG transition once partial exits have
// cut the position below the configured share of its initial commitment.
func (l *Lifecycle) ShouldEnterMoonbag(p *domain.Position) (domain.StateTransition, bool) {
	if p.State.Terminal() || p.State == domain.StateMoonbag || p.InitialSizeSOL <= 0 {
		return domain.StateTransition{}, false
	}
	if p.SizeSOL >= l.cfg.MoonbagRemainingFraction*p.InitialSizeSOL {
		return domain.StateTransition{}, false
	}
	return domain.StateTransition{From: p.State, To: domain.StateMoonbag, Reason: domain.ReasonMoonbag}, true
}

// Apply moves p into t.To. It refuses to leave EXIT or to apply a transition
// computed against a different state.
func (l *Lifecycle) Apply(p *domain.Position, t domain.StateTransition, now time.Time) bool {
	if p.State.Terminal() || t.From != p.State || !t.To.Valid() {
		return false
	}
	p.State = t.To
	p.StateSince = now
	p.SelectionConsecutive = 0
	p.ConvictionConsecutive = 0
	return true
}

// ForceExit builds an EXIT transition for stops decided outside the state
// machine (trailing, crash, operator).
func ForceExit(p *domain.Position, reason string) domain.StateTransition {
	return exitTo(p, reason)
}

func exitTo(p *domain.Position, reason string) domain.StateTransition {
	return domain.StateTransition{From: p.State, To: domain.StateExit, Reason: reason}
}
