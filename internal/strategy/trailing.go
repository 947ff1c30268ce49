package strategy

import (
	"math"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// ExitConfig holds the trailing-stop, break-even and grace parameters.
type ExitConfig struct {
	BasePct       float64
	MinPct        float64
	MaxPct        float64
	UnderwaterPct float64

	BreakEvenMinTrailPct float64
	BreakEvenSellPct     float64
	BreakEvenBufferPct   float64
	BreakEvenFloor       float64

	GraceWindow time.Duration

	MoonbagTriggerPct   float64
	MoonbagSellFraction float64
	RiskMediumSell      float64
	RiskHighSell        float64
	ParabolicHighSell   float64
}

// DefaultExitConfig returns the production parameters.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		BasePct:              0.15,
		MinPct:               0.05,
		MaxPct:               0.40,
		UnderwaterPct:        0.60,
		BreakEvenMinTrailPct: 0.05,
		BreakEvenSellPct:     75,
		BreakEvenBufferPct:   0.005,
		BreakEvenFloor:       1.01,
		GraceWindow:          20 * time.Second,
		MoonbagTriggerPct:    1.00,
		MoonbagSellFraction:  0.50,
		RiskMediumSell:       0.20,
		RiskHighSell:         0.35,
		ParabolicHighSell:    0.25,
	}
}

// Stop reasons produced outside the state machine.
const (
	ReasonTrailingStop  = "trailing-stop"
	ReasonBreakEvenStop = "break-even-stop"
	ReasonCrash         = "crash"
	ReasonStaleRestore  = "stale-restore"
	ReasonForceSell     = "force-sell"
)

// ProfitStepMultiplier loosens the trail early and tightens it as profit grows.
func ProfitStepMultiplier(pnlPct float64) float64 {
	switch {
	case pnlPct >= 2.0:
		return 0.55
	case pnlPct >= 1.0:
		return 0.7
	case pnlPct >= 0.5:
		return 0.85
	case pnlPct >= 0.2:
		return 1.0
	default:
		return 1.25
	}
}

// RunnerMultiplier widens the trail for strong runners.
func RunnerMultiplier(r domain.RunnerState) float64 {
	switch r {
	case domain.RunnerPre:
		return 1.3
	case domain.RunnerRunner:
		return 1.5
	case domain.RunnerParabolic:
		return 2.0
	default:
		return 1.0
	}
}

// RiskMultiplier tightens the trail as risk rises.
func RiskMultiplier(r domain.RiskLevel) float64 {
	switch r {
	case domain.RiskMedium:
		return 0.75
	case domain.RiskHigh:
		return 0.5
	default:
		return 1.0
	}
}

// NarrativeMultiplier widens the trail during inflow and tightens it during
// distribution.
func NarrativeMultiplier(n domain.NarrativePhase) float64 {
	switch n {
	case domain.NarrativeInflow:
		return 1.5
	case domain.NarrativeDistribution:
		return 0.7
	default:
		return 1.0
	}
}

// Exits is the trailing/exit decision set. Every method is pure apart from
// the breach bookkeeping in Suppress.
type Exits struct {
	cfg  ExitConfig
	fees FeeModel
}

// NewExits creates an Exits decision set.
func NewExits(cfg ExitConfig, fees FeeModel) *Exits {
	return &Exits{cfg: cfg, fees: fees}
}

// Config returns the parameters in use.
func (e *Exits) Config() ExitConfig { return e.cfg }

// ComputeTrailingStopPct returns the trailing distance below the peak. While
// underwater it returns the wide fallback so the hard stop always fires first.
func (e *Exits) ComputeTrailingStopPct(runner domain.RunnerState, risk domain.RiskLevel, narrative domain.NarrativePhase, pnlPct float64) float64 {
	if pnlPct <= 0 {
		return e.cfg.UnderwaterPct
	}
	pct := e.cfg.BasePct *
		ProfitStepMultiplier(pnlPct) *
		RunnerMultiplier(runner) *
		RiskMultiplier(risk) *
		NarrativeMultiplier(narrative)
	return clamp(pct, e.cfg.MinPct, e.cfg.MaxPct)
}

// StopPrice returns the trailing stop for p and reports whether the
// break-even floor is the binding level.
func (e *Exits) StopPrice(p *domain.Position, trailingPct float64) (float64, bool) {
	if p.BreakEven {
		trailingPct = math.Max(trailingPct, e.cfg.BreakEvenMinTrailPct)
	}
	stop := p.PeakPrice * (1 - trailingPct)
	if p.BreakEven {
		floor := p.EntryPrice * e.cfg.BreakEvenFloor
		if floor > stop {
			return floor, true
		}
	}
	return stop, false
}

// BreakEvenTrigger returns the profit at which p should arm its break-even
// floor.
func (e *Exits) BreakEvenTrigger(p *domain.Position) float64 {
	return e.fees.BreakEvenTrigger(p.SizeSOL, e.cfg.BreakEvenSellPct, e.cfg.BreakEvenBufferPct)
}

// MaybeArmBreakEven sets the irreversible break-even flag once pnl crosses
// the fee-aware trigger. It reports whether the flag changed.
func (e *Exits) MaybeArmBreakEven(p *domain.Position, pnlPct float64) bool {
	if p.BreakEven {
		return false
	}
	trigger := e.BreakEvenTrigger(p)
	if trigger <= 0 || pnlPct < trigger {
		return false
	}
	p.BreakEven = true
	return true
}

// CheckTrailing reports whether price has fallen through the trailing stop.
func (e *Exits) CheckTrailing(p *domain.Position, price, pnlPct float64) (string, bool) {
	pct := e.ComputeTrailingStopPct(p.Runner, p.Risk, p.Narrative, pnlPct)
	stop, floored := e.StopPrice(p, pct)
	if price > stop {
		return "", false
	}
	if floored {
		return ReasonBreakEvenStop, true
	}
	return ReasonTrailingStop, true
}

// InGrace reports whether p is still inside the anti-panic window.
func (e *Exits) InGrace(p *domain.Position, now time.Time) bool {
	return now.Sub(p.OpenedAt) < e.cfg.GraceWindow
}

// Suppress swallows a stop trigger inside the grace window and records that
// the breach happened. It reports whether the trigger was suppressed.
func (e *Exits) Suppress(p *domain.Position, now time.Time) bool {
	if !e.InGrace(p, now) {
		return false
	}
	p.GraceBreaches++
	p.LastBreachAt = now
	return true
}

// IsStopReason reports whether reason is subject to the grace window.
func IsStopReason(reason string) bool {
	switch reason {
	case domain.ReasonStopLoss, ReasonTrailingStop, ReasonBreakEvenStop, ReasonCrash:
		return true
	}
	return false
}
