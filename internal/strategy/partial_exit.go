package strategy

import "github.com/alanyoungcy/convexbot/internal/domain"

// Milestone names. Each fires at most once per position.
const (
	MilestoneMoonbag       = "moonbag"
	MilestoneRiskMedium    = "risk_medium"
	MilestoneRiskHigh      = "risk_high"
	MilestoneParabolicHigh = "parabolic_high"
)

// PartialExit is an instruction to sell Fraction of the current holding.
type PartialExit struct {
	Milestone string
	Fraction  float64
}

// MaybeTakePartialExits returns the milestones that fire now and marks them
// on p, so re-evaluating with the same conditions returns nothing.
// risk_medium fires on MEDIUM or worse, so a jump straight to HIGH takes
// both risk milestones. parabolic_high only fires once risk_high fired on an
// earlier tick.
func (e *Exits) MaybeTakePartialExits(p *domain.Position, risk domain.RiskLevel, runner domain.RunnerState, pnlPct float64) []PartialExit {
	highBefore := p.HasMilestone(MilestoneRiskHigh)
	var out []PartialExit

	fire := func(name string, fraction float64) {
		if fraction <= 0 || p.HasMilestone(name) {
			return
		}
		p.MarkMilestone(name)
		out = append(out, PartialExit{Milestone: name, Fraction: fraction})
	}

	if pnlPct >= e.cfg.MoonbagTriggerPct {
		fire(MilestoneMoonbag, e.cfg.MoonbagSellFraction)
	}
	if risk == domain.RiskMedium || risk == domain.RiskHigh {
		fire(MilestoneRiskMedium, e.cfg.RiskMediumSell)
	}
	if risk == domain.RiskHigh {
		fire(MilestoneRiskHigh, e.cfg.RiskHighSell)
		if runner == domain.RunnerParabolic && highBefore {
			fire(MilestoneParabolicHigh, e.cfg.ParabolicHighSell)
		}
	}
	return out
}
