package strategy

import "github.com/alanyoungcy/convexbot/internal/domain"

// RunnerFor classifies unrealized profit into four bands.
func RunnerFor(pnlPct float64) domain.RunnerState {
	switch {
	case pnlPct >= 2.0:
		return domain.RunnerParabolic
	case pnlPct >= 0.8:
		return domain.RunnerRunner
	case pnlPct >= 0.3:
		return domain.RunnerPre
	default:
		return domain.RunnerNormal
	}
}

// NarrativeFor classifies flow from profit and the current signal score.
func NarrativeFor(pnlPct float64, score int) domain.NarrativePhase {
	switch {
	case pnlPct > 0 && score >= 3:
		return domain.NarrativeInflow
	case score <= 1 && pnlPct < 0.20:
		return domain.NarrativeDistribution
	default:
		return domain.NarrativeNeutral
	}
}

// RiskConfig holds the hysteresis thresholds on the expected-asymmetry score.
type RiskConfig struct {
	LowToMedium  float64
	ToHigh       float64
	MediumToLow  float64
	HighToMedium float64
}

// DefaultRiskConfig returns the production thresholds.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		LowToMedium:  1.15,
		ToHigh:       0.92,
		MediumToLow:  1.25,
		HighToMedium: 1.02,
	}
}

// ExpectedAsymmetry blends the signal score with positive momentum.
// momentum is the fractional price change across the tracker window.
func ExpectedAsymmetry(score int, momentum float64) float64 {
	return 0.6*(float64(score)/2.5) + 0.4*(1+clamp(momentum, 0, 1))
}

// NextRisk applies hysteresis: each level only moves on crossing its own
// threshold, so a score hovering near one boundary cannot flap.
func NextRisk(cfg RiskConfig, current domain.RiskLevel, eas float64) domain.RiskLevel {
	switch current {
	case domain.RiskHigh:
		if eas > cfg.HighToMedium {
			return domain.RiskMedium
		}
		return domain.RiskHigh
	case domain.RiskMedium:
		if eas < cfg.ToHigh {
			return domain.RiskHigh
		}
		if eas > cfg.MediumToLow {
			return domain.RiskLow
		}
		return domain.RiskMedium
	default:
		if eas < cfg.ToHigh {
			return domain.RiskHigh
		}
		if eas < cfg.LowToMedium {
			return domain.RiskMedium
		}
		return domain.RiskLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
