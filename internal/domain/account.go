package domain

import "time"

// AccountStats is process-wide trading state, mutated by every completed
// trade and reset by the daily rollover.
type AccountStats struct {
	BalanceSOL        float64   `json:"balance_sol"`
	DayStartSOL       float64   `json:"day_start_sol"`
	DayStartedAt      time.Time `json:"day_started_at"`
	RealizedPnLSOL    float64   `json:"realized_pnl_sol"`
	DailyPnLSOL       float64   `json:"daily_pnl_sol"`
	DailyTrades       int       `json:"daily_trades"`
	Wins              int       `json:"wins"`
	Losses            int       `json:"losses"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
}

// DailyLossPct returns today's net loss as a percentage of the day-start
// balance. Gains report zero.
func (a AccountStats) DailyLossPct() float64 {
	if a.DailyPnLSOL >= 0 || a.DayStartSOL <= 0 {
		return 0
	}
	return -a.DailyPnLSOL / a.DayStartSOL * 100
}

// SafetyState is the halt and cooldown state of the safety supervisor.
type SafetyState struct {
	Halted        bool      `json:"halted"`
	HaltReason    string    `json:"halt_reason,omitempty"`
	HaltedAt      time.Time `json:"halted_at,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	Stopped       bool      `json:"stopped"`

	// ResumedAtPnLSOL is the daily PnL at the last operator resume. Loss
	// limits are measured from it so a resume is not immediately undone.
	ResumedAtPnLSOL float64 `json:"resumed_at_pnl_sol"`
}

// SafetyStatus is the observable view returned by the supervisor status query.
type SafetyStatus struct {
	SafetyState
	InCooldown        bool          `json:"in_cooldown"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
	Account           AccountStats  `json:"account"`
	DailyLossPct      float64       `json:"daily_loss_pct"`
	ReserveSOL        float64       `json:"reserve_sol"`
}
