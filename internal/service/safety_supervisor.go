package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
)

// SafetyConfig holds the account-level limits.
type SafetyConfig struct {
	MaxDailyLossSOL      float64
	MaxDailyLossPct      float64
	MaxDailyTrades       int
	MinReserveSOL        float64
	MaxTradePct          float64
	MaxConsecutiveLosses int
	Cooldown             time.Duration
}

// DefaultSafetyConfig returns the production limits.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		MaxDailyLossSOL:      0.05,
		MaxDailyLossPct:      10,
		MaxDailyTrades:       10,
		MinReserveSOL:        0.2,
		MaxTradePct:          5,
		MaxConsecutiveLosses: 3,
		Cooldown:             30 * time.Second,
	}
}

// SafetyEventKind names a supervisor state change.
type SafetyEventKind string

const (
	SafetyHalt        SafetyEventKind = "halt"
	SafetyCooldown    SafetyEventKind = "cooldown"
	SafetyCooldownEnd SafetyEventKind = "cooldown_end"
	SafetyResume      SafetyEventKind = "resume"
	SafetyRollover    SafetyEventKind = "rollover"
)

// SafetyEvent is returned by supervisor calls that changed halt or cooldown
// state, so the caller can notify and publish outside the decision path.
type SafetyEvent struct {
	Kind   SafetyEventKind
	Reason string
}

// SafetySupervisor tracks account-wide realized PnL, trade counts and
// reserve, and decides whether new size may be committed. It is owned by the
// control loop and is not safe for concurrent use.
type SafetySupervisor struct {
	cfg     SafetyConfig
	clock   clock.Clock
	logger  *slog.Logger
	account domain.AccountStats
	state   domain.SafetyState
}

// NewSafetySupervisor creates a supervisor with a zero balance; call Seed
// before trading.
func NewSafetySupervisor(cfg SafetyConfig, c clock.Clock, logger *slog.Logger) *SafetySupervisor {
	return &SafetySupervisor{
		cfg:    cfg,
		clock:  c,
		logger: logger.With(slog.String("component", "safety_supervisor")),
	}
}

// Seed sets the funding balance and starts a new trading day.
func (s *SafetySupervisor) Seed(balanceSOL float64) {
	s.account.BalanceSOL = balanceSOL
	s.startDay(balanceSOL)
	metrics.UpdateAccount(s.account.BalanceSOL, s.account.DailyPnLSOL)
}

// Restore reinstalls persisted counters and flags.
func (s *SafetySupervisor) Restore(account domain.AccountStats, state domain.SafetyState) {
	s.account = account
	s.state = state
	if s.state.Halted {
		metrics.RecordHalt("restored")
	}
	metrics.UpdateAccount(s.account.BalanceSOL, s.account.DailyPnLSOL)
}

// CanTrade reports whether amountSOL of new size may be committed. Checks run
// in order: reserve floor, per-trade cap, daily limits, position cap.
func (s *SafetySupervisor) CanTrade(amountSOL float64, maxPositions, currentPositions int) (bool, string) {
	balance := s.account.BalanceSOL

	if remaining := balance - amountSOL; remaining < s.cfg.MinReserveSOL {
		return false, fmt.Sprintf("reserve floor: trade %.4f would leave %.4f SOL, minimum %.4f", amountSOL, remaining, s.cfg.MinReserveSOL)
	}
	if maxTrade := balance * s.cfg.MaxTradePct / 100; amountSOL > maxTrade {
		return false, fmt.Sprintf("trade size %.4f exceeds %.1f%% of balance (%.4f SOL)", amountSOL, s.cfg.MaxTradePct, maxTrade)
	}
	if ok, reason := s.dailyOK(); !ok {
		return false, reason
	}
	if currentPositions >= maxPositions {
		return false, fmt.Sprintf("max positions (%d) reached", maxPositions)
	}
	return true, "ok"
}

func (s *SafetySupervisor) dailyOK() (bool, string) {
	if s.state.Stopped {
		return false, "stopped by operator"
	}
	if s.state.Halted {
		return false, "halted: " + s.state.HaltReason
	}
	if reason, breached := s.lossBreached(); breached {
		s.halt(reason)
		return false, "halted: " + reason
	}
	if s.cfg.MaxDailyTrades > 0 && s.account.DailyTrades >= s.cfg.MaxDailyTrades {
		return false, fmt.Sprintf("max daily trades (%d) reached", s.cfg.MaxDailyTrades)
	}
	if now := s.clock.Now(); now.Before(s.state.CooldownUntil) {
		return false, fmt.Sprintf("cooldown active for %s", s.state.CooldownUntil.Sub(now).Round(time.Second))
	}
	return true, ""
}

// lossEpsilon absorbs float rounding in summed PnL, so losses that add up to
// the limit on paper still reach it.
const lossEpsilon = 1e-9

// lossBreached compares today's net realized PnL, measured from the last
// resume, against both limits. A loss of exactly the limit counts as a breach.
func (s *SafetySupervisor) lossBreached() (string, bool) {
	pnl := s.account.DailyPnLSOL - s.state.ResumedAtPnLSOL
	if s.cfg.MaxDailyLossSOL > 0 && pnl <= -s.cfg.MaxDailyLossSOL+lossEpsilon {
		return fmt.Sprintf("daily loss %.4f SOL reached limit %.4f", pnl, s.cfg.MaxDailyLossSOL), true
	}
	if s.cfg.MaxDailyLossPct > 0 && s.account.DayStartSOL > 0 {
		if pct := pnl / s.account.DayStartSOL * 100; pct <= -s.cfg.MaxDailyLossPct+lossEpsilon {
			return fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%", pct, s.cfg.MaxDailyLossPct), true
		}
	}
	return "", false
}

// RecordBuy debits committed size from the balance.
func (s *SafetySupervisor) RecordBuy(sizeSOL float64) {
	s.account.BalanceSOL -= sizeSOL
	metrics.UpdateAccount(s.account.BalanceSOL, s.account.DailyPnLSOL)
}

// RecordSell credits sale proceeds to the balance.
func (s *SafetySupervisor) RecordSell(proceedsSOL float64) {
	s.account.BalanceSOL += proceedsSOL
	metrics.UpdateAccount(s.account.BalanceSOL, s.account.DailyPnLSOL)
}

// RecordTradeResult books the realized PnL of a closed position. A breach of
// either daily loss limit halts trading on this call; a losing streak of the
// configured length starts a cooldown.
func (s *SafetySupervisor) RecordTradeResult(pnlSOL float64, reason string) []SafetyEvent {
	var events []SafetyEvent

	s.account.RealizedPnLSOL += pnlSOL
	s.account.DailyPnLSOL += pnlSOL
	s.account.DailyTrades++
	if pnlSOL >= 0 {
		s.account.Wins++
		s.account.ConsecutiveLosses = 0
	} else {
		s.account.Losses++
		s.account.ConsecutiveLosses++
	}
	metrics.UpdateAccount(s.account.BalanceSOL, s.account.DailyPnLSOL)

	s.logger.Info("trade result recorded",
		slog.Float64("pnl_sol", pnlSOL),
		slog.String("reason", reason),
		slog.Float64("daily_pnl_sol", s.account.DailyPnLSOL),
		slog.Int("consecutive_losses", s.account.ConsecutiveLosses),
	)

	if pnlSOL >= 0 {
		return nil
	}
	if !s.state.Halted {
		if why, breached := s.lossBreached(); breached {
			s.halt(why)
			events = append(events, SafetyEvent{Kind: SafetyHalt, Reason: why})
		}
	}
	if s.cfg.MaxConsecutiveLosses > 0 && s.account.ConsecutiveLosses >= s.cfg.MaxConsecutiveLosses {
		now := s.clock.Now()
		if !now.Before(s.state.CooldownUntil) {
			s.state.CooldownUntil = now.Add(s.cfg.Cooldown)
			metrics.RecordCooldown()
			why := fmt.Sprintf("%d consecutive losses", s.account.ConsecutiveLosses)
			s.logger.Warn("cooldown started",
				slog.String("reason", why),
				slog.Duration("duration", s.cfg.Cooldown),
			)
			events = append(events, SafetyEvent{Kind: SafetyCooldown, Reason: why})
		}
	}
	return events
}

// Tick re-evaluates limits. It is idempotent and lifts an expired cooldown.
func (s *SafetySupervisor) Tick() []SafetyEvent {
	var events []SafetyEvent
	if !s.state.CooldownUntil.IsZero() && !s.clock.Now().Before(s.state.CooldownUntil) {
		s.state.CooldownUntil = time.Time{}
		s.account.ConsecutiveLosses = 0
		s.logger.Info("cooldown ended")
		events = append(events, SafetyEvent{Kind: SafetyCooldownEnd})
	}
	if !s.state.Halted {
		if why, breached := s.lossBreached(); breached {
			s.halt(why)
			events = append(events, SafetyEvent{Kind: SafetyHalt, Reason: why})
		}
	}
	return events
}

func (s *SafetySupervisor) halt(reason string) {
	if s.state.Halted {
		return
	}
	s.state.Halted = true
	s.state.HaltReason = reason
	s.state.HaltedAt = s.clock.Now()
	metrics.RecordHalt("daily_loss")
	s.logger.Warn("trading halted", slog.String("reason", reason))
}

// Resume clears a halt, an operator stop and any cooldown. Losses booked so
// far today no longer count toward the halt.
func (s *SafetySupervisor) Resume() SafetyEvent {
	if s.account.DailyPnLSOL < 0 {
		s.state.ResumedAtPnLSOL = s.account.DailyPnLSOL
	}
	s.state.Halted = false
	s.state.HaltReason = ""
	s.state.HaltedAt = time.Time{}
	s.state.Stopped = false
	s.state.CooldownUntil = time.Time{}
	s.account.ConsecutiveLosses = 0
	metrics.RecordResume()
	s.logger.Info("trading resumed")
	return SafetyEvent{Kind: SafetyResume}
}

// Stop short-circuits the control loop until Resume.
func (s *SafetySupervisor) Stop(reason string) {
	s.state.Stopped = true
	s.logger.Warn("control loop stopped", slog.String("reason", reason))
}

// Stopped reports whether an operator stop is in effect.
func (s *SafetySupervisor) Stopped() bool { return s.state.Stopped }

// Halted reports whether a daily-loss halt is in effect.
func (s *SafetySupervisor) Halted() bool { return s.state.Halted }

// Rollover starts a new trading day. A positive balance re-seeds the
// tracked balance from a live query. A loss halt is cleared; an operator
// stop is not.
func (s *SafetySupervisor) Rollover(balanceSOL float64) SafetyEvent {
	if balanceSOL > 0 {
		s.account.BalanceSOL = balanceSOL
	}
	s.startDay(s.account.BalanceSOL)
	if s.state.Halted {
		s.state.Halted = false
		s.state.HaltReason = ""
		s.state.HaltedAt = time.Time{}
		metrics.RecordResume()
	}
	s.logger.Info("daily rollover", slog.Float64("balance_sol", s.account.BalanceSOL))
	return SafetyEvent{Kind: SafetyRollover}
}

func (s *SafetySupervisor) startDay(balance float64) {
	s.account.DayStartSOL = balance
	s.account.DayStartedAt = s.clock.Now()
	s.account.DailyPnLSOL = 0
	s.account.DailyTrades = 0
	s.state.ResumedAtPnLSOL = 0
	metrics.UpdateAccount(s.account.BalanceSOL, s.account.DailyPnLSOL)
}

// Account returns a copy of the account counters.
func (s *SafetySupervisor) Account() domain.AccountStats { return s.account }

// State returns a copy of the halt and cooldown flags.
func (s *SafetySupervisor) State() domain.SafetyState { return s.state }

// Status returns the observable view of the supervisor.
func (s *SafetySupervisor) Status() domain.SafetyStatus {
	now := s.clock.Now()
	st := domain.SafetyStatus{
		SafetyState:  s.state,
		Account:      s.account,
		DailyLossPct: s.account.DailyLossPct(),
		ReserveSOL:   s.cfg.MinReserveSOL,
	}
	if now.Before(s.state.CooldownUntil) {
		st.InCooldown = true
		st.CooldownRemaining = s.state.CooldownUntil.Sub(now)
	}
	return st
}
