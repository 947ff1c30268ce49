package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
)

// BalanceFunc reports the live SOL balance used to seed a new trading day.
type BalanceFunc func(ctx context.Context) (float64, error)

// RolloverScheduler enqueues a rollover command at every UTC midnight.
type RolloverScheduler struct {
	commands Pusher[domain.Command]
	balance  BalanceFunc
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRolloverScheduler creates a scheduler. balance may be nil, in which case
// the day is seeded from the tracked balance.
func NewRolloverScheduler(commands Pusher[domain.Command], balance BalanceFunc, c clock.Clock, logger *slog.Logger) *RolloverScheduler {
	return &RolloverScheduler{
		commands: commands,
		balance:  balance,
		clock:    c,
		logger:   logger.With(slog.String("component", "rollover_scheduler")),
	}
}

// NextMidnight returns the first UTC midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// Run waits for each midnight and enqueues the command until ctx is done.
func (s *RolloverScheduler) Run(ctx context.Context) error {
	for {
		next := NextMidnight(s.clock.Now())
		timer := time.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		s.Fire(ctx)
	}
}

// Fire enqueues one rollover command.
func (s *RolloverScheduler) Fire(ctx context.Context) {
	cmd := domain.Command{
		ID:       uuid.NewString(),
		Kind:     domain.CommandRollover,
		IssuedAt: s.clock.Now(),
	}
	if s.balance != nil {
		bal, err := s.balance(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "rollover balance query failed, using tracked balance",
				slog.String("error", err.Error()),
			)
		} else {
			cmd.BalanceSOL = bal
		}
	}
	if err := s.commands.Push(cmd); err != nil {
		s.logger.ErrorContext(ctx, "rollover command dropped", slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "rollover scheduled", slog.Float64("balance_sol", cmd.BalanceSOL))
}
