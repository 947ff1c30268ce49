package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/convexbot/internal/domain"
	"github.com/alanyoungcy/convexbot/internal/metrics"
)

// EventNotifier delivers an event to operators.
type EventNotifier interface {
	Notify(ctx context.Context, ev domain.Event) error
}

// JournalDeps are the optional outputs of a Journal. Nil members are skipped.
type JournalDeps struct {
	Trades   domain.TradeStore
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Notifier EventNotifier
}

// Journal takes control-loop events off the tick and records them: trade
// rows into the store, a JSON copy onto the signal bus, an audit row, and an
// operator notification. Emit never blocks; events beyond the buffer are
// dropped and counted.
type Journal struct {
	deps    JournalDeps
	events  chan domain.Event
	timeout time.Duration
	logger  *slog.Logger
}

// NewJournal creates a Journal with a buffer of size events.
func NewJournal(deps JournalDeps, size int, logger *slog.Logger) *Journal {
	if size <= 0 {
		size = 256
	}
	return &Journal{
		deps:    deps,
		events:  make(chan domain.Event, size),
		timeout: 5 * time.Second,
		logger:  logger.With(slog.String("component", "journal")),
	}
}

// Emit queues ev for recording.
func (j *Journal) Emit(ev domain.Event) {
	select {
	case j.events <- ev:
	default:
		metrics.RecordQueueDrop("journal", "full")
		j.logger.Warn("event dropped, journal full", slog.String("event", string(ev.Kind)), slog.String("mint", ev.Mint))
	}
}

// Run records queued events until ctx is cancelled, then drains what is
// left with a fresh deadline.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			j.drain()
			return nil
		case ev := <-j.events:
			j.Record(ctx, ev)
		}
	}
}

func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	for {
		select {
		case ev := <-j.events:
			j.Record(ctx, ev)
		default:
			return
		}
	}
}

// Record writes ev to every configured output. Failures are logged; one
// failing output does not stop the others.
func (j *Journal) Record(ctx context.Context, ev domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	log := j.logger.With(slog.String("event", string(ev.Kind)), slog.String("mint", ev.Mint))

	if ev.Trade != nil && j.deps.Trades != nil {
		if err := j.deps.Trades.Insert(ctx, *ev.Trade); err != nil {
			log.ErrorContext(ctx, "insert trade failed", slog.String("error", err.Error()))
		}
	}

	if j.deps.Bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = j.deps.Bus.Publish(ctx, channelFor(ev.Kind), payload)
		}
		if err != nil {
			log.WarnContext(ctx, "publish event failed", slog.String("error", err.Error()))
		}
		if ev.Trade != nil {
			if err := j.appendTrade(ctx, *ev.Trade); err != nil {
				log.WarnContext(ctx, "trade stream append failed", slog.String("error", err.Error()))
			}
		}
	}

	if j.deps.Audit != nil {
		if err := j.deps.Audit.Log(ctx, string(ev.Kind), auditDetail(ev)); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if j.deps.Notifier != nil {
		if err := j.deps.Notifier.Notify(ctx, ev); err != nil {
			log.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

func (j *Journal) appendTrade(ctx context.Context, t domain.TradeRecord) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("journal: encode trade: %w", err)
	}
	return j.deps.Bus.StreamAppend(ctx, domain.StreamTradeJournal, payload)
}

// ListByMint returns journal rows for one token.
func (j *Journal) ListByMint(ctx context.Context, mint string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	if j.deps.Trades == nil {
		return nil, fmt.Errorf("journal: %w: no trade store", domain.ErrNotFound)
	}
	recs, err := j.deps.Trades.ListByMint(ctx, mint, opts)
	if err != nil {
		return nil, fmt.Errorf("journal: list by mint %q: %w", mint, err)
	}
	return recs, nil
}

// ListRecent returns the newest journal rows.
func (j *Journal) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	if j.deps.Trades == nil {
		return nil, fmt.Errorf("journal: %w: no trade store", domain.ErrNotFound)
	}
	recs, err := j.deps.Trades.ListRecent(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("journal: list recent: %w", err)
	}
	return recs, nil
}

func channelFor(kind domain.EventKind) string {
	switch kind {
	case domain.EventHalt, domain.EventCooldown, domain.EventResume, domain.EventRollover:
		return domain.ChannelSafety
	default:
		return domain.ChannelTrades
	}
}

func auditDetail(ev domain.Event) map[string]any {
	detail := map[string]any{
		"mint":   ev.Mint,
		"symbol": ev.Symbol,
		"reason": ev.Reason,
		"at":     ev.At.Format(time.RFC3339Nano),
	}
	if ev.PnLSOL != 0 {
		detail["pnl_sol"] = ev.PnLSOL
	}
	if t := ev.Trade; t != nil {
		detail["trade_id"] = t.ID
		detail["side"] = string(t.Side)
		detail["size_sol"] = t.SizeSOL
		detail["success"] = t.Success
	}
	return detail
}
