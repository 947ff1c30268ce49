// Package notify delivers control-loop events to operators over Telegram and
// Discord. Events are filtered by name so operators receive only the alerts
// they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// DefaultEvents are delivered when no filter is configured.
var DefaultEvents = []string{
	string(domain.EventEntry),
	string(domain.EventEscalation),
	string(domain.EventPartialExit),
	string(domain.EventExit),
	string(domain.EventGhost),
	string(domain.EventHalt),
	string(domain.EventCooldown),
	string(domain.EventBounce),
}

// Notifier formats events and fans them out to every Sender.
type Notifier struct {
	senders []Sender
	events  map[domain.EventKind]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier forwarding only the named events. An empty
// list means DefaultEvents.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if len(events) == 0 {
		events = DefaultEvents
	}
	allowed := make(map[domain.EventKind]bool, len(events))
	for _, e := range events {
		allowed[domain.EventKind(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Wants reports whether ev passes the filter. Failed executions are never
// delivered: the retry or ghost cleanup that follows is what matters. Ghost
// events carry the failed sell and are always delivered.
func (n *Notifier) Wants(ev domain.Event) bool {
	if !n.events[ev.Kind] {
		return false
	}
	return ev.Kind == domain.EventGhost || ev.Trade == nil || ev.Trade.Success
}

// Notify formats ev and sends it if it passes the filter.
func (n *Notifier) Notify(ctx context.Context, ev domain.Event) error {
	if !n.Wants(ev) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", string(ev.Kind)))
		return nil
	}
	title, message := Format(ev)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a free-form message regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender. One failing sender does not stop the
// others; failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

// Format renders ev as a title and a plain-text body.
func Format(ev domain.Event) (title, message string) {
	name := ev.Symbol
	if name == "" {
		name = shortMint(ev.Mint)
	}

	switch ev.Kind {
	case domain.EventEntry:
		title = "Entry " + name
	case domain.EventEscalation:
		title = "Escalation " + name
	case domain.EventPartialExit:
		title = "Partial exit " + name
	case domain.EventExit:
		title = "Exit " + name
	case domain.EventGhost:
		title = "Ghost removed " + name
	case domain.EventBounce:
		title = "Bounce re-entry " + name
	case domain.EventHalt:
		title = "Trading halted"
	case domain.EventCooldown:
		title = "Loss cooldown"
	case domain.EventResume:
		title = "Trading resumed"
	case domain.EventRollover:
		title = "Daily rollover"
	default:
		title = string(ev.Kind)
	}

	var lines []string
	if ev.Mint != "" {
		lines = append(lines, "mint: "+ev.Mint)
	}
	if ev.Reason != "" {
		lines = append(lines, "reason: "+ev.Reason)
	}
	if t := ev.Trade; t != nil {
		lines = append(lines, fmt.Sprintf("%s %.4f SOL @ %.10g", t.Side, t.SizeSOL, t.Price))
		if t.State != "" {
			lines = append(lines, "state: "+string(t.State))
		}
	}
	if ev.PnLSOL != 0 {
		lines = append(lines, fmt.Sprintf("pnl: %+.4f SOL", ev.PnLSOL))
	}
	return title, strings.Join(lines, "\n")
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}
