package domain

import "time"

// EventKind names an operator-visible event emitted by the control loop.
type EventKind string

const (
	EventEntry       EventKind = "entry"
	EventEscalation  EventKind = "escalation"
	EventPartialExit EventKind = "partial_exit"
	EventExit        EventKind = "exit"
	EventGhost       EventKind = "ghost"
	EventHalt        EventKind = "halt"
	EventCooldown    EventKind = "cooldown"
	EventResume      EventKind = "resume"
	EventBounce      EventKind = "bounce"
	EventRollover    EventKind = "rollover"
)

// Event is a fire-and-forget record of something the control loop did.
// Trade is set for every execution attempt.
type Event struct {
	Kind   EventKind    `json:"kind"`
	Mint   string       `json:"mint,omitempty"`
	Symbol string       `json:"symbol,omitempty"`
	Reason string       `json:"reason,omitempty"`
	PnLSOL float64      `json:"pnl_sol,omitempty"`
	Trade  *TradeRecord `json:"trade,omitempty"`
	At     time.Time    `json:"at"`
}
