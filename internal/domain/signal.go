package domain

import "time"

// SignalAction is what an external queue signal asks for.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
)

// SignalSource names the producer of a queue signal.
type SignalSource string

const (
	SourceCopyTrade SignalSource = "copytrade"
	SourceBounce    SignalSource = "bounce"
	SourceOperator  SignalSource = "operator"
)

// QueueSignal is one entry drained from a signal queue during a tick.
type QueueSignal struct {
	ID        string       `json:"id"`
	Mint      string       `json:"mint"`
	Symbol    string       `json:"symbol,omitempty"`
	Action    SignalAction `json:"action"`
	SizeSOL   float64      `json:"size_sol"`
	Phase     Phase        `json:"phase,omitempty"`
	Source    SignalSource `json:"source"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// CommandKind enumerates operator commands.
type CommandKind string

const (
	CommandResume    CommandKind = "resume"
	CommandStop      CommandKind = "stop"
	CommandForceSell CommandKind = "force_sell"
	CommandRollover  CommandKind = "rollover"
)

// Valid reports whether k is a known command.
func (k CommandKind) Valid() bool {
	switch k {
	case CommandResume, CommandStop, CommandForceSell, CommandRollover:
		return true
	}
	return false
}

// Command is an operator instruction applied inside a tick.
type Command struct {
	ID   string      `json:"id"`
	Kind CommandKind `json:"kind"`
	Mint string      `json:"mint,omitempty"`
	// BalanceSOL optionally seeds the new trading day on rollover.
	BalanceSOL float64   `json:"balance_sol,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}
