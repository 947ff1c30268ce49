package domain

import "time"

// Side is the direction of an execution.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Fill is what the execution collaborator reports back. A failed or empty
// fill must never mutate a Position or AccountStats.
type Fill struct {
	Success        bool    `json:"success"`
	FilledSizeSOL  float64 `json:"filled_size_sol"`
	FilledPrice    float64 `json:"filled_price"`
	TokenAmountRaw uint64  `json:"token_amount_raw"`
	// NoBalance is set when the venue reports that the wallet holds none of
	// the token. The control loop treats this as a ghost position.
	NoBalance bool   `json:"no_balance"`
	Signature string `json:"signature,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Usable reports whether the fill moved size and may mutate state.
func (f Fill) Usable() bool {
	return f.Success && f.FilledSizeSOL > 0 && f.FilledPrice > 0
}

// TradeRecord is a journal row written for every attempted execution.
type TradeRecord struct {
	ID         string         `json:"id"`
	Mint       string         `json:"mint"`
	Symbol     string         `json:"symbol"`
	Side       Side           `json:"side"`
	State      LifecycleState `json:"state"`
	SizeSOL    float64        `json:"size_sol"`
	Price      float64        `json:"price"`
	PnLSOL     float64        `json:"pnl_sol"`
	Reason     string         `json:"reason"`
	Success    bool           `json:"success"`
	Signature  string         `json:"signature,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}
