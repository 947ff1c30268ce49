package domain

import (
	"sort"
	"time"
)

// Snapshot is the full persisted state of the control loop: open positions,
// account counters, safety flags, and the bounce watchlist.
type Snapshot struct {
	ID           string                 `json:"id"`
	TakenAt      time.Time              `json:"taken_at"`
	Positions    []Position             `json:"positions"`
	Account      AccountStats           `json:"account"`
	Safety       SafetyState            `json:"safety"`
	Watchlist    []BounceWatchlistEntry `json:"watchlist"`
	TradedTokens map[string]time.Time   `json:"traded_tokens"`
}

// SortPositions orders positions by mint so snapshots diff cleanly.
func (s *Snapshot) SortPositions() {
	sort.Slice(s.Positions, func(i, j int) bool {
		return s.Positions[i].Mint < s.Positions[j].Mint
	})
}

// View is the immutable state published after every tick for readers outside
// the control loop.
type View struct {
	Tick      uint64                 `json:"tick"`
	At        time.Time              `json:"at"`
	Positions []Position             `json:"positions"`
	Safety    SafetyStatus           `json:"safety"`
	Watchlist []BounceWatchlistEntry `json:"watchlist"`
}
