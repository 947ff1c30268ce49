package domain

import "time"

// BounceWatchlistEntry tracks one recently stopped-out asset for a rebound.
type BounceWatchlistEntry struct {
	Mint            string    `json:"mint"`
	Symbol          string    `json:"symbol"`
	Phase           Phase     `json:"phase"`
	Reason          string    `json:"reason"`
	OriginalSizeSOL float64   `json:"original_size_sol"`
	OriginalLossSOL float64   `json:"original_loss_sol"`
	ExitPrice       float64   `json:"exit_price"`
	ExitTime        time.Time `json:"exit_time"`
	BottomPrice     float64   `json:"bottom_price"`
	ReentryCount    int       `json:"reentry_count"`
}

// BouncePct returns the rebound of price off the recorded bottom.
func (e BounceWatchlistEntry) BouncePct(price float64) float64 {
	if e.BottomPrice <= 0 {
		return 0
	}
	return price/e.BottomPrice - 1
}
