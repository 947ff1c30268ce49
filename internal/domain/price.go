package domain

import "time"

// PriceSourceKind identifies where a price update came from. Lower rank wins.
type PriceSourceKind string

const (
	SourceFill           PriceSourceKind = "fill"
	SourceOpenPoller     PriceSourceKind = "open_poller"
	SourceStream         PriceSourceKind = "stream"
	SourceMigratedPoller PriceSourceKind = "migrated_poller"
	SourceFallback       PriceSourceKind = "fallback"
	SourceExternal       PriceSourceKind = "external"
)

// Rank returns the priority of the source, highest priority first.
func (k PriceSourceKind) Rank() int {
	switch k {
	case SourceFill:
		return 0
	case SourceOpenPoller:
		return 1
	case SourceStream:
		return 2
	case SourceMigratedPoller:
		return 3
	case SourceFallback:
		return 4
	default:
		return 5
	}
}

// PriceTick is a single accepted price observation.
type PriceTick struct {
	Mint       string          `json:"mint"`
	Price      float64         `json:"price"`
	Source     PriceSourceKind `json:"source"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Quote is the answer to a latest-price query. Stale quotes are still
// returned; callers decide how to treat them.
type Quote struct {
	Price     float64         `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
	Source    PriceSourceKind `json:"source"`
	Age       time.Duration   `json:"age"`
	Stale     bool            `json:"stale"`
}
