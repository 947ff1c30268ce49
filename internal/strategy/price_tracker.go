package strategy

import (
	"sync"
	"time"
)

// PricePoint records a single price observation at a point in time.
type PricePoint struct {
	Price float64
	Time  time.Time
}

// PriceTracker maintains a sliding window of recent prices for each mint and
// exposes the momentum and crash helpers the control loop relies on.
type PriceTracker struct {
	history    map[string][]PricePoint
	windowSize time.Duration
	mu         sync.RWMutex
}

// NewPriceTracker creates a PriceTracker. The windowSize parameter controls
// how far back the in-memory history extends; points older than the window
// are discarded on every Track call.
func NewPriceTracker(windowSize time.Duration) *PriceTracker {
	return &PriceTracker{
		history:    make(map[string][]PricePoint),
		windowSize: windowSize,
	}
}

// Track records a new price observation for the given mint and trims points
// that have fallen outside the sliding window. Repeated observations of an
// unchanged price at the same timestamp are ignored.
func (pt *PriceTracker) Track(mint string, price float64, ts time.Time) {
	if price <= 0 {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pts := pt.history[mint]
	if n := len(pts); n > 0 && pts[n-1].Time.Equal(ts) && pts[n-1].Price == price {
		return
	}
	pt.history[mint] = append(pts, PricePoint{Price: price, Time: ts})
	pt.trim(mint, ts)
}

// GetHistory returns a copy of the price history within the sliding window for
// the given mint. The returned slice is safe to mutate.
func (pt *PriceTracker) GetHistory(mint string) []PricePoint {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	src := pt.history[mint]
	if len(src) == 0 {
		return nil
	}
	out := make([]PricePoint, len(src))
	copy(out, src)
	return out
}

// Momentum returns the fractional change from the oldest to the newest point
// in the window. Fewer than two points yield 0.
func (pt *PriceTracker) Momentum(mint string) float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	pts := pt.history[mint]
	if len(pts) < 2 || pts[0].Price <= 0 {
		return 0
	}
	return pts[len(pts)-1].Price/pts[0].Price - 1
}

// TickDrop returns the fractional drop between the last two observations.
// A rise or a single observation yields 0.
func (pt *PriceTracker) TickDrop(mint string) float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	pts := pt.history[mint]
	if len(pts) < 2 {
		return 0
	}
	prev, cur := pts[len(pts)-2].Price, pts[len(pts)-1].Price
	if prev <= 0 || cur >= prev {
		return 0
	}
	return (prev - cur) / prev
}

// Forget drops all history for mint.
func (pt *PriceTracker) Forget(mint string) {
	pt.mu.Lock()
	delete(pt.history, mint)
	pt.mu.Unlock()
}

// trim removes all points older than windowSize relative to the reference time.
// The caller must hold pt.mu.
func (pt *PriceTracker) trim(mint string, now time.Time) {
	cutoff := now.Add(-pt.windowSize)
	pts := pt.history[mint]

	// Find the first index that is within the window.
	i := 0
	for i < len(pts) && pts[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		pt.history[mint] = pts[i:]
	}
}
