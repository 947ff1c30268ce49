package clickhouse

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// TickStore implements domain.TickSink with one batch insert per call.
type TickStore struct {
	conn *Conn
}

// NewTickStore creates a TickStore.
func NewTickStore(conn *Conn) *TickStore {
	return &TickStore{conn: conn}
}

var _ domain.TickSink = (*TickStore)(nil)

// WriteTicks inserts ticks in one batch.
func (s *TickStore) WriteTicks(ctx context.Context, ticks []domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO price_ticks (mint, price, source, observed_at)`)
	if err != nil {
		return fmt.Errorf("clickhouse: prepare batch: %w", err)
	}
	for _, t := range ticks {
		if err := batch.Append(t.Mint, t.Price, string(t.Source), t.ObservedAt); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("clickhouse: append tick: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse: send batch of %d: %w", len(ticks), err)
	}
	return nil
}
