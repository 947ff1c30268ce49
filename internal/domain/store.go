package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SnapshotStore persists control-loop snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context) (Snapshot, error)
	Prune(ctx context.Context, keep int) (int64, error)
}

// TradeStore persists the execution journal.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListByMint(ctx context.Context, mint string, opts ListOpts) ([]TradeRecord, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// TickSink receives accepted price ticks for long-term storage.
type TickSink interface {
	WriteTicks(ctx context.Context, ticks []PriceTick) error
}
