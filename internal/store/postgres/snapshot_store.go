package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore. The full snapshot is kept
// as JSONB; a few summary columns make the table readable from psql.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Save writes snap. Saving the same ID twice overwrites the first copy.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot: %w", err)
	}

	const query = `
		INSERT INTO snapshots (id, taken_at, open_positions, balance_sol, halted, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			taken_at = EXCLUDED.taken_at,
			open_positions = EXCLUDED.open_positions,
			balance_sol = EXCLUDED.balance_sol,
			halted = EXCLUDED.halted,
			payload = EXCLUDED.payload`

	_, err = s.pool.Exec(ctx, query,
		snap.ID, snap.TakenAt, len(snap.Positions), snap.Account.BalanceSOL,
		snap.Safety.Halted, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Latest returns the newest snapshot or domain.ErrNotFound.
func (s *SnapshotStore) Latest(ctx context.Context) (domain.Snapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM snapshots ORDER BY taken_at DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: latest snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: decode snapshot: %w", err)
	}
	return snap, nil
}

// Prune deletes all but the newest keep snapshots and returns how many rows
// were removed.
func (s *SnapshotStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM snapshots
		WHERE id NOT IN (SELECT id FROM snapshots ORDER BY taken_at DESC LIMIT $1)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
