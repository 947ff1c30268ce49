package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/convexbot/internal/domain"
)

// TradeStore implements domain.TradeStore: the journal of every attempted
// execution, successful or not.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, mint, symbol, side, state, size_sol, price,
	pnl_sol, reason, success, signature, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		if err := rows.Scan(
			&t.ID, &t.Mint, &t.Symbol, &t.Side, &t.State,
			&t.SizeSOL, &t.Price, &t.PnLSOL, &t.Reason,
			&t.Success, &t.Signature, &t.ExecutedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert journals one trade. Re-inserting the same ID is a no-op, so a
// retried write after a timeout is safe.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, mint, symbol, side, state, size_sol, price,
			pnl_sol, reason, success, signature, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Mint, rec.Symbol, rec.Side, rec.State, rec.SizeSOL, rec.Price,
		rec.PnLSOL, rec.Reason, rec.Success, rec.Signature, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", rec.ID, err)
	}
	return nil
}

// ListByMint returns the journal of one asset, newest first.
func (s *TradeStore) ListByMint(ctx context.Context, mint string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := listQuery(
		`SELECT `+tradeSelectCols+` FROM trades WHERE mint = $1`,
		[]any{mint}, "executed_at", opts,
	)
	return s.list(ctx, "by mint", query, args)
}

// ListRecent returns the journal across assets, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := listQuery(
		`SELECT `+tradeSelectCols+` FROM trades WHERE 1=1`,
		nil, "executed_at", opts,
	)
	return s.list(ctx, "recent", query, args)
}

func (s *TradeStore) list(ctx context.Context, what, query string, args []any) ([]domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", what, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades %s: %w", what, err)
	}
	return trades, nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
