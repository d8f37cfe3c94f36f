package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// PositionLedgerStore implements domain.PositionLedgerStore using PostgreSQL.
type PositionLedgerStore struct {
	pool *pgxpool.Pool
}

// NewPositionLedgerStore creates a store backed by the given connection pool.
func NewPositionLedgerStore(pool *pgxpool.Pool) *PositionLedgerStore {
	return &PositionLedgerStore{pool: pool}
}

// Append inserts one position delta record.
func (s *PositionLedgerStore) Append(ctx context.Context, rec domain.PositionLedgerRecord) error {
	const query = `
		INSERT INTO position_ledger
			(order_id, correlation_id, symbol, units_delta, price, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		rec.OrderID, rec.CorrelationID, rec.Symbol, rec.UnitsDelta, rec.Price, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append position ledger %s: %w", rec.OrderID, err)
	}
	return nil
}

var _ domain.PositionLedgerStore = (*PositionLedgerStore)(nil)
