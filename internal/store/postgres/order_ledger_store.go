package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// OrderLedgerStore implements domain.OrderLedgerStore using PostgreSQL.
// Records are append-only; there are no update or delete paths.
type OrderLedgerStore struct {
	pool *pgxpool.Pool
}

// NewOrderLedgerStore creates a store backed by the given connection pool.
func NewOrderLedgerStore(pool *pgxpool.Pool) *OrderLedgerStore {
	return &OrderLedgerStore{pool: pool}
}

// Append inserts one order ledger record.
func (s *OrderLedgerStore) Append(ctx context.Context, rec domain.OrderLedgerRecord) error {
	const query = `
		INSERT INTO order_ledger
			(order_id, correlation_id, symbol, side, quantity, state, reason_code, fill_price, fill_fee, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, query,
		rec.OrderID, rec.CorrelationID, rec.Symbol, string(rec.Side), rec.Quantity,
		string(rec.State), string(rec.ReasonCode), rec.FillPrice, rec.FillFee, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append order ledger %s: %w", rec.OrderID, err)
	}
	return nil
}

// ListByCorrelation returns all ledger records for one correlation id in
// append order.
func (s *OrderLedgerStore) ListByCorrelation(ctx context.Context, correlationID string) ([]domain.OrderLedgerRecord, error) {
	const query = `
		SELECT order_id, correlation_id, symbol, side, quantity, state, reason_code, fill_price, fill_fee, recorded_at
		FROM order_ledger
		WHERE correlation_id = $1
		ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order ledger %s: %w", correlationID, err)
	}
	defer rows.Close()

	var out []domain.OrderLedgerRecord
	for rows.Next() {
		var rec domain.OrderLedgerRecord
		var side, state, reason string
		if err := rows.Scan(&rec.OrderID, &rec.CorrelationID, &rec.Symbol, &side, &rec.Quantity,
			&state, &reason, &rec.FillPrice, &rec.FillFee, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan order ledger: %w", err)
		}
		rec.Side = domain.Side(side)
		rec.State = domain.OrderState(state)
		rec.ReasonCode = domain.ReasonCode(reason)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list order ledger rows: %w", err)
	}
	return out, nil
}

var _ domain.OrderLedgerStore = (*OrderLedgerStore)(nil)
