package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// AuditStore mirrors audit entries into PostgreSQL for query access. The
// authoritative append-only trail is the JSONL file written by the ledger
// package; this store exists so reporting tooling can filter by correlation
// id without scanning segments.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Append implements domain.AuditSink.
func (s *AuditStore) Append(ctx context.Context, entry domain.AuditEntry) error {
	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit payload: %w", err)
	}

	const query = `INSERT INTO audit_log (kind, correlation_id, payload, created_at) VALUES ($1, $2, $3, $4)`
	var corr any
	if entry.CorrelationID != "" {
		corr = entry.CorrelationID
	}
	if _, err := s.pool.Exec(ctx, query, string(entry.Kind), corr, payloadJSON, entry.TS); err != nil {
		return fmt.Errorf("postgres: append audit entry %s: %w", entry.Kind, err)
	}
	return nil
}

// ListByCorrelation returns audit entries for one correlation id in append
// order.
func (s *AuditStore) ListByCorrelation(ctx context.Context, correlationID string) ([]domain.AuditEntry, error) {
	const query = `
		SELECT kind, correlation_id, payload, created_at
		FROM audit_log
		WHERE correlation_id = $1
		ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var kind string
		var corr *string
		var payloadJSON []byte
		if err := rows.Scan(&kind, &corr, &payloadJSON, &e.TS); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		e.Kind = domain.AuditKind(kind)
		if corr != nil {
			e.CorrelationID = *corr
		}
		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit entries rows: %w", err)
	}
	return out, nil
}

var _ domain.AuditSink = (*AuditStore)(nil)
