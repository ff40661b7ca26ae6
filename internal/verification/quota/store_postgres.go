package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "attest/pkg/domain"
)

// PostgresStore persists quota counters in PostgreSQL. Atomicity comes from a
// single conditional upsert: the increment only applies while consumed is
// below the limit, so concurrent callers cannot overshoot.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed quota store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Consume atomically increments the counter when under the limit.
func (s *PostgresStore) Consume(ctx context.Context, identity id.Identity, scope string, limit int) (Record, bool, error) {
	query := `
		INSERT INTO verification_quotas (identity, scope, consumed, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (identity, scope) DO UPDATE
			SET consumed = verification_quotas.consumed + 1, updated_at = now()
			WHERE verification_quotas.consumed < $3
		RETURNING consumed
	`
	rec := Record{Identity: identity, Scope: scope, Limit: limit}

	err := s.db.QueryRowContext(ctx, query, identity.String(), scope, limit).Scan(&rec.Consumed)
	if errors.Is(err, sql.ErrNoRows) {
		// Conditional update did not fire: the counter is already at the limit.
		current, gerr := s.Get(ctx, identity, scope, limit)
		if gerr != nil {
			return rec, false, gerr
		}
		return current, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("consume quota: %w", err)
	}
	return rec, true, nil
}

// Get returns the current record without consuming.
func (s *PostgresStore) Get(ctx context.Context, identity id.Identity, scope string, limit int) (Record, error) {
	rec := Record{Identity: identity, Scope: scope, Limit: limit}

	err := s.db.QueryRowContext(ctx,
		`SELECT consumed, updated_at FROM verification_quotas WHERE identity = $1 AND scope = $2`,
		identity.String(), scope,
	).Scan(&rec.Consumed, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("get quota: %w", err)
	}
	return rec, nil
}
