package audit

import (
	"context"
	"fmt"

	"database/sql"

	"github.com/google/uuid"

	id "attest/pkg/domain"
)

// PostgresStore persists audit events in PostgreSQL. Seq assignment computes
// the per-credential counter in the insert itself; the unique
// (credential_ref, seq) constraint catches concurrent appends that computed
// the same value, and the loser retries with a fresh sequence.
type PostgresStore struct {
	db *sql.DB
}

// appendAttempts bounds the seq-claim retries under append contention.
const appendAttempts = 10

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append persists the event with the next per-credential sequence number.
// Two appends for the same credential at READ COMMITTED can both read the
// same max(seq); ON CONFLICT DO NOTHING turns the losing insert into zero
// affected rows instead of a duplicate sequence, and the loop re-runs it.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	if event.CredentialRef.IsNil() || !event.Action.IsValid() {
		return ErrInvalidEvent
	}

	query := `
		INSERT INTO audit_events (id, credential_ref, actor, action, occurred_at, seq)
		SELECT $1, $2, $3, $4, $5, coalesce(max(seq), 0) + 1
		FROM audit_events
		WHERE credential_ref = $2
		ON CONFLICT (credential_ref, seq) DO NOTHING
	`
	for attempt := 0; attempt < appendAttempts; attempt++ {
		res, err := s.db.ExecContext(ctx, query,
			event.ID,
			int64(event.CredentialRef),
			event.Actor,
			string(event.Action),
			event.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
		if n == 1 {
			return nil
		}
	}
	return fmt.Errorf("append audit event: sequence contention for credential %d", event.CredentialRef)
}

// ListByCredential returns up to limit events with seq > afterSeq, oldest first.
func (s *PostgresStore) ListByCredential(ctx context.Context, ref id.TokenID, afterSeq uint64, limit int) ([]Event, error) {
	query := `
		SELECT id, credential_ref, actor, action, occurred_at, seq
		FROM audit_events
		WHERE credential_ref = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, int64(ref), int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			event   Event
			eventID uuid.UUID
			tokenID int64
			action  string
			seq     int64
		)
		if err := rows.Scan(&eventID, &tokenID, &event.Actor, &action, &event.Timestamp, &seq); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = eventID
		event.CredentialRef = id.TokenID(tokenID)
		event.Action = Action(action)
		event.Seq = uint64(seq)
		out = append(out, event)
	}
	return out, rows.Err()
}
