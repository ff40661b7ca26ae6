package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "attest/pkg/domain"
)

// PostgresStore persists index records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed index store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert writes ledger truth for a token, keeping an existing record's record_id.
func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO index_records (record_id, token_id, student, institution, degree_label, issue_date, content_hash, revoked, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (token_id) DO UPDATE SET
			student = EXCLUDED.student,
			institution = EXCLUDED.institution,
			degree_label = EXCLUDED.degree_label,
			issue_date = EXCLUDED.issue_date,
			content_hash = EXCLUDED.content_hash,
			revoked = EXCLUDED.revoked,
			indexed_at = now()
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(rec.RecordID),
		int64(rec.TokenID),
		rec.Student.String(),
		rec.Institution.String(),
		rec.DegreeLabel,
		rec.IssueDate,
		rec.ContentHash.String(),
		rec.Revoked,
	)
	if err != nil {
		return fmt.Errorf("upsert index record: %w", err)
	}
	return nil
}

// FindByToken retrieves a record by token or returns ErrNotFound.
func (s *PostgresStore) FindByToken(ctx context.Context, tokenID id.TokenID) (Record, error) {
	query := `
		SELECT record_id, token_id, student, institution, degree_label, issue_date, content_hash, revoked, indexed_at
		FROM index_records
		WHERE token_id = $1
	`
	return scanRecord(s.db.QueryRowContext(ctx, query, int64(tokenID)))
}

// ListByStudent returns the student's records ordered by issue date.
func (s *PostgresStore) ListByStudent(ctx context.Context, student id.Identity) ([]Record, error) {
	query := `
		SELECT record_id, token_id, student, institution, degree_label, issue_date, content_hash, revoked, indexed_at
		FROM index_records
		WHERE student = $1
		ORDER BY issue_date ASC
	`
	rows, err := s.db.QueryContext(ctx, query, student.String())
	if err != nil {
		return nil, fmt.Errorf("list index records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkRevoked flips the mirrored revocation bit.
func (s *PostgresStore) MarkRevoked(ctx context.Context, tokenID id.TokenID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE index_records SET revoked = true, indexed_at = now() WHERE token_id = $1`,
		int64(tokenID),
	)
	if err != nil {
		return fmt.Errorf("mark revoked: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDirty queues a token for reconciliation.
func (s *PostgresStore) MarkDirty(ctx context.Context, tokenID id.TokenID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_repair_queue (token_id, queued_at) VALUES ($1, now()) ON CONFLICT (token_id) DO NOTHING`,
		int64(tokenID),
	)
	if err != nil {
		return fmt.Errorf("mark dirty: %w", err)
	}
	return nil
}

// ListDirty returns up to limit queued tokens, oldest first.
func (s *PostgresStore) ListDirty(ctx context.Context, limit int) ([]id.TokenID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token_id FROM index_repair_queue ORDER BY queued_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list dirty: %w", err)
	}
	defer rows.Close()

	var out []id.TokenID
	for rows.Next() {
		var tokenID int64
		if err := rows.Scan(&tokenID); err != nil {
			return nil, fmt.Errorf("scan dirty token: %w", err)
		}
		out = append(out, id.TokenID(tokenID))
	}
	return out, rows.Err()
}

// ClearDirty removes a token from the repair queue.
func (s *PostgresStore) ClearDirty(ctx context.Context, tokenID id.TokenID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM index_repair_queue WHERE token_id = $1`,
		int64(tokenID),
	)
	if err != nil {
		return fmt.Errorf("clear dirty: %w", err)
	}
	return nil
}

// Stats aggregates consistent records, excluding queued tokens.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	query := `
		SELECT count(*), count(*) FILTER (WHERE revoked)
		FROM index_records r
		WHERE NOT EXISTS (SELECT 1 FROM index_repair_queue q WHERE q.token_id = r.token_id)
	`
	var stats Stats
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Revoked); err != nil {
		return Stats{}, fmt.Errorf("index stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec      Record
		recordID uuid.UUID
		tokenID  int64
		student  string
		inst     string
		hash     string
	)
	err := row.Scan(&recordID, &tokenID, &student, &inst, &rec.DegreeLabel, &rec.IssueDate, &hash, &rec.Revoked, &rec.IndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan index record: %w", err)
	}
	rec.RecordID = id.RecordID(recordID)
	rec.TokenID = id.TokenID(tokenID)
	rec.Student = id.Identity(student)
	rec.Institution = id.Identity(inst)
	rec.ContentHash = id.ContentHash(hash)
	return rec, nil
}
