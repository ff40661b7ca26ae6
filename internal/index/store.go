package index

import (
	"context"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "index record not found")
)

// Store persists the read-optimized mirror. Implementations must keep
// RecordID stable across upserts of the same token.
type Store interface {
	// Upsert writes ledger truth for a token. An existing record keeps its
	// RecordID; IndexedAt is refreshed.
	Upsert(ctx context.Context, rec Record) error
	// FindByToken returns the mirrored record or ErrNotFound.
	FindByToken(ctx context.Context, tokenID id.TokenID) (Record, error)
	// ListByStudent returns records for a student ordered by issue date.
	ListByStudent(ctx context.Context, student id.Identity) ([]Record, error)
	// MarkRevoked flips the mirrored revocation bit to true.
	MarkRevoked(ctx context.Context, tokenID id.TokenID) error

	// MarkDirty queues a token for reconciliation against the ledger.
	MarkDirty(ctx context.Context, tokenID id.TokenID) error
	// ListDirty returns up to limit queued tokens.
	ListDirty(ctx context.Context, limit int) ([]id.TokenID, error)
	// ClearDirty removes a token from the repair queue.
	ClearDirty(ctx context.Context, tokenID id.TokenID) error

	// Stats aggregates consistent records, excluding any queued for repair.
	Stats(ctx context.Context) (Stats, error)
}
