// Package ledger defines the credential ledger port. The ledger is the
// source of truth for issuance, ownership, and revocation; every other store
// in the system is a mirror of it.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

var (
	// ErrNotFound keeps "no credential at that key" consistent across implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "credential not found")
	// ErrUnavailable marks transient ledger reachability failures; callers retry with backoff.
	ErrUnavailable = dErrors.New(dErrors.CodeLedgerUnavailable, "ledger unavailable")
)

// Credential is the ledger's record of an issued academic credential.
// It is created once on mint and mutated exactly one way: Revoked false -> true.
type Credential struct {
	TokenID     id.TokenID
	Student     id.Identity
	Institution id.Identity
	DegreeLabel string
	IssueDate   time.Time
	ContentHash id.ContentHash
	Revoked     bool
}

// MintResult is the ledger's answer to a mint submission. AlreadyMinted is
// true when the idempotency key had been committed before; the returned
// TokenID is then the original mint's, so retries are safe.
type MintResult struct {
	TokenID       id.TokenID
	TxRef         string
	AlreadyMinted bool
}

// Ledger is the append-only, tamper-evident store of credential facts.
type Ledger interface {
	Mint(ctx context.Context, idemKey string, student, institution id.Identity, degreeLabel string, contentHash id.ContentHash) (MintResult, error)
	Revoke(ctx context.Context, tokenID id.TokenID) error
	Get(ctx context.Context, tokenID id.TokenID) (Credential, error)
	ListByStudent(ctx context.Context, student id.Identity) ([]Credential, error)
}

// IdempotencyKey derives the deterministic mint key from request contents,
// so a retried submission after a transient failure cannot double-mint.
func IdempotencyKey(institution, student id.Identity, degreeLabel string, contentHash id.ContentHash) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s", institution, student, degreeLabel, contentHash))
	return hex.EncodeToString(sum[:])
}
