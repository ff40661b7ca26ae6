package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	id "attest/pkg/domain"
)

// InMemoryLedger is an in-process ledger for local use and tests. It keeps
// the contract honest: entries are append-only, token ids are assigned
// sequentially starting at 1, mints are deduplicated by idempotency key, and
// each transaction reference chains the previous one so tampering with
// history is detectable.
type InMemoryLedger struct {
	mu      sync.RWMutex
	entries map[id.TokenID]*Credential
	byIdem  map[string]MintResult
	nextID  id.TokenID
	headRef string
}

// NewInMemory constructs an empty in-memory ledger.
func NewInMemory() *InMemoryLedger {
	return &InMemoryLedger{
		entries: make(map[id.TokenID]*Credential),
		byIdem:  make(map[string]MintResult),
		nextID:  1,
		headRef: "genesis",
	}
}

// Mint appends a new credential, or returns the original result when the
// idempotency key was committed before.
func (l *InMemoryLedger) Mint(_ context.Context, idemKey string, student, institution id.Identity, degreeLabel string, contentHash id.ContentHash) (MintResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if res, ok := l.byIdem[idemKey]; ok {
		res.AlreadyMinted = true
		return res, nil
	}

	tokenID := l.nextID
	l.nextID++

	l.headRef = l.chainRef(idemKey, tokenID)
	l.entries[tokenID] = &Credential{
		TokenID:     tokenID,
		Student:     student,
		Institution: institution,
		DegreeLabel: degreeLabel,
		IssueDate:   time.Now().UTC(),
		ContentHash: contentHash,
	}

	res := MintResult{TokenID: tokenID, TxRef: l.headRef}
	l.byIdem[idemKey] = res
	return res, nil
}

// Revoke sets the revocation bit. The transition is one-way; revoking an
// already revoked credential is a no-op, and no unrevoke operation exists.
func (l *InMemoryLedger) Revoke(_ context.Context, tokenID id.TokenID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cred, ok := l.entries[tokenID]
	if !ok {
		return ErrNotFound
	}
	if !cred.Revoked {
		cred.Revoked = true
		l.headRef = l.chainRef("revoke", tokenID)
	}
	return nil
}

// Get returns a copy of the credential or ErrNotFound.
func (l *InMemoryLedger) Get(_ context.Context, tokenID id.TokenID) (Credential, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cred, ok := l.entries[tokenID]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return *cred, nil
}

// ListByStudent returns all credentials held by a student, oldest mint first.
func (l *InMemoryLedger) ListByStudent(_ context.Context, student id.Identity) ([]Credential, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Credential
	for tokenID := id.TokenID(1); tokenID < l.nextID; tokenID++ {
		if cred, ok := l.entries[tokenID]; ok && cred.Student == student {
			out = append(out, *cred)
		}
	}
	return out, nil
}

// HeadRef exposes the current chain head for integrity checks.
func (l *InMemoryLedger) HeadRef() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headRef
}

// chainRef links the new transaction to the previous head. Callers must hold mu.
func (l *InMemoryLedger) chainRef(op string, tokenID id.TokenID) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", l.headRef, op, tokenID))
	return hex.EncodeToString(sum[:])
}
