// Package index holds the off-chain mirror of the credential ledger. It is
// optimized for queries and aggregation and is never authoritative: on any
// disagreement the ledger wins and the record is queued for repair.
package index

import (
	"time"

	"attest/internal/ledger"
	id "attest/pkg/domain"
)

// Record mirrors a ledger credential plus index-local bookkeeping.
// RecordID is stable once assigned and survives re-indexing; IndexedAt tracks
// the last time the record was written from ledger truth.
type Record struct {
	RecordID    id.RecordID
	TokenID     id.TokenID
	Student     id.Identity
	Institution id.Identity
	DegreeLabel string
	IssueDate   time.Time
	ContentHash id.ContentHash
	Revoked     bool
	IndexedAt   time.Time
}

// RecordFromCredential builds a fresh index record from ledger truth.
func RecordFromCredential(cred ledger.Credential) Record {
	return Record{
		RecordID:    id.NewRecordID(),
		TokenID:     cred.TokenID,
		Student:     cred.Student,
		Institution: cred.Institution,
		DegreeLabel: cred.DegreeLabel,
		IssueDate:   cred.IssueDate,
		ContentHash: cred.ContentHash,
		Revoked:     cred.Revoked,
		IndexedAt:   time.Now().UTC(),
	}
}

// Stats aggregates consistent records only; records queued for repair are
// excluded until reconciled.
type Stats struct {
	Total   int
	Revoked int
}
