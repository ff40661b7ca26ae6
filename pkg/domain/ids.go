// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "attest/pkg/domain-errors"
)

// Identity is a ledger address handle for a student, institution, or verifier.
// The ledger's address grammar is "0x" followed by 40 hex characters; identities
// are normalized to lowercase so map keys and quota counters never split on case.
type Identity string

// TokenID is the ledger-assigned credential identifier. The ledger assigns
// these sequentially starting at 1; zero means "no token".
type TokenID uint64

// RecordID is the index-local identifier for a mirrored credential record.
// It is distinct from TokenID and stable once assigned.
type RecordID uuid.UUID

// ContentHash references a document in the content-addressed store,
// in the form "sha256:<hex>".
type ContentHash string

var identityPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity cannot be empty")
	}
	if !identityPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity must match the ledger address grammar (0x + 40 hex)")
	}
	return Identity(strings.ToLower(s)), nil
}

func ParseTokenID(s string) (TokenID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "token ID cannot be empty")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid token ID format")
	}
	return TokenID(n), nil
}

func ParseRecordID(s string) (RecordID, error) {
	if s == "" {
		return RecordID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "record ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return RecordID(uuid.Nil), dErrors.New(dErrors.CodeInvalidInput, "invalid record ID format")
	}
	return RecordID(id), nil
}

// NewRecordID mints a fresh index-local record identifier.
func NewRecordID() RecordID {
	return RecordID(uuid.New())
}

// String methods - for logging and debugging.

func (i Identity) String() string    { return string(i) }
func (t TokenID) String() string     { return strconv.FormatUint(uint64(t), 10) }
func (r RecordID) String() string    { return uuid.UUID(r).String() }
func (h ContentHash) String() string { return string(h) }

// IsNil checks - used for service-layer validation.

func (i Identity) IsNil() bool    { return i == "" }
func (t TokenID) IsNil() bool     { return t == 0 }
func (r RecordID) IsNil() bool    { return uuid.UUID(r) == uuid.Nil }
func (h ContentHash) IsNil() bool { return h == "" }

// MarshalText lets RecordID round-trip through JSON as its canonical string.
func (r RecordID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses the canonical string form.
func (r *RecordID) UnmarshalText(text []byte) error {
	parsed, err := ParseRecordID(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
