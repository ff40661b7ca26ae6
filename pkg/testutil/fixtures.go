package testutil

import (
	"time"

	"attest/internal/ledger"
	id "attest/pkg/domain"
)

// TestIDs provides convenient pre-validated identities for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	Student1     id.Identity
	Student2     id.Identity
	Institution1 id.Identity
	Institution2 id.Identity
	Employer1    id.Identity
	Employer2    id.Identity
}{
	Student1:     id.Identity("0x1111111111111111111111111111111111111111"),
	Student2:     id.Identity("0x2222222222222222222222222222222222222222"),
	Institution1: id.Identity("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
	Institution2: id.Identity("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
	Employer1:    id.Identity("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee1"),
	Employer2:    id.Identity("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee2"),
}

// CredentialBuilder provides a fluent interface for building test credentials.
type CredentialBuilder struct {
	cred ledger.Credential
}

// NewCredentialBuilder creates a CredentialBuilder with sensible defaults.
func NewCredentialBuilder() *CredentialBuilder {
	return &CredentialBuilder{
		cred: ledger.Credential{
			TokenID:     1,
			Student:     TestIDs.Student1,
			Institution: TestIDs.Institution1,
			DegreeLabel: "BSc (2024)",
			IssueDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			ContentHash: "sha256:0000000000000000000000000000000000000000000000000000000000000001",
		},
	}
}

func (b *CredentialBuilder) WithTokenID(tokenID id.TokenID) *CredentialBuilder {
	b.cred.TokenID = tokenID
	return b
}

func (b *CredentialBuilder) WithStudent(student id.Identity) *CredentialBuilder {
	b.cred.Student = student
	return b
}

func (b *CredentialBuilder) WithInstitution(institution id.Identity) *CredentialBuilder {
	b.cred.Institution = institution
	return b
}

func (b *CredentialBuilder) WithDegree(label string) *CredentialBuilder {
	b.cred.DegreeLabel = label
	return b
}

func (b *CredentialBuilder) Revoked() *CredentialBuilder {
	b.cred.Revoked = true
	return b
}

func (b *CredentialBuilder) Build() ledger.Credential {
	return b.cred
}
