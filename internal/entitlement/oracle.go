// Package entitlement defines the paid-access oracle port. The core never
// caches an answer beyond a single gateway decision; entitlements are someone
// else's billing problem and may flip at any time.
package entitlement

import (
	"context"
	"time"

	id "attest/pkg/domain"
)

// Scope names a paid capability.
type Scope string

const (
	// ScopeVerifier covers unmetered credential verification (employers).
	ScopeVerifier Scope = "verifier"
	// ScopeIssuer covers institutional issuance features.
	ScopeIssuer Scope = "issuer"
)

// Entitlement is a single oracle answer, valid only for the current decision.
type Entitlement struct {
	Active    bool
	ExpiresAt *time.Time
}

// Oracle answers whether an identity currently holds paid access to a capability.
type Oracle interface {
	Check(ctx context.Context, identity id.Identity, scope Scope) (Entitlement, error)
}
