package entitlement

import (
	"context"
	"sync"
	"time"

	id "attest/pkg/domain"
)

type grantKey struct {
	identity id.Identity
	scope    Scope
}

// StaticOracle is an in-memory oracle for local use and tests. Grants can be
// flipped at runtime to simulate subscriptions starting or lapsing.
type StaticOracle struct {
	mu     sync.RWMutex
	grants map[grantKey]*time.Time
}

// NewStaticOracle constructs an oracle with no active grants.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{grants: make(map[grantKey]*time.Time)}
}

// Grant activates an entitlement. A nil expiry means no expiry.
func (o *StaticOracle) Grant(identity id.Identity, scope Scope, expiresAt *time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.grants[grantKey{identity, scope}] = expiresAt
}

// Release removes an entitlement.
func (o *StaticOracle) Release(identity id.Identity, scope Scope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.grants, grantKey{identity, scope})
}

// Check reports whether the identity holds an unexpired grant for the scope.
func (o *StaticOracle) Check(_ context.Context, identity id.Identity, scope Scope) (Entitlement, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	expiresAt, ok := o.grants[grantKey{identity, scope}]
	if !ok {
		return Entitlement{}, nil
	}
	if expiresAt != nil && time.Now().After(*expiresAt) {
		return Entitlement{}, nil
	}
	return Entitlement{Active: true, ExpiresAt: expiresAt}, nil
}
