// Package quota owns the durable, identity-keyed free-verification counter.
//
// The counter lives server-side by design: caller-held counts are not a
// security boundary. Consumption is monotonic - entitlement bypasses the
// check but never resets the count.
package quota

import (
	"context"
	"time"

	id "attest/pkg/domain"
)

// Record is the per-identity quota state for a scope.
type Record struct {
	Identity  id.Identity
	Scope     string
	Consumed  int
	Limit     int
	UpdatedAt time.Time
}

// Remaining reports how many free lookups the identity has left.
func (r Record) Remaining() int {
	if r.Consumed >= r.Limit {
		return 0
	}
	return r.Limit - r.Consumed
}

// Store persists verification quotas. Consume must be a single atomic
// check-and-increment per identity: concurrent callers must never both
// observe consumed < limit and both proceed past it.
type Store interface {
	// Consume increments the counter when consumed < limit and reports
	// whether the call was allowed. The returned record reflects the state
	// after the decision.
	Consume(ctx context.Context, identity id.Identity, scope string, limit int) (Record, bool, error)
	// Get returns the current record; a never-seen identity yields a zero
	// Consumed record with the given limit.
	Get(ctx context.Context, identity id.Identity, scope string, limit int) (Record, error)
}
