// Package retry provides bounded retry with exponential backoff for
// transient collaborator failures (ledger or content store unavailability).
//
// Only errors classified as transient by domain-errors are retried; terminal
// outcomes such as validation failures or quota exhaustion surface
// immediately. Operations passed to Do must be idempotent - ledger mints are
// made safe by the caller-supplied idempotency key.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	dErrors "attest/pkg/domain-errors"
)

// Policy controls retry attempts and backoff growth.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap applied after exponential growth
}

// DefaultPolicy bounds transient failures to three attempts within roughly a second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    1 * time.Second,
	}
}

// Do invokes fn until it succeeds, returns a non-transient error, or the
// attempt budget is exhausted. The last error is returned unwrapped so the
// caller keeps the original domain code.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.delay(attempt)):
			case <-ctx.Done():
				return dErrors.Wrap(ctx.Err(), dErrors.CodeInternal, "retry aborted")
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !dErrors.IsTransient(err) {
			return err
		}
	}
	return err
}

// delay computes the backoff for the given attempt with full jitter, so a
// burst of retries against a struggling collaborator does not synchronize.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(d)) + 1)
}
