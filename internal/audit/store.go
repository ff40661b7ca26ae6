package audit

import (
	"context"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

var (
	// ErrInvalidEvent rejects appends that would corrupt the trail.
	ErrInvalidEvent = dErrors.New(dErrors.CodeInvalidInput, "invalid audit event")
)

// Store is the durable, append-only event log. No update or delete exists by
// design; Append must not fail for valid input short of storage exhaustion,
// which is fatal and surfaced up.
type Store interface {
	// Append persists the event and assigns its per-credential Seq.
	Append(ctx context.Context, event Event) error
	// ListByCredential returns up to limit events for a credential with
	// Seq > afterSeq, ordered oldest-first. Paging on Seq makes history
	// iteration restartable.
	ListByCredential(ctx context.Context, ref id.TokenID, afterSeq uint64, limit int) ([]Event, error)
}
