package audit

import (
	"time"

	"github.com/google/uuid"

	id "attest/pkg/domain"
)

// Action is the audited credential lifecycle step.
type Action string

const (
	ActionIssued  Action = "issued"
	ActionViewed  Action = "viewed"
	ActionShared  Action = "shared"
	ActionRevoked Action = "revoked"
)

// IsValid reports whether the action is one of the audited lifecycle steps.
func (a Action) IsValid() bool {
	switch a {
	case ActionIssued, ActionViewed, ActionShared, ActionRevoked:
		return true
	}
	return false
}

// Event is a single entry in a credential's append-only history. Events are
// never mutated or deleted. Seq is assigned by the store at append time and
// breaks ties between events sharing a timestamp, so ordering is total per
// credential: (Timestamp, Seq).
type Event struct {
	ID            uuid.UUID
	CredentialRef id.TokenID
	Actor         string // identity address, or "public" for anonymous lookups
	Action        Action
	Timestamp     time.Time
	Seq           uint64
}

// ActorPublic is recorded when an anonymous caller (e.g. a share-link
// visitor) triggers an audited action.
const ActorPublic = "public"
