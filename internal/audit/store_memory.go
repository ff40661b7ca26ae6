package audit

import (
	"context"
	"sync"

	id "attest/pkg/domain"
)

// InMemoryStore keeps per-credential event sequences in memory.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.TokenID][]Event
	seq    map[id.TokenID]uint64
}

// NewInMemoryStore constructs an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events: make(map[id.TokenID][]Event),
		seq:    make(map[id.TokenID]uint64),
	}
}

// Append persists the event and assigns the next per-credential sequence number.
func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	if event.CredentialRef.IsNil() || !event.Action.IsValid() {
		return ErrInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq[event.CredentialRef]++
	event.Seq = s.seq[event.CredentialRef]
	s.events[event.CredentialRef] = append(s.events[event.CredentialRef], event)
	return nil
}

// ListByCredential returns up to limit events with Seq > afterSeq, oldest first.
// Events are stored in append order, which is Seq order by construction.
func (s *InMemoryStore) ListByCredential(_ context.Context, ref id.TokenID, afterSeq uint64, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, event := range s.events[ref] {
		if event.Seq <= afterSeq {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
