package quota

import (
	"context"
	"sync"
	"time"

	id "attest/pkg/domain"
	psync "attest/pkg/platform/sync"
)

type recordKey struct {
	identity id.Identity
	scope    string
}

// InMemoryStore keeps quota counters in memory. The per-identity keyed mutex
// makes the check-and-increment atomic without serializing unrelated
// identities behind one lock.
type InMemoryStore struct {
	mu      sync.RWMutex
	keyed   *psync.KeyedMutex
	records map[recordKey]Record
}

// NewInMemoryStore constructs an empty in-memory quota store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		keyed:   psync.NewKeyedMutex(),
		records: make(map[recordKey]Record),
	}
}

// Consume atomically increments the counter when under the limit.
func (s *InMemoryStore) Consume(_ context.Context, identity id.Identity, scope string, limit int) (Record, bool, error) {
	lockKey := identity.String() + "|" + scope
	s.keyed.Lock(lockKey)
	defer s.keyed.Unlock(lockKey)

	key := recordKey{identity, scope}

	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		rec = Record{Identity: identity, Scope: scope, Limit: limit}
	}
	rec.Limit = limit

	if rec.Consumed >= limit {
		return rec, false, nil
	}
	rec.Consumed++
	rec.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()
	return rec, true, nil
}

// Get returns the current record without consuming.
func (s *InMemoryStore) Get(_ context.Context, identity id.Identity, scope string, limit int) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[recordKey{identity, scope}]; ok {
		rec.Limit = limit
		return rec, nil
	}
	return Record{Identity: identity, Scope: scope, Limit: limit}, nil
}
