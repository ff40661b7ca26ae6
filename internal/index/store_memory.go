package index

import (
	"context"
	"sort"
	"sync"
	"time"

	id "attest/pkg/domain"
)

// InMemoryStore is an in-memory implementation of Store for tests or local use.
// It is safe for concurrent access but does not persist across process restarts.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.TokenID]Record
	dirty   map[id.TokenID]struct{}
}

// NewInMemoryStore constructs an empty in-memory index store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[id.TokenID]Record),
		dirty:   make(map[id.TokenID]struct{}),
	}
}

// Upsert writes ledger truth, preserving an existing record's RecordID.
func (s *InMemoryStore) Upsert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.TokenID]; ok {
		rec.RecordID = existing.RecordID
	}
	rec.IndexedAt = time.Now().UTC()
	s.records[rec.TokenID] = rec
	return nil
}

// FindByToken retrieves a record by token or returns ErrNotFound.
func (s *InMemoryStore) FindByToken(_ context.Context, tokenID id.TokenID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[tokenID]; ok {
		return rec, nil
	}
	return Record{}, ErrNotFound
}

// ListByStudent returns the student's records ordered by issue date.
func (s *InMemoryStore) ListByStudent(_ context.Context, student id.Identity) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.Student == student {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueDate.Before(out[j].IssueDate) })
	return out, nil
}

// MarkRevoked flips the mirrored revocation bit.
func (s *InMemoryStore) MarkRevoked(_ context.Context, tokenID id.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tokenID]
	if !ok {
		return ErrNotFound
	}
	rec.Revoked = true
	rec.IndexedAt = time.Now().UTC()
	s.records[tokenID] = rec
	return nil
}

// MarkDirty queues a token for reconciliation.
func (s *InMemoryStore) MarkDirty(_ context.Context, tokenID id.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[tokenID] = struct{}{}
	return nil
}

// ListDirty returns up to limit queued tokens.
func (s *InMemoryStore) ListDirty(_ context.Context, limit int) ([]id.TokenID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]id.TokenID, 0, len(s.dirty))
	for tokenID := range s.dirty {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, tokenID)
	}
	return out, nil
}

// ClearDirty removes a token from the repair queue.
func (s *InMemoryStore) ClearDirty(_ context.Context, tokenID id.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, tokenID)
	return nil
}

// Stats aggregates consistent records; dirty records are excluded until repaired.
func (s *InMemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	for tokenID, rec := range s.records {
		if _, queued := s.dirty[tokenID]; queued {
			continue
		}
		stats.Total++
		if rec.Revoked {
			stats.Revoked++
		}
	}
	return stats, nil
}
