package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// InMemoryStore is an in-memory content-addressed store for local use and
// tests. Hashes are sha256 over the document bytes, so identical documents
// dedupe naturally.
type InMemoryStore struct {
	mu      sync.RWMutex
	blobs   map[id.ContentHash][]byte
	baseURL string
}

// NewInMemoryStore constructs an empty store. baseURL prefixes resolved URLs.
func NewInMemoryStore(baseURL string) *InMemoryStore {
	if baseURL == "" {
		baseURL = "memory://content"
	}
	return &InMemoryStore{
		blobs:   make(map[id.ContentHash][]byte),
		baseURL: baseURL,
	}
}

// Put stores the document under its sha256 hash.
func (s *InMemoryStore) Put(_ context.Context, data []byte) (id.ContentHash, error) {
	if len(data) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "document cannot be empty")
	}

	sum := sha256.Sum256(data)
	hash := id.ContentHash("sha256:" + hex.EncodeToString(sum[:]))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[hash]; !ok {
		s.blobs[hash] = append([]byte(nil), data...)
	}
	return hash, nil
}

// URL resolves a content hash to a retrievable location.
func (s *InMemoryStore) URL(hash id.ContentHash) string {
	return s.baseURL + "/" + hash.String()
}

// Get retrieves stored bytes; used by tests to assert round-trips.
func (s *InMemoryStore) Get(_ context.Context, hash id.ContentHash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
