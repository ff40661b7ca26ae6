// Package content defines the content-addressed document store port.
// Documents are opaque blobs; the core only cares about stable hashes.
package content

import (
	"context"

	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "document not found")
	// ErrUnavailable marks transient store reachability failures.
	ErrUnavailable = dErrors.New(dErrors.CodeContentStoreUnavailable, "content store unavailable")
)

// Store is the content-addressed blob store collaborator.
type Store interface {
	// Put stores the document and returns its content hash. Storing the same
	// bytes twice returns the same hash.
	Put(ctx context.Context, data []byte) (id.ContentHash, error)
	// URL resolves a content hash to a retrievable location.
	URL(hash id.ContentHash) string
}
