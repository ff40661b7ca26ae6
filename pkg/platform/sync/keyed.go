package sync

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex provides fine-grained locking keyed by an arbitrary string.
// Instead of a single global lock, operations are distributed across N shards
// based on a hash of the key, reducing contention when many identities are
// active concurrently. Two keys may share a shard; that only costs throughput,
// never correctness.
type KeyedMutex struct {
	shards [64]sync.Mutex
}

// NewKeyedMutex creates a KeyedMutex with 64 shards.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the lock for the given key's shard.
func (m *KeyedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
func (m *KeyedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// shardFor maps a key to a shard index. Empty keys map to shard 0.
func (m *KeyedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
