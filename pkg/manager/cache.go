package manager

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/cellgraph/cellgraph/pkg/ids"
)

// cacheShard is one lock-striped bucket of a cacheTable.
type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]ids.TaskID
}

// cacheTable is a sharded map from a dedup key (spec §4.5: (function,
// inputs), (trait, method, inputs)) to the task instance it resolves to.
// Sharding bounds lock contention to keys that hash into the same shard
// instead of a single table-wide lock.
type cacheTable struct {
	shards []*cacheShard
}

func newCacheTable(shardCount int) *cacheTable {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*cacheShard, shardCount)
	for i := range shards {
		shards[i] = &cacheShard{entries: make(map[string]ids.TaskID)}
	}
	return &cacheTable{shards: shards}
}

func (c *cacheTable) shardFor(key string) *cacheShard {
	h := xxhash.Sum64String(key)
	return c.shards[h%uint64(len(c.shards))]
}

// getOrInsert implements the two-phase lookup from spec §4.5: an
// optimistic read under the shard's read lock, and on miss a key-locked
// alter that either hands back an entry inserted by a racing caller or
// calls create to build a new one. create runs only while holding the
// shard's exclusive lock, so two callers racing on the same key can never
// construct two distinct tasks for it.
func (c *cacheTable) getOrInsert(key string, create func() ids.TaskID) (id ids.TaskID, inserted bool) {
	shard := c.shardFor(key)

	shard.mu.RLock()
	if id, ok := shard.entries[key]; ok {
		shard.mu.RUnlock()
		return id, false
	}
	shard.mu.RUnlock()

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if id, ok := shard.entries[key]; ok {
		return id, false
	}
	id = create()
	shard.entries[key] = id
	return id, true
}

// remove detaches key from the table, but only if it still points at id —
// a concurrent getOrInsert may have already replaced it with a fresh task
// by the time a deactivation reaches this call.
func (c *cacheTable) remove(key string, id ids.TaskID) {
	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if existing, ok := shard.entries[key]; ok && existing == id {
		delete(shard.entries, key)
	}
}

func (c *cacheTable) size() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}
