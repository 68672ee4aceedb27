// Package preprocess holds the per-model preprocessing cache: the
// one-shot, expensive derivation of a prover key and verifier key for a
// model's arithmetization, kept in memory for the life of the process.
// Unlike the receipt hot cache, this cache is insert-only — there is no
// eviction, because a model's keys remain valid for as long as the model
// is registered.
package preprocess

import (
	"sync"

	"github.com/zkreceipt/receipt-service/internal/metrics"
)

// Entry holds the preprocessing result for one model. ProverKey and
// VerifierKey are opaque to this package; their concrete shape is defined
// by whichever prove.System produced them.
type Entry struct {
	ProverKey   any
	VerifierKey any
}

// Cache is a concurrency-safe, insert-only map of model_id -> Entry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	hits    *metrics.Counter
	misses  *metrics.Counter
	inserts *metrics.Counter
}

// NewCache returns an empty preprocessing cache instrumented on the
// default metrics registry.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]Entry),
		hits:    metrics.DefaultRegistry.Counter("preprocess_cache_hits_total"),
		misses:  metrics.DefaultRegistry.Counter("preprocess_cache_misses_total"),
		inserts: metrics.DefaultRegistry.Counter("preprocess_cache_inserts_total"),
	}
}

// Insert records the preprocessing result for modelID. Calling Insert
// again for an already-present modelID replaces the entry; this package
// never evicts on its own, so repeated insertion (e.g. re-running
// preprocessing after a manual model update) is the only path that
// changes an existing entry.
func (c *Cache) Insert(modelID string, e Entry) {
	c.mu.Lock()
	c.entries[modelID] = e
	c.mu.Unlock()
	c.inserts.Inc()
}

// Lookup returns the cached entry for modelID and whether it was present.
func (c *Cache) Lookup(modelID string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[modelID]
	c.mu.RUnlock()
	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return e, ok
}

// Contains reports whether modelID has a cached entry, without affecting
// hit/miss counters. Used by PopulateAll to skip models that are already
// cached, which is a precondition check rather than a cache access in its
// own right; the prove pipeline's availability check goes through Lookup.
func (c *Cache) Contains(modelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[modelID]
	return ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
