package data

import (
	"container/list"
	"sync"
)

// DefaultSelectorCacheSize is the number of argument lists remembered per
// selector.
const DefaultSelectorCacheSize = 16

// dependency records the version of a store a selector result was computed
// from.
type dependency struct {
	store   *store
	version uint64
}

func (d dependency) fresh() bool {
	return d.store.currentVersion() == d.version
}

// dependencyTracker collects the store versions read while computing a
// selector, including those read transitively through other selectors.
type dependencyTracker struct {
	deps []dependency
}

// add records s at version. When a store is seen twice the first version
// wins, so a store that changed mid-computation leaves a stale entry.
func (t *dependencyTracker) add(s *store, version uint64) {
	if t == nil {
		return
	}
	for _, d := range t.deps {
		if d.store == s {
			return
		}
	}
	t.deps = append(t.deps, dependency{store: s, version: version})
}

func (t *dependencyTracker) addAll(deps []dependency) {
	if t == nil {
		return
	}
	for _, d := range deps {
		t.add(d.store, d.version)
	}
}

// memoEntry is one cached selector result.
type memoEntry struct {
	args  []any
	deps  []dependency
	value any
}

func (e *memoEntry) fresh() bool {
	for _, d := range e.deps {
		if !d.fresh() {
			return false
		}
	}
	return true
}

// CacheStats reports a selector cache's counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// selectorCache is an LRU of selector results keyed by argument identity.
type selectorCache struct {
	mu      sync.Mutex
	size    int
	entries *list.List

	hits      uint64
	misses    uint64
	evictions uint64
}

func newSelectorCache(size int) *selectorCache {
	return &selectorCache{size: size, entries: list.New()}
}

// get returns a fresh entry for args. Stale entries found on the way are
// dropped.
func (c *selectorCache) get(args []any) (*memoEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.entries.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*memoEntry)
		if !e.fresh() {
			c.entries.Remove(el)
			el = next
			continue
		}
		if argsIdentical(e.args, args) {
			c.entries.MoveToFront(el)
			c.hits++
			return e, true
		}
		el = next
	}
	c.misses++
	return nil, false
}

// put stores e as the most recently used entry.
func (c *selectorCache) put(e *memoEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.entries.Front(); el != nil; el = el.Next() {
		if argsIdentical(el.Value.(*memoEntry).args, e.args) {
			c.entries.Remove(el)
			break
		}
	}
	c.entries.PushFront(e)
	for c.entries.Len() > c.size {
		c.entries.Remove(c.entries.Back())
		c.evictions++
	}
}

func (c *selectorCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Init()
}

func (c *selectorCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.entries.Len(),
	}
}
