// Package cache memoizes joined entry groups across passes, keyed by type
// identity.
//
// A cached non-empty group is reused even when a fresh join would produce a
// different result for that type; only absent or empty entries are replaced.
// Entries removed from the catalog for an already-cached type therefore stay
// until the cache is cleared by a full rebuild.
package cache

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jward/blueprintgen/internal/join"
	"github.com/jward/blueprintgen/internal/snapshot"
)

// Backend persists the cache between build sessions.
type Backend interface {
	LoadGroups(ctx context.Context) ([]*join.Group, int64, error)
	SaveGroups(ctx context.Context, groups []*join.Group, invalidations int64) error
}

// ApplyStats reports what Apply did with each produced group.
type ApplyStats struct {
	Reused   int // a non-empty cached group was kept
	Added    int // no cached entry existed
	Replaced int // an empty cached entry was replaced
}

// Cache is the entry cache for one build session. It is safe for concurrent
// use: reads share a lock, writes are exclusive, and concurrent misses on the
// same key run one computation.
type Cache struct {
	backend Backend

	mu            sync.RWMutex
	groups        map[snapshot.TypeID]*join.Group
	invalidations int64

	flight singleflight.Group
}

// New returns an empty cache. backend may be nil for a memory-only cache.
func New(backend Backend) *Cache {
	return &Cache{
		backend: backend,
		groups:  make(map[snapshot.TypeID]*join.Group),
	}
}

// Get returns the cached group for id.
func (c *Cache) Get(id snapshot.TypeID) (*join.Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.groups[id]
	return g, ok
}

// Put stores g unconditionally.
func (c *Cache) Put(g *join.Group) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[g.Type] = g
}

// Invalidate drops the entry for id and counts an invalidation if one existed.
func (c *Cache) Invalidate(id snapshot.TypeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.groups[id]; ok {
		delete(c.groups, id)
		c.invalidations++
	}
}

// Clear drops every entry. The invalidation counter is kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = make(map[snapshot.TypeID]*join.Group)
}

// Len returns the number of cached entries, empty ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.groups)
}

// Invalidations returns how many times an existing entry was replaced or
// explicitly invalidated. Diagnostics only.
func (c *Cache) Invalidations() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.invalidations
}

// storeLocked applies the reuse policy for one freshly computed group and
// returns the group that is cached afterwards. Callers hold c.mu for writing.
func (c *Cache) storeLocked(g *join.Group, st *ApplyStats) *join.Group {
	existing, ok := c.groups[g.Type]
	switch {
	case ok && !existing.Empty():
		st.Reused++
		return existing
	case ok:
		st.Replaced++
		c.invalidations++
	default:
		st.Added++
	}
	c.groups[g.Type] = g
	return g
}

// Apply merges the groups produced by one pass into the cache.
func (c *Cache) Apply(groups []*join.Group) ApplyStats {
	var st ApplyStats
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range groups {
		if g == nil {
			continue
		}
		c.storeLocked(g, &st)
	}
	return st
}

// GetOrCompute returns the cached group for id, running compute on a miss
// (absent or empty entry). Concurrent callers for the same id share one
// computation, and the result is stored with the same policy as Apply.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	id snapshot.TypeID,
	compute func(context.Context) (*join.Group, error),
) (*join.Group, error) {
	if g, ok := c.Get(id); ok && !g.Empty() {
		return g, nil
	}
	v, err, _ := c.flight.Do(string(id), func() (any, error) {
		g, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if g == nil {
			return (*join.Group)(nil), nil
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		var st ApplyStats
		return c.storeLocked(g, &st), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*join.Group), nil
}

// Groups returns the non-empty cached groups sorted by type identity.
func (c *Cache) Groups() []*join.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*join.Group, 0, len(c.groups))
	for _, g := range c.groups {
		if !g.Empty() {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (c *Cache) all() []*join.Group {
	out := make([]*join.Group, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Load replaces the in-memory state with what the backend holds.
func (c *Cache) Load(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	groups, invalidations, err := c.backend.LoadGroups(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = make(map[snapshot.TypeID]*join.Group, len(groups))
	for _, g := range groups {
		c.groups[g.Type] = g
	}
	c.invalidations = invalidations
	return nil
}

// Flush writes the whole cache to the backend.
func (c *Cache) Flush(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	c.mu.RLock()
	groups := c.all()
	invalidations := c.invalidations
	c.mu.RUnlock()
	return c.backend.SaveGroups(ctx, groups, invalidations)
}
