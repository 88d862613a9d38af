// Package names resolves client-supplied type names to registered types.
//
// A name is either a fully qualified path ("demo::physics::Position") or a
// short path ("Position"). Long paths always win. A short path shared by
// two or more types is ambiguous and never resolves.
package names

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/world"
)

// Registry enumerates registered types. *world.World implements it.
type Registry interface {
	Types(kind world.Kind) []*world.TypeInfo
}

type table struct {
	long      map[string]*world.TypeInfo
	short     map[string]*world.TypeInfo
	ambiguous map[string]struct{}
	seen      int
}

func (t *table) knows(name string) bool {
	if _, ok := t.long[name]; ok {
		return true
	}
	if _, ok := t.short[name]; ok {
		return true
	}
	_, ok := t.ambiguous[name]
	return ok
}

// clone copies the maps so the receiver stays immutable once published.
func (t *table) clone() *table {
	out := &table{
		long:      make(map[string]*world.TypeInfo, len(t.long)),
		short:     make(map[string]*world.TypeInfo, len(t.short)),
		ambiguous: make(map[string]struct{}, len(t.ambiguous)),
		seen:      t.seen,
	}
	for k, v := range t.long {
		out.long[k] = v
	}
	for k, v := range t.short {
		out.short[k] = v
	}
	for k := range t.ambiguous {
		out.ambiguous[k] = struct{}{}
	}
	return out
}

func (t *table) add(info *world.TypeInfo) {
	if _, ok := t.long[info.Path]; ok {
		return
	}
	t.long[info.Path] = info
	if _, ok := t.ambiguous[info.ShortPath]; ok {
		return
	}
	if prev, ok := t.short[info.ShortPath]; ok && prev.Path != info.Path {
		delete(t.short, info.ShortPath)
		t.ambiguous[info.ShortPath] = struct{}{}
		return
	}
	t.short[info.ShortPath] = info
}

// Cache maps names to types, one table per kind.
//
// Tables are copy-on-write snapshots: readers load the current snapshot
// without locking; a refresh builds a new snapshot from the previous one
// and publishes it. Entries are only ever added.
type Cache struct {
	mu     sync.Mutex
	tables [3]atomic.Pointer[table]
	scans  atomic.Int64
}

// New returns an empty cache.
func New() *Cache {
	c := &Cache{}
	for i := range c.tables {
		c.tables[i].Store(&table{
			long:      map[string]*world.TypeInfo{},
			short:     map[string]*world.TypeInfo{},
			ambiguous: map[string]struct{}{},
		})
	}
	return c
}

// Scans returns how many registry scans the cache has performed.
func (c *Cache) Scans() int64 {
	return c.scans.Load()
}

// EnsureResolvable makes sure every name in names has been looked for in
// the registry. If any name is unseen, the registry is scanned once and
// every type of that kind is cached, not just the requested ones.
//
// Names that are still unknown after the scan stay unknown; Resolve
// reports them.
func (c *Cache) EnsureResolvable(reg Registry, kind world.Kind, names []string) {
	if c.allKnown(kind, names) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.allKnown(kind, names) {
		return
	}

	types := reg.Types(kind)
	cur := c.tables[kind].Load()
	if len(types) == cur.seen {
		// Nothing new was registered since the last scan.
		return
	}
	next := cur.clone()
	for _, info := range types {
		next.add(info)
	}
	next.seen = len(types)
	c.tables[kind].Store(next)
	c.scans.Add(1)
}

func (c *Cache) allKnown(kind world.Kind, names []string) bool {
	t := c.tables[kind].Load()
	for _, n := range names {
		if !t.knows(n) {
			return false
		}
	}
	return true
}

// Resolve looks a name up in the current snapshot. It does not scan.
func (c *Cache) Resolve(kind world.Kind, name string) (*world.TypeInfo, error) {
	t := c.tables[kind].Load()
	if info, ok := t.long[name]; ok {
		return info, nil
	}
	if info, ok := t.short[name]; ok {
		return info, nil
	}
	if _, ok := t.ambiguous[name]; ok {
		return nil, brp.ErrComponentAmbiguous(name)
	}
	if kind == world.KindAsset {
		return nil, brp.ErrAssetNotFound(name)
	}
	return nil, brp.ErrComponentNotFound(name)
}

// ResolveAll ensures and resolves a batch of names, failing on the first
// name that does not resolve.
func (c *Cache) ResolveAll(reg Registry, kind world.Kind, names []string) ([]*world.TypeInfo, error) {
	c.EnsureResolvable(reg, kind, names)
	out := make([]*world.TypeInfo, len(names))
	for i, n := range names {
		info, err := c.Resolve(kind, n)
		if err != nil {
			return nil, err
		}
		out[i] = info
	}
	return out, nil
}
