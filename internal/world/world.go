// Package world is a small in-memory entity store: registered types,
// entities holding component values, a parent/child hierarchy and an asset
// store.
//
// A World is owned by a single goroutine (the simulation tick) and is not
// safe for concurrent use.
package world

import (
	"fmt"
	"sort"
)

// Entity identifies an entity. Zero is never allocated.
type Entity uint64

type entityRecord struct {
	mask       Mask
	components map[ComponentID]any
}

// World stores entities, components and assets.
type World struct {
	types  []*TypeInfo
	byPath map[string]ComponentID

	entities map[Entity]*entityRecord
	next     Entity

	assets    map[ComponentID]map[uint64]any
	nextAsset uint64

	tick uint64

	parentID   ComponentID
	childrenID ComponentID
	handleID   ComponentID
}

// New creates an empty world with the built-in hierarchy components and
// the asset handle type registered.
func New() *World {
	w := &World{
		byPath:   make(map[string]ComponentID),
		entities: make(map[Entity]*entityRecord),
		assets:   make(map[ComponentID]map[uint64]any),
	}
	w.parentID = RegisterComponent[Parent](w, ParentPath, WithoutDefault())
	w.childrenID = RegisterComponent[Children](w, ChildrenPath)
	w.handleID = Register[Handle](w, KindValue, HandlePath)
	return w
}

// ChangeTick increases on every mutation.
func (w *World) ChangeTick() uint64 { return w.tick }

func (w *World) touch() { w.tick++ }

// Len returns the number of live entities.
func (w *World) Len() int { return len(w.entities) }

// Spawn creates an empty entity.
func (w *World) Spawn() Entity {
	w.next++
	e := w.next
	w.entities[e] = &entityRecord{components: make(map[ComponentID]any)}
	w.touch()
	return e
}

// Contains reports whether e is alive.
func (w *World) Contains(e Entity) bool {
	_, ok := w.entities[e]
	return ok
}

// Entities returns every live entity in ascending order.
func (w *World) Entities() []Entity {
	out := make([]Entity, 0, len(w.entities))
	for e := range w.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Insert sets component id on e, replacing any previous value.
func (w *World) Insert(e Entity, id ComponentID, v any) error {
	rec, ok := w.entities[e]
	if !ok {
		return fmt.Errorf("insert: %w", &NoEntityError{Entity: e})
	}
	info, ok := w.Type(id)
	if !ok || info.Kind != KindComponent {
		return fmt.Errorf("insert: %d is not a component type", id)
	}
	if !info.Accepts(v) {
		return fmt.Errorf("insert %s: value of type %T does not match %s", info.Path, v, info.Type)
	}
	switch id {
	case w.parentID:
		return w.SetParent(e, v.(Parent).Entity)
	case w.childrenID:
		for _, c := range w.children(e) {
			w.detach(c)
		}
		for _, c := range v.(Children) {
			if err := w.SetParent(c, e); err != nil {
				return err
			}
		}
		return nil
	}
	rec.mask.Set(id)
	rec.components[id] = v
	w.touch()
	return nil
}

// Remove deletes component id from e. Removing an absent component is a
// no-op.
func (w *World) Remove(e Entity, id ComponentID) error {
	rec, ok := w.entities[e]
	if !ok {
		return fmt.Errorf("remove: %w", &NoEntityError{Entity: e})
	}
	if !rec.mask.Has(id) {
		return nil
	}
	switch id {
	case w.parentID:
		w.detach(e)
		return nil
	case w.childrenID:
		for _, c := range w.children(e) {
			w.detach(c)
		}
		return nil
	}
	rec.mask.Clear(id)
	delete(rec.components, id)
	w.touch()
	return nil
}

// Get returns component id of e.
func (w *World) Get(e Entity, id ComponentID) (any, bool) {
	rec, ok := w.entities[e]
	if !ok || !rec.mask.Has(id) {
		return nil, false
	}
	return rec.components[id], true
}

// Has reports whether e has component id.
func (w *World) Has(e Entity, id ComponentID) bool {
	rec, ok := w.entities[e]
	return ok && rec.mask.Has(id)
}

// ComponentIDs returns the ids of every component on e, ascending.
func (w *World) ComponentIDs(e Entity) []ComponentID {
	rec, ok := w.entities[e]
	if !ok {
		return nil
	}
	return rec.mask.IDs()
}

// Despawn removes e and all of its descendants.
func (w *World) Despawn(e Entity) error {
	if !w.Contains(e) {
		return fmt.Errorf("despawn: %w", &NoEntityError{Entity: e})
	}
	w.detach(e)
	w.despawnTree(e)
	return nil
}

func (w *World) despawnTree(e Entity) {
	for _, c := range w.children(e) {
		w.despawnTree(c)
	}
	delete(w.entities, e)
	w.touch()
}

// NoEntityError reports an operation on an entity that does not exist.
type NoEntityError struct {
	Entity Entity
}

func (e *NoEntityError) Error() string {
	return fmt.Sprintf("entity %d does not exist", e.Entity)
}
