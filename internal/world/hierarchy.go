package world

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

const (
	ParentPath   = "core::hierarchy::Parent"
	ChildrenPath = "core::hierarchy::Children"
)

// Parent points at an entity's parent.
type Parent struct {
	Entity Entity `json:"entity"`
}

// Children lists an entity's children in insertion order.
type Children []Entity

// ErrHierarchyCycle is returned when reparenting would create a cycle.
var ErrHierarchyCycle = errors.New("reparenting would create a cycle")

// ParentID returns the id of the built-in Parent component.
func (w *World) ParentID() ComponentID { return w.parentID }

// ChildrenID returns the id of the built-in Children component.
func (w *World) ChildrenID() ComponentID { return w.childrenID }

// SetParent moves child under parent, detaching it from any previous
// parent.
func (w *World) SetParent(child, parent Entity) error {
	if child == 0 || !w.Contains(child) {
		return fmt.Errorf("set parent: %w", &NoEntityError{Entity: child})
	}
	if err := w.checkParent(child, parent); err != nil {
		return err
	}

	w.detach(child)
	crec := w.entities[child]
	crec.mask.Set(w.parentID)
	crec.components[w.parentID] = Parent{Entity: parent}

	prec := w.entities[parent]
	kids := append(slices.Clone(w.children(parent)), child)
	prec.mask.Set(w.childrenID)
	prec.components[w.childrenID] = Children(kids)
	w.touch()
	return nil
}

func (w *World) parentOf(e Entity) (Entity, bool) {
	v, ok := w.Get(e, w.parentID)
	if !ok {
		return 0, false
	}
	return v.(Parent).Entity, true
}

func (w *World) children(e Entity) Children {
	v, ok := w.Get(e, w.childrenID)
	if !ok {
		return nil
	}
	return v.(Children)
}

// detach removes e from its parent's children, if it has a parent.
func (w *World) detach(e Entity) {
	parent, ok := w.parentOf(e)
	if !ok {
		return
	}
	rec := w.entities[e]
	rec.mask.Clear(w.parentID)
	delete(rec.components, w.parentID)

	if prec, ok := w.entities[parent]; ok {
		kids := slices.DeleteFunc(slices.Clone(w.children(parent)), func(c Entity) bool { return c == e })
		if len(kids) == 0 {
			prec.mask.Clear(w.childrenID)
			delete(prec.components, w.childrenID)
		} else {
			prec.components[w.childrenID] = Children(kids)
		}
	}
	w.touch()
}

// Insertion is one component value of a batch insert.
type Insertion struct {
	ID    ComponentID
	Value any
}

// pending stands for an entity that is about to be spawned.
const pending = Entity(math.MaxUint64)

// CheckBatch reports the error InsertBatch would return for e without
// changing anything. e may be zero for an entity that is about to be
// spawned. Each hierarchy value is checked against the hierarchy left by
// the values before it.
func (w *World) CheckBatch(e Entity, batch []Insertion) error {
	self := e
	if e == 0 {
		self = pending
	} else if !w.Contains(e) {
		return fmt.Errorf("check batch: %w", &NoEntityError{Entity: e})
	}
	h := overlay{w: w, self: self, parent: make(map[Entity]Entity)}
	for _, in := range batch {
		switch in.ID {
		case w.parentID:
			p, ok := in.Value.(Parent)
			if !ok {
				return fmt.Errorf("check batch: value of type %T is not a Parent", in.Value)
			}
			if err := h.setParent(self, p.Entity); err != nil {
				return err
			}
		case w.childrenID:
			kids, ok := in.Value.(Children)
			if !ok {
				return fmt.Errorf("check batch: value of type %T is not Children", in.Value)
			}
			for _, c := range h.children(self) {
				h.parent[c] = 0
			}
			for _, c := range kids {
				if err := h.setParent(c, self); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// InsertBatch inserts every value of batch into e in order. The batch is
// checked first, so a failing batch writes nothing.
func (w *World) InsertBatch(e Entity, batch []Insertion) error {
	if err := w.CheckBatch(e, batch); err != nil {
		return err
	}
	for _, in := range batch {
		if err := w.Insert(e, in.ID, in.Value); err != nil {
			return err
		}
	}
	return nil
}

// Discard removes e alone. Its children are detached and stay alive.
func (w *World) Discard(e Entity) error {
	if !w.Contains(e) {
		return fmt.Errorf("discard: %w", &NoEntityError{Entity: e})
	}
	for _, c := range w.children(e) {
		w.detach(c)
	}
	w.detach(e)
	delete(w.entities, e)
	w.touch()
	return nil
}

// overlay is a hierarchy with pending parent changes applied on top of
// the world. A zero parent means detached.
type overlay struct {
	w      *World
	self   Entity
	parent map[Entity]Entity
}

func (h overlay) parentOf(e Entity) (Entity, bool) {
	if p, ok := h.parent[e]; ok {
		return p, p != 0
	}
	return h.w.parentOf(e)
}

func (h overlay) children(e Entity) []Entity {
	var out []Entity
	for _, c := range h.w.children(e) {
		if p, ok := h.parentOf(c); ok && p == e {
			out = append(out, c)
		}
	}
	for c, p := range h.parent {
		if p == e && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func (h overlay) contains(e Entity) bool {
	return e == h.self || h.w.Contains(e)
}

func (h overlay) setParent(child, parent Entity) error {
	if !h.contains(child) {
		return fmt.Errorf("check parent: %w", &NoEntityError{Entity: child})
	}
	if !h.contains(parent) {
		return fmt.Errorf("check parent: %w", &NoEntityError{Entity: parent})
	}
	for cur, ok := parent, true; ok; cur, ok = h.parentOf(cur) {
		if cur == child {
			return ErrHierarchyCycle
		}
	}
	h.parent[child] = parent
	return nil
}

func (w *World) checkParent(child, parent Entity) error {
	if child != 0 && !w.Contains(child) {
		return fmt.Errorf("check parent: %w", &NoEntityError{Entity: child})
	}
	if !w.Contains(parent) {
		return fmt.Errorf("check parent: %w", &NoEntityError{Entity: parent})
	}
	if child == 0 {
		return nil
	}
	for cur, ok := parent, true; ok; cur, ok = w.parentOf(cur) {
		if cur == child {
			return ErrHierarchyCycle
		}
	}
	return nil
}
