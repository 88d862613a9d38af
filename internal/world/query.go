package world

import "sort"

// QueryBuilder describes a dynamic query over component ids.
type QueryBuilder struct {
	w        *World
	required Mask
	access   Mask
	with     Mask
	without  Mask
}

// Query starts a dynamic query.
func (w *World) Query() *QueryBuilder {
	return &QueryBuilder{w: w}
}

// Ref requires id and grants read access to it.
func (b *QueryBuilder) Ref(id ComponentID) *QueryBuilder {
	b.required.Set(id)
	b.access.Set(id)
	return b
}

// Optional grants read access to id without requiring it.
func (b *QueryBuilder) Optional(id ComponentID) *QueryBuilder {
	b.access.Set(id)
	return b
}

// With requires id without granting access.
func (b *QueryBuilder) With(id ComponentID) *QueryBuilder {
	b.with.Set(id)
	return b
}

// Without excludes entities that have id.
func (b *QueryBuilder) Without(id ComponentID) *QueryBuilder {
	b.without.Set(id)
	return b
}

// Build freezes the query.
func (b *QueryBuilder) Build() *Query {
	required := b.required.Clone()
	for _, id := range b.with.IDs() {
		required.Set(id)
	}
	return &Query{
		w:        b.w,
		required: required,
		access:   b.access.Clone(),
		without:  b.without.Clone(),
	}
}

// Query is a built dynamic query.
type Query struct {
	w        *World
	required Mask
	access   Mask
	without  Mask
}

func (q *Query) matches(rec *entityRecord) bool {
	return rec.mask.ContainsAll(q.required) && !rec.mask.ContainsAny(q.without)
}

// Iter returns every matching entity in ascending id order.
func (q *Query) Iter() []EntityRef {
	var out []EntityRef
	for e, rec := range q.w.entities {
		if q.matches(rec) {
			out = append(out, EntityRef{id: e, rec: rec, access: q.access})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Get returns e if it exists and matches.
func (q *Query) Get(e Entity) (EntityRef, bool) {
	rec, ok := q.w.entities[e]
	if !ok || !q.matches(rec) {
		return EntityRef{}, false
	}
	return EntityRef{id: e, rec: rec, access: q.access}, true
}

// EntityRef is a read view of one entity. Values can only be read for ids
// the view has access to; presence can always be checked.
type EntityRef struct {
	id     Entity
	rec    *entityRecord
	access Mask
	full   bool
}

// Entity returns a read view of e with access to every component.
func (w *World) Entity(e Entity) (EntityRef, bool) {
	rec, ok := w.entities[e]
	if !ok {
		return EntityRef{}, false
	}
	return EntityRef{id: e, rec: rec, full: true}, true
}

// ID returns the entity id.
func (r EntityRef) ID() Entity { return r.id }

// Contains reports whether the entity has component id.
func (r EntityRef) Contains(id ComponentID) bool {
	return r.rec.mask.Has(id)
}

// CanRead reports whether the view grants access to id.
func (r EntityRef) CanRead(id ComponentID) bool {
	return r.full || r.access.Has(id)
}

// Get returns the value of id. ok is false when the component is absent
// or the view has no access to it.
func (r EntityRef) Get(id ComponentID) (v any, ok bool) {
	if !r.CanRead(id) || !r.rec.mask.Has(id) {
		return nil, false
	}
	return r.rec.components[id], true
}

// ComponentIDs returns every component id present on the entity.
func (r EntityRef) ComponentIDs() []ComponentID {
	return r.rec.mask.IDs()
}
