// Package query executes dynamic entity queries described on the wire and
// evaluates filter predicates against entities.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/codec"
	"github.com/roach88/brp/internal/names"
	"github.com/roach88/brp/internal/value"
	"github.com/roach88/brp/internal/world"
)

// Env is everything a query needs: the world, the name cache, the codec
// and the requesting session's format.
type Env struct {
	World  *world.World
	Names  *names.Cache
	Codec  *codec.Codec
	Format brp.Format
}

type resolved struct {
	name string
	info *world.TypeInfo
}

// plan is a query with every name resolved.
type plan struct {
	wildcard   bool
	components []resolved
	optional   []resolved
	has        []resolved
	query      *world.Query
}

func (env Env) resolve(list []string) ([]resolved, error) {
	infos := make([]resolved, len(list))
	for i, name := range list {
		info, err := env.Names.Resolve(world.KindComponent, name)
		if err != nil {
			return nil, err
		}
		infos[i] = resolved{name: name, info: info}
	}
	return infos, nil
}

func (env Env) build(data brp.QueryData, filter brp.QueryFilter) (*plan, error) {
	p := &plan{wildcard: data.IsWildcard()}
	required := data.Components
	if p.wildcard {
		required = nil
	}
	when := brp.PredicateNames(filter.Predicate())

	all := make([]string, 0, len(required)+len(data.Optional)+len(data.Has)+len(filter.With)+len(filter.Without)+len(when))
	for _, list := range [][]string{required, data.Optional, data.Has, filter.With, filter.Without, when} {
		all = append(all, list...)
	}
	env.Names.EnsureResolvable(env.World, world.KindComponent, all)

	var err error
	if p.components, err = env.resolve(required); err != nil {
		return nil, err
	}
	if p.optional, err = env.resolve(data.Optional); err != nil {
		return nil, err
	}
	if p.has, err = env.resolve(data.Has); err != nil {
		return nil, err
	}
	with, err := env.resolve(filter.With)
	if err != nil {
		return nil, err
	}
	without, err := env.resolve(filter.Without)
	if err != nil {
		return nil, err
	}
	predicate, err := env.resolve(when)
	if err != nil {
		return nil, err
	}

	b := env.World.Query()
	for _, r := range p.components {
		b.Ref(r.info.ID)
	}
	for _, r := range p.optional {
		b.Optional(r.info.ID)
	}
	for _, r := range p.has {
		b.Optional(r.info.ID)
	}
	for _, r := range with {
		b.With(r.info.ID)
	}
	for _, r := range without {
		b.Without(r.info.ID)
	}
	for _, r := range predicate {
		b.Optional(r.info.ID)
	}
	p.query = b.Build()
	return p, nil
}

// Execute runs a query. With entity set, only that entity is considered
// (it yields no result if it does not exist or does not match); otherwise
// every matching entity is, in ascending id order.
//
// Entities failing the filter predicate are skipped. Any other error fails
// the whole query, with one exception: in wildcard mode components that
// cannot be serialized are reported as Unserializable.
func Execute(env Env, data brp.QueryData, filter brp.QueryFilter, entity *world.Entity) ([]brp.QueryResult, error) {
	p, err := env.build(data, filter)
	if err != nil {
		return nil, err
	}

	var candidates []world.EntityRef
	if entity != nil {
		if ref, ok := p.query.Get(*entity); ok {
			candidates = []world.EntityRef{ref}
		}
	} else {
		candidates = p.query.Iter()
	}

	results := make([]brp.QueryResult, 0, len(candidates))
	for _, ref := range candidates {
		ok, err := Evaluate(env, ref, filter.Predicate())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		row, err := env.row(p, ref)
		if err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, nil
}

func (env Env) row(p *plan, ref world.EntityRef) (brp.QueryResult, error) {
	row := brp.NewQueryResult(brp.EntityID(ref.ID()))

	for _, r := range p.components {
		v, err := env.read(ref, r)
		if err != nil {
			return row, err
		}
		if v == nil {
			// The query filtered for presence, so this is a broken world.
			return row, brp.ErrComponentNotFound(r.name)
		}
		row.Components[r.name] = v
	}

	if p.wildcard {
		if err := env.introspect(ref, row.Components); err != nil {
			return row, err
		}
	}

	for _, r := range p.optional {
		v, err := env.read(ref, r)
		if err != nil {
			return row, err
		}
		row.Optional[r.name] = v
	}

	for _, r := range p.has {
		row.Has[r.name] = ref.Contains(r.info.ID)
	}
	return row, nil
}

// read serializes one component. It returns nil when the component is
// absent.
func (env Env) read(ref world.EntityRef, r resolved) (brp.SerializedValue, error) {
	v, ok := ref.Get(r.info.ID)
	if !ok {
		if ref.Contains(r.info.ID) {
			return nil, brp.NewNamedError(brp.CodeComponentInvalidAccess, r.name)
		}
		return nil, nil
	}
	return env.Codec.Serialize(r.info, v, env.Format)
}

// introspect serializes every component on the entity, keyed by long
// path. Components the codec cannot handle become Unserializable.
func (env Env) introspect(ref world.EntityRef, out brp.ComponentMap) error {
	full, ok := env.World.Entity(ref.ID())
	if !ok {
		return brp.ErrEntityNotFound()
	}
	for _, id := range full.ComponentIDs() {
		info, ok := env.World.Type(id)
		if !ok {
			return fmt.Errorf("component %d has no registration", id)
		}
		v, _ := full.Get(id)
		sv, err := env.Codec.Serialize(info, v, env.Format)
		switch {
		case err == nil:
			out[info.Path] = sv
		case brp.IsCode(err, brp.CodeMissingTypeRegistration),
			brp.IsCode(err, brp.CodeMissingReflect),
			brp.IsCode(err, brp.CodeSerialization):
			out[info.Path] = brp.Unserializable{}
		default:
			return err
		}
	}
	return nil
}

// Watermark identifies a result set. Equal result sets have equal
// watermarks; the value is never zero.
func Watermark(results []brp.QueryResult) (uint64, error) {
	if results == nil {
		results = []brp.QueryResult{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return 0, fmt.Errorf("watermark: %w", err)
	}
	tree, err := value.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("watermark: %w", err)
	}
	return value.Fingerprint(value.DomainWatermark, tree)
}
