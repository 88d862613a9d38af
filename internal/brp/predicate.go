package brp

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Predicate is a boolean expression over an entity's component values.
//
// This is a sealed interface: only Always, All, Any, Not and Eq implement it.
// A nil Predicate is treated as Always.
type Predicate interface {
	predicate()
}

// Always is true for every entity.
type Always struct{}

// All is true iff every child is true. Evaluated left to right, stopping
// at the first false child. All{} is true.
type All []Predicate

// Any is true iff some child is true. Evaluated left to right, stopping
// at the first true child. Any{} is false.
type Any []Predicate

// Not negates its child.
type Not struct {
	Predicate Predicate
}

// Eq is true iff every named component is present and structurally equal
// to the given value. Eq{} is true.
type Eq ComponentMap

func (Always) predicate() {}
func (All) predicate()    {}
func (Any) predicate()    {}
func (Not) predicate()    {}
func (Eq) predicate()     {}

const (
	tagAlways = "Always"
	tagAll    = "&&"
	tagAny    = "||"
	tagNot    = "!"
	tagEq     = "=="
)

// MarshalJSON implements json.Marshaler.
func (Always) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagAlways)
}

// MarshalJSON implements json.Marshaler.
func (p All) MarshalJSON() ([]byte, error) {
	return marshalPredicateList(tagAll, p)
}

// MarshalJSON implements json.Marshaler.
func (p Any) MarshalJSON() ([]byte, error) {
	return marshalPredicateList(tagAny, p)
}

// MarshalJSON implements json.Marshaler.
func (p Not) MarshalJSON() ([]byte, error) {
	inner := p.Predicate
	if inner == nil {
		inner = Always{}
	}
	return json.Marshal(map[string]Predicate{tagNot: inner})
}

// MarshalJSON implements json.Marshaler.
func (p Eq) MarshalJSON() ([]byte, error) {
	m := ComponentMap(p)
	if m == nil {
		m = ComponentMap{}
	}
	return json.Marshal(map[string]ComponentMap{tagEq: m})
}

func marshalPredicateList(tag string, ps []Predicate) ([]byte, error) {
	items := make([]Predicate, len(ps))
	for i, p := range ps {
		if p == nil {
			p = Always{}
		}
		items[i] = p
	}
	return json.Marshal(map[string][]Predicate{tag: items})
}

// UnmarshalPredicate decodes a predicate tree.
func UnmarshalPredicate(data []byte) (Predicate, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != tagAlways {
			return nil, fmt.Errorf("unknown predicate %q", tag)
		}
		return Always{}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("predicate must be a string or object: %w", err)
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("predicate object must have exactly one key, got %d", len(obj))
	}
	for k, raw := range obj {
		switch k {
		case tagAll, tagAny:
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("%s expects a list: %w", k, err)
			}
			children := make([]Predicate, 0, len(items))
			for i, item := range items {
				child, err := UnmarshalPredicate(item)
				if err != nil {
					return nil, fmt.Errorf("%s[%d]: %w", k, i, err)
				}
				children = append(children, child)
			}
			if k == tagAll {
				return All(children), nil
			}
			return Any(children), nil
		case tagNot:
			child, err := UnmarshalPredicate(raw)
			if err != nil {
				return nil, fmt.Errorf("!: %w", err)
			}
			return Not{Predicate: child}, nil
		case tagEq:
			var m ComponentMap
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("==: %w", err)
			}
			return Eq(m), nil
		default:
			return nil, fmt.Errorf("unknown predicate %q", k)
		}
	}
	panic("unreachable")
}

// PredicateNames returns every component name referenced anywhere in p,
// sorted and without duplicates.
func PredicateNames(p Predicate) []string {
	seen := make(map[string]struct{})
	collectNames(p, seen)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func collectNames(p Predicate, seen map[string]struct{}) {
	switch x := p.(type) {
	case All:
		for _, c := range x {
			collectNames(c, seen)
		}
	case Any:
		for _, c := range x {
			collectNames(c, seen)
		}
	case Not:
		collectNames(x.Predicate, seen)
	case Eq:
		for name := range x {
			seen[name] = struct{}{}
		}
	}
}
