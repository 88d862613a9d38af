package query

import (
	"fmt"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/world"
)

// Evaluate decides a predicate for one entity.
//
// All and Any short-circuit left to right. Eq compares in sorted name
// order; a missing component makes it false, a type without equality
// support is MissingPartialEq.
func Evaluate(env Env, ref world.EntityRef, p brp.Predicate) (bool, error) {
	switch x := p.(type) {
	case nil, brp.Always:
		return true, nil
	case brp.All:
		for _, child := range x {
			ok, err := Evaluate(env, ref, child)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case brp.Any:
		for _, child := range x {
			ok, err := Evaluate(env, ref, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case brp.Not:
		ok, err := Evaluate(env, ref, x.Predicate)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case brp.Eq:
		return evalEq(env, ref, x)
	default:
		return false, fmt.Errorf("unknown predicate %T", p)
	}
}

func evalEq(env Env, ref world.EntityRef, eq brp.Eq) (bool, error) {
	m := brp.ComponentMap(eq)
	for _, name := range m.SortedNames() {
		infos, err := env.Names.ResolveAll(env.World, world.KindComponent, []string{name})
		if err != nil {
			return false, err
		}
		info := infos[0]

		expected, err := env.Codec.Deserialize(m[name], info, env.Format)
		if err != nil {
			return false, err
		}
		live, ok := ref.Get(info.ID)
		if !ok {
			if ref.Contains(info.ID) {
				return false, brp.NewNamedError(brp.CodeComponentInvalidAccess, name)
			}
			return false, nil
		}
		equal, supported := info.Equal(expected, live)
		if !supported {
			return false, brp.NewNamedError(brp.CodeMissingPartialEq, name)
		}
		if !equal {
			return false, nil
		}
	}
	return true, nil
}
