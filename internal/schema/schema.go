// Package schema loads dynamic types and seed data from CUE.
//
// A schema file declares:
//
//	components: "game::Stats": {hp: 10, mp: 0}
//	assets: "game::Sound": {volume: 1.0}
//	entities: [{"game::Stats": {hp: 3, mp: 1}, Name: "orc"}]
//	asset_values: [{type: "game::Sound", handle: 7, value: {volume: 0.5}}]
//
// components and assets register dynamic types whose default is the given
// value. Entity keys resolve like BRP component names, so short paths and
// types registered in Go both work.
package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Type is a dynamic type declaration.
type Type struct {
	Path    string
	Default json.RawMessage
}

// Entity is a seed entity: component name to JSON value, in declaration order.
type Entity struct {
	Names  []string
	Values []json.RawMessage
}

// AssetValue is a seed asset stored under a fixed handle.
type AssetValue struct {
	Type   string
	Handle uint64
	Value  json.RawMessage
}

// Schema is a compiled schema.
type Schema struct {
	Components  []Type
	Assets      []Type
	Entities    []Entity
	AssetValues []AssetValue
}

// Load compiles the schema at path. In a directory, every file without a
// package clause is unified into one schema; a file is compiled on its own.
func Load(path string) (*Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}

	ctx := cuecontext.New()
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", path, err)
		}
		return build(ctx.CompileBytes(data, cue.Filename(path)))
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path, Package: "_"})
	if len(instances) == 0 {
		return nil, &Error{Field: "load", Message: fmt.Sprintf("no CUE instances in %s", path)}
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	return build(ctx.BuildInstance(instances[0]))
}

// Compile compiles schema source held in memory.
func Compile(src string) (*Schema, error) {
	return build(cuecontext.New().CompileString(src, cue.Filename("schema.cue")))
}

func build(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{}
	var err error
	if s.Components, err = parseTypes(v, "components"); err != nil {
		return nil, err
	}
	if s.Assets, err = parseTypes(v, "assets"); err != nil {
		return nil, err
	}
	if s.Entities, err = parseEntities(v); err != nil {
		return nil, err
	}
	if s.AssetValues, err = parseAssetValues(v); err != nil {
		return nil, err
	}
	return s, nil
}

func parseTypes(v cue.Value, field string) ([]Type, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return nil, nil
	}
	iter, err := val.Fields()
	if err != nil {
		return nil, &Error{Field: field, Message: "must be a struct of type paths", Pos: val.Pos()}
	}

	var out []Type
	for iter.Next() {
		def, err := iter.Value().MarshalJSON()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, Type{Path: iter.Selector().Unquoted(), Default: def})
	}
	return out, nil
}

func parseEntities(v cue.Value) ([]Entity, error) {
	val := v.LookupPath(cue.ParsePath("entities"))
	if !val.Exists() {
		return nil, nil
	}
	list, err := val.List()
	if err != nil {
		return nil, &Error{Field: "entities", Message: "must be a list", Pos: val.Pos()}
	}

	var out []Entity
	for i := 0; list.Next(); i++ {
		iter, err := list.Value().Fields()
		if err != nil {
			return nil, &Error{
				Field:   fmt.Sprintf("entities[%d]", i),
				Message: "must be a struct of component values",
				Pos:     list.Value().Pos(),
			}
		}
		var e Entity
		for iter.Next() {
			data, err := iter.Value().MarshalJSON()
			if err != nil {
				return nil, formatCUEError(err)
			}
			e.Names = append(e.Names, iter.Selector().Unquoted())
			e.Values = append(e.Values, data)
		}
		out = append(out, e)
	}
	return out, nil
}

func parseAssetValues(v cue.Value) ([]AssetValue, error) {
	val := v.LookupPath(cue.ParsePath("asset_values"))
	if !val.Exists() {
		return nil, nil
	}
	list, err := val.List()
	if err != nil {
		return nil, &Error{Field: "asset_values", Message: "must be a list", Pos: val.Pos()}
	}

	var out []AssetValue
	for i := 0; list.Next(); i++ {
		item := list.Value()
		field := fmt.Sprintf("asset_values[%d]", i)

		typ, err := item.LookupPath(cue.ParsePath("type")).String()
		if err != nil {
			return nil, &Error{Field: field + ".type", Message: "type path is required", Pos: item.Pos()}
		}
		handle, err := item.LookupPath(cue.ParsePath("handle")).Uint64()
		if err != nil {
			return nil, &Error{Field: field + ".handle", Message: "handle must be a non-negative integer", Pos: item.Pos()}
		}
		valueVal := item.LookupPath(cue.ParsePath("value"))
		if !valueVal.Exists() {
			return nil, &Error{Field: field + ".value", Message: "value is required", Pos: item.Pos()}
		}
		data, err := valueVal.MarshalJSON()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, AssetValue{Type: typ, Handle: handle, Value: data})
	}
	return out, nil
}
