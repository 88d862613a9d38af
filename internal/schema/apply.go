package schema

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/codec"
	"github.com/roach88/brp/internal/names"
	"github.com/roach88/brp/internal/world"
)

// Seeded reports what Apply added to a world.
type Seeded struct {
	Types    []world.ComponentID
	Entities []world.Entity
	Assets   int
}

// Apply registers the schema's types in w, then spawns its entities and
// stores its assets. Values are decoded with c exactly as a JSON session
// would decode them. An entity whose values fail to decode is not spawned.
func (s *Schema) Apply(w *world.World, c *codec.Codec, n *names.Cache) (Seeded, error) {
	var out Seeded
	for _, group := range []struct {
		kind  world.Kind
		types []Type
	}{{world.KindComponent, s.Components}, {world.KindAsset, s.Assets}} {
		for _, t := range group.types {
			var def any
			if err := json.Unmarshal(t.Default, &def); err != nil {
				return out, fmt.Errorf("%s default: %w", t.Path, err)
			}
			id, err := world.RegisterDynamic(w, group.kind, t.Path, def)
			if err != nil {
				return out, err
			}
			out.Types = append(out.Types, id)
		}
	}

	for i, e := range s.Entities {
		infos, err := n.ResolveAll(w, world.KindComponent, e.Names)
		if err != nil {
			return out, fmt.Errorf("entities[%d]: %w", i, err)
		}
		batch := make([]world.Insertion, len(infos))
		for j, info := range infos {
			v, err := c.Deserialize(brp.JSON(e.Values[j]), info, brp.FormatJSON)
			if err != nil {
				return out, fmt.Errorf("entities[%d]: %w", i, err)
			}
			batch[j] = world.Insertion{ID: info.ID, Value: v}
		}
		if err := w.CheckBatch(0, batch); err != nil {
			return out, fmt.Errorf("entities[%d]: %w", i, err)
		}

		ent := w.Spawn()
		if err := w.InsertBatch(ent, batch); err != nil {
			_ = w.Discard(ent)
			return out, fmt.Errorf("entities[%d]: %w", i, err)
		}
		out.Entities = append(out.Entities, ent)
	}

	for i, a := range s.AssetValues {
		infos, err := n.ResolveAll(w, world.KindAsset, []string{a.Type})
		if err != nil {
			return out, fmt.Errorf("asset_values[%d]: %w", i, err)
		}
		v, err := c.Deserialize(brp.JSON(a.Value), infos[0], brp.FormatJSON)
		if err != nil {
			return out, fmt.Errorf("asset_values[%d]: %w", i, err)
		}
		if err := w.InsertAsset(infos[0].ID, world.Handle{ID: a.Handle}, v); err != nil {
			return out, fmt.Errorf("asset_values[%d]: %w", i, err)
		}
		out.Assets++
	}
	return out, nil
}
