package session

import (
	"errors"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/query"
	"github.com/roach88/brp/internal/world"
)

// handle answers every request kind except PollEntities.
func (d *Dispatcher) handle(env query.Env, req brp.Request) (brp.ResponseContent, error) {
	switch c := req.Content.(type) {
	case brp.Ping:
		return brp.OK{}, nil
	case brp.GetEntity:
		return d.getEntity(env, c)
	case brp.QueryEntities:
		results, err := query.Execute(env, c.Data, c.Filter, nil)
		if err != nil {
			return nil, err
		}
		return brp.EntitiesResult{Entities: results}, nil
	case brp.SpawnEntity:
		return d.spawnEntity(env, c)
	case brp.DestroyEntity:
		return d.destroyEntity(c)
	case brp.InsertComponent:
		return d.insertComponent(env, c)
	case brp.RemoveComponent:
		return d.removeComponent(c)
	case brp.ReparentEntity:
		return d.reparentEntity(c)
	case brp.GetAsset:
		return d.getAsset(env, c)
	case brp.InsertAsset:
		return d.insertAsset(env, c)
	default:
		return nil, brp.NewError(brp.CodeUnimplemented)
	}
}

func (d *Dispatcher) getEntity(env query.Env, c brp.GetEntity) (brp.ResponseContent, error) {
	e := world.Entity(c.Entity)
	if !d.world.Contains(e) {
		return nil, brp.ErrEntityNotFound()
	}
	results, err := query.Execute(env, c.Data, c.Filter, &e)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		// Name the first missing required component if there is one.
		if !c.Data.IsWildcard() {
			for _, name := range c.Data.Components {
				info, err := d.names.Resolve(world.KindComponent, name)
				if err == nil && !d.world.Has(e, info.ID) {
					return nil, brp.ErrComponentNotFound(name)
				}
			}
		}
		return nil, brp.ErrEntityNotFound()
	}
	return brp.EntityResult{Entity: results[0]}, nil
}

// decodeComponents resolves and decodes every component of a request in
// sorted name order and checks their combined effect on e, before anything
// is written. e is zero for an entity about to be spawned.
func (d *Dispatcher) decodeComponents(env query.Env, e world.Entity, components brp.ComponentMap) ([]world.Insertion, error) {
	sorted := components.SortedNames()
	infos, err := d.names.ResolveAll(d.world, world.KindComponent, sorted)
	if err != nil {
		return nil, err
	}
	batch := make([]world.Insertion, len(sorted))
	for i, name := range sorted {
		v, err := d.codec.Deserialize(components[name], infos[i], env.Format)
		if err != nil {
			return nil, err
		}
		batch[i] = world.Insertion{ID: infos[i].ID, Value: v}
	}
	if err := d.world.CheckBatch(e, batch); err != nil {
		return nil, hierarchyError(err)
	}
	return batch, nil
}

func hierarchyError(err error) error {
	var missing *world.NoEntityError
	if errors.Is(err, world.ErrHierarchyCycle) || errors.As(err, &missing) {
		return brp.NewError(brp.CodeInvalidEntity)
	}
	return err
}

func (d *Dispatcher) spawnEntity(env query.Env, c brp.SpawnEntity) (brp.ResponseContent, error) {
	batch, err := d.decodeComponents(env, 0, c.Components)
	if err != nil {
		return nil, err
	}
	e := d.world.Spawn()
	if err := d.world.InsertBatch(e, batch); err != nil {
		_ = d.world.Discard(e)
		return nil, hierarchyError(err)
	}
	return brp.SpawnResult{Entity: brp.EntityID(e)}, nil
}

func (d *Dispatcher) destroyEntity(c brp.DestroyEntity) (brp.ResponseContent, error) {
	e := world.Entity(c.Entity)
	if !d.world.Contains(e) {
		return nil, brp.ErrEntityNotFound()
	}
	if err := d.world.Despawn(e); err != nil {
		return nil, err
	}
	return brp.OK{}, nil
}

func (d *Dispatcher) insertComponent(env query.Env, c brp.InsertComponent) (brp.ResponseContent, error) {
	e := world.Entity(c.Entity)
	if !d.world.Contains(e) {
		return nil, brp.ErrEntityNotFound()
	}
	batch, err := d.decodeComponents(env, e, c.Components)
	if err != nil {
		return nil, err
	}
	if err := d.world.InsertBatch(e, batch); err != nil {
		return nil, hierarchyError(err)
	}
	return brp.OK{}, nil
}

func (d *Dispatcher) removeComponent(c brp.RemoveComponent) (brp.ResponseContent, error) {
	e := world.Entity(c.Entity)
	if !d.world.Contains(e) {
		return nil, brp.ErrEntityNotFound()
	}
	infos, err := d.names.ResolveAll(d.world, world.KindComponent, c.Components)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if err := d.world.Remove(e, info.ID); err != nil {
			return nil, err
		}
	}
	return brp.OK{}, nil
}

func (d *Dispatcher) reparentEntity(c brp.ReparentEntity) (brp.ResponseContent, error) {
	child, parent := world.Entity(c.Entity), world.Entity(c.Parent)
	if !d.world.Contains(child) || !d.world.Contains(parent) {
		return nil, brp.ErrEntityNotFound()
	}
	if err := d.world.SetParent(child, parent); err != nil {
		return nil, hierarchyError(err)
	}
	return brp.OK{}, nil
}

func (d *Dispatcher) resolveAsset(env query.Env, name string, handle brp.SerializedValue) (*world.TypeInfo, world.Handle, error) {
	infos, err := d.names.ResolveAll(d.world, world.KindAsset, []string{name})
	if err != nil {
		return nil, world.Handle{}, err
	}
	hv, err := d.codec.Deserialize(handle, d.world.HandleType(), env.Format)
	if err != nil {
		return nil, world.Handle{}, err
	}
	return infos[0], hv.(world.Handle), nil
}

func (d *Dispatcher) getAsset(env query.Env, c brp.GetAsset) (brp.ResponseContent, error) {
	info, h, err := d.resolveAsset(env, c.Name, c.Handle)
	if err != nil {
		return nil, err
	}
	v, ok := d.world.Asset(info.ID, h)
	if !ok {
		return nil, brp.ErrAssetNotFound(c.Name)
	}
	asset, err := d.codec.Serialize(info, v, env.Format)
	if err != nil {
		return nil, err
	}
	return brp.AssetResult{Name: c.Name, Handle: c.Handle, Asset: asset}, nil
}

func (d *Dispatcher) insertAsset(env query.Env, c brp.InsertAsset) (brp.ResponseContent, error) {
	info, h, err := d.resolveAsset(env, c.Name, c.Handle)
	if err != nil {
		return nil, err
	}
	v, err := d.codec.Deserialize(c.Asset, info, env.Format)
	if err != nil {
		return nil, err
	}
	if err := d.world.InsertAsset(info.ID, h, v); err != nil {
		return nil, err
	}
	return brp.OK{}, nil
}
