package world

import "fmt"

// HandlePath is the registered path of the asset handle value type.
const HandlePath = "core::asset::Handle"

// Handle addresses an asset inside its type's store.
type Handle struct {
	ID uint64 `json:"id"`
}

// HandleType returns the registration used to decode handles.
func (w *World) HandleType() *TypeInfo { return w.types[w.handleID] }

// AddAsset stores v under a fresh handle.
func (w *World) AddAsset(typ ComponentID, v any) (Handle, error) {
	w.nextAsset++
	h := Handle{ID: w.nextAsset}
	if err := w.InsertAsset(typ, h, v); err != nil {
		return Handle{}, err
	}
	return h, nil
}

// InsertAsset stores v under h, replacing any previous asset.
func (w *World) InsertAsset(typ ComponentID, h Handle, v any) error {
	info, ok := w.Type(typ)
	if !ok || info.Kind != KindAsset {
		return fmt.Errorf("insert asset: %d is not an asset type", typ)
	}
	if !info.Accepts(v) {
		return fmt.Errorf("insert asset %s: value of type %T does not match %s", info.Path, v, info.Type)
	}
	store, ok := w.assets[typ]
	if !ok {
		store = make(map[uint64]any)
		w.assets[typ] = store
	}
	store[h.ID] = v
	if h.ID > w.nextAsset {
		w.nextAsset = h.ID
	}
	w.touch()
	return nil
}

// Asset returns the asset stored under h.
func (w *World) Asset(typ ComponentID, h Handle) (any, bool) {
	v, ok := w.assets[typ][h.ID]
	return v, ok
}
