package world

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// ComponentID identifies a registered type. Ids are dense and never reused.
type ComponentID uint32

// Kind classifies a registered type.
type Kind int

const (
	// KindComponent types can be attached to entities.
	KindComponent Kind = iota
	// KindAsset types live in the asset store, addressed by handle.
	KindAsset
	// KindValue types are plain data used by requests, such as handles.
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindComponent:
		return "component"
	case KindAsset:
		return "asset"
	case KindValue:
		return "value"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// TypeInfo describes a registered type: its names, how to build and compare
// values, and whether it can be serialized.
type TypeInfo struct {
	ID        ComponentID
	Kind      Kind
	Path      string
	ShortPath string

	// Type is the Go type of stored values. For dynamic types it is the
	// empty interface and values are plain JSON-shaped Go values.
	Type reflect.Type

	registered  bool
	reflectable bool
	defaultFn   func() any
	equalFn     func(a, b any) bool
}

// Registered reports whether the type has a registration in the type
// registry. Unregistered types can be stored but never serialized.
func (t *TypeInfo) Registered() bool { return t.registered }

// Reflectable reports whether values can be inspected by the codec.
func (t *TypeInfo) Reflectable() bool { return t.reflectable }

// Default constructs the type's default value.
func (t *TypeInfo) Default() (any, bool) {
	if t.defaultFn == nil {
		return nil, false
	}
	return t.defaultFn(), true
}

// Equal compares two values structurally. ok is false when the type has
// no equality support.
func (t *TypeInfo) Equal(a, b any) (equal, ok bool) {
	if t.equalFn == nil {
		return false, false
	}
	return t.equalFn(a, b), true
}

// New returns a pointer to a fresh zero value of the type, ready to be
// decoded into.
func (t *TypeInfo) New() any {
	return reflect.New(t.Type).Interface()
}

// Accepts reports whether v can be stored as a value of this type.
func (t *TypeInfo) Accepts(v any) bool {
	if t.Type.Kind() == reflect.Interface {
		return v == nil || reflect.TypeOf(v).Implements(t.Type)
	}
	return v != nil && reflect.TypeOf(v) == t.Type
}

// TypeOption customises a registration.
type TypeOption func(*TypeInfo)

// WithDefault overrides the default constructor.
func WithDefault(fn func() any) TypeOption {
	return func(t *TypeInfo) { t.defaultFn = fn }
}

// WithoutDefault removes the default constructor.
func WithoutDefault() TypeOption {
	return func(t *TypeInfo) { t.defaultFn = nil }
}

// WithEqual overrides structural equality.
func WithEqual(fn func(a, b any) bool) TypeOption {
	return func(t *TypeInfo) { t.equalFn = fn }
}

// WithoutEqual removes equality support.
func WithoutEqual() TypeOption {
	return func(t *TypeInfo) { t.equalFn = nil }
}

// Opaque marks values as not inspectable. They can be stored and queried
// for presence but never serialized.
func Opaque() TypeOption {
	return func(t *TypeInfo) { t.reflectable = false }
}

// Unregistered keeps the type out of the serialization registry entirely.
func Unregistered() TypeOption {
	return func(t *TypeInfo) {
		t.registered = false
		t.reflectable = false
	}
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// structuralEqual compares with go-cmp, treating nil and empty
// slices/maps as equal since decoded values rarely preserve that difference.
func structuralEqual(a, b any) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

// Register adds a Go type under a fully qualified path. The zero value is
// the default and go-cmp provides equality unless options say otherwise.
func Register[T any](w *World, kind Kind, path string, opts ...TypeOption) ComponentID {
	var zero T
	info := &TypeInfo{
		Kind:        kind,
		Path:        path,
		Type:        reflect.TypeOf((*T)(nil)).Elem(),
		registered:  true,
		reflectable: true,
		defaultFn:   func() any { return zero },
		equalFn:     structuralEqual,
	}
	return w.register(info, opts)
}

// RegisterComponent registers T as a component type.
func RegisterComponent[T any](w *World, path string, opts ...TypeOption) ComponentID {
	return Register[T](w, KindComponent, path, opts...)
}

// RegisterAsset registers T as an asset type.
func RegisterAsset[T any](w *World, path string, opts ...TypeOption) ComponentID {
	return Register[T](w, KindAsset, path, opts...)
}

// RegisterDynamic registers a type described at runtime, for example by a
// schema file. Values are JSON-shaped Go values; def is deep-copied each
// time a default is requested.
func RegisterDynamic(w *World, kind Kind, path string, def any, opts ...TypeOption) (ComponentID, error) {
	encoded, err := json.Marshal(def)
	if err != nil {
		return 0, fmt.Errorf("register %s: default is not JSON-shaped: %w", path, err)
	}
	info := &TypeInfo{
		Kind:        kind,
		Path:        path,
		Type:        anyType,
		registered:  true,
		reflectable: true,
		defaultFn: func() any {
			var v any
			_ = json.Unmarshal(encoded, &v)
			return v
		},
		equalFn: structuralEqual,
	}
	return w.register(info, opts), nil
}

func (w *World) register(info *TypeInfo, opts []TypeOption) ComponentID {
	if id, ok := w.byPath[info.Path]; ok {
		return id
	}
	for _, opt := range opts {
		opt(info)
	}
	info.ID = ComponentID(len(w.types))
	info.ShortPath = ShortTypePath(info.Path)
	w.types = append(w.types, info)
	w.byPath[info.Path] = info.ID
	w.touch()
	return info.ID
}

// Type returns the registration for id.
func (w *World) Type(id ComponentID) (*TypeInfo, bool) {
	if int(id) >= len(w.types) {
		return nil, false
	}
	return w.types[id], true
}

// TypeByPath returns the registration for a fully qualified path.
func (w *World) TypeByPath(path string) (*TypeInfo, bool) {
	id, ok := w.byPath[path]
	if !ok {
		return nil, false
	}
	return w.types[id], true
}

// Types enumerates registrations of the given kind in id order.
func (w *World) Types(kind Kind) []*TypeInfo {
	out := make([]*TypeInfo, 0, len(w.types))
	for _, t := range w.types {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}
