package brp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EntityID identifies an entity on the wire.
type EntityID uint64

// Wildcard is the single component name that requests every component.
const Wildcard = "*"

// QueryData selects what to fetch for each matching entity.
type QueryData struct {
	// Components are required; entities lacking any are not matched.
	Components []string `json:"components"`

	// Optional components are fetched when present.
	Optional []string `json:"optional"`

	// Has reports presence only.
	Has []string `json:"has"`
}

// IsWildcard reports whether the query asks for every component.
func (d QueryData) IsWildcard() bool {
	return len(d.Components) == 1 && d.Components[0] == Wildcard
}

// QueryFilter narrows the set of matching entities.
type QueryFilter struct {
	With    []string  `json:"with"`
	Without []string  `json:"without"`
	When    Predicate `json:"when"`
}

// Predicate returns the filter's predicate, defaulting to Always.
func (f QueryFilter) Predicate() Predicate {
	if f.When == nil {
		return Always{}
	}
	return f.When
}

// MarshalJSON implements json.Marshaler.
func (f QueryFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		With    []string  `json:"with"`
		Without []string  `json:"without"`
		When    Predicate `json:"when"`
	}{nonNil(f.With), nonNil(f.Without), f.Predicate()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *QueryFilter) UnmarshalJSON(data []byte) error {
	var raw struct {
		With    []string        `json:"with"`
		Without []string        `json:"without"`
		When    json.RawMessage `json:"when"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := QueryFilter{With: raw.With, Without: raw.Without, When: Always{}}
	if len(raw.When) > 0 && !bytes.Equal(raw.When, []byte("null")) {
		p, err := UnmarshalPredicate(raw.When)
		if err != nil {
			return fmt.Errorf("when: %w", err)
		}
		out.When = p
	}
	*f = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d QueryData) MarshalJSON() ([]byte, error) {
	type plain QueryData
	return json.Marshal(plain{
		Components: nonNil(d.Components),
		Optional:   nonNil(d.Optional),
		Has:        nonNil(d.Has),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// RequestKind is the wire tag of a request.
type RequestKind string

const (
	KindPing            RequestKind = "Ping"
	KindGetEntity       RequestKind = "GetEntity"
	KindQueryEntities   RequestKind = "QueryEntities"
	KindSpawnEntity     RequestKind = "SpawnEntity"
	KindDestroyEntity   RequestKind = "DestroyEntity"
	KindInsertComponent RequestKind = "InsertComponent"
	KindRemoveComponent RequestKind = "RemoveComponent"
	KindReparentEntity  RequestKind = "ReparentEntity"
	KindPollEntities    RequestKind = "PollEntities"
	KindGetAsset        RequestKind = "GetAsset"
	KindInsertAsset     RequestKind = "InsertAsset"
)

// RequestContent is the body of a request.
//
// This is a sealed interface: only the request types of this package
// implement it.
type RequestContent interface {
	Kind() RequestKind
	requestContent()
}

// Ping checks that the session is alive.
type Ping struct{}

// GetEntity fetches data for a single entity.
type GetEntity struct {
	Entity EntityID    `json:"entity"`
	Data   QueryData   `json:"data"`
	Filter QueryFilter `json:"filter"`
}

// QueryEntities fetches data for every matching entity.
type QueryEntities struct {
	Data   QueryData   `json:"data"`
	Filter QueryFilter `json:"filter"`
}

// SpawnEntity creates an entity with the given components.
type SpawnEntity struct {
	Components ComponentMap `json:"components"`
}

// DestroyEntity removes an entity and its descendants.
type DestroyEntity struct {
	Entity EntityID `json:"entity"`
}

// InsertComponent inserts or replaces components on an entity.
type InsertComponent struct {
	Entity     EntityID     `json:"entity"`
	Components ComponentMap `json:"components"`
}

// RemoveComponent removes components from an entity.
type RemoveComponent struct {
	Entity     EntityID `json:"entity"`
	Components []string `json:"components"`
}

// ReparentEntity moves an entity under a new parent.
type ReparentEntity struct {
	Entity EntityID `json:"entity"`
	Parent EntityID `json:"parent"`
}

// PollEntities is QueryEntities that is only answered once the result set
// differs from the one identified by Watermark. A nil Watermark answers
// immediately.
type PollEntities struct {
	Data      QueryData   `json:"data"`
	Filter    QueryFilter `json:"filter"`
	Watermark *uint64     `json:"watermark"`
}

// GetAsset fetches an asset by type name and serialized handle.
type GetAsset struct {
	Name   string          `json:"name"`
	Handle SerializedValue `json:"handle"`
}

// InsertAsset stores an asset under a serialized handle.
type InsertAsset struct {
	Name   string          `json:"name"`
	Handle SerializedValue `json:"handle"`
	Asset  SerializedValue `json:"asset"`
}

// Unknown is produced when decoding a request with an unrecognised tag.
type Unknown struct {
	Tag string
}

func (Ping) Kind() RequestKind            { return KindPing }
func (GetEntity) Kind() RequestKind       { return KindGetEntity }
func (QueryEntities) Kind() RequestKind   { return KindQueryEntities }
func (SpawnEntity) Kind() RequestKind     { return KindSpawnEntity }
func (DestroyEntity) Kind() RequestKind   { return KindDestroyEntity }
func (InsertComponent) Kind() RequestKind { return KindInsertComponent }
func (RemoveComponent) Kind() RequestKind { return KindRemoveComponent }
func (ReparentEntity) Kind() RequestKind  { return KindReparentEntity }
func (PollEntities) Kind() RequestKind    { return KindPollEntities }
func (GetAsset) Kind() RequestKind        { return KindGetAsset }
func (InsertAsset) Kind() RequestKind     { return KindInsertAsset }
func (u Unknown) Kind() RequestKind       { return RequestKind(u.Tag) }

func (Ping) requestContent()            {}
func (GetEntity) requestContent()       {}
func (QueryEntities) requestContent()   {}
func (SpawnEntity) requestContent()     {}
func (DestroyEntity) requestContent()   {}
func (InsertComponent) requestContent() {}
func (RemoveComponent) requestContent() {}
func (ReparentEntity) requestContent()  {}
func (PollEntities) requestContent()    {}
func (GetAsset) requestContent()        {}
func (InsertAsset) requestContent()     {}
func (Unknown) requestContent()         {}

// Request is a client request. ID is the only correlation key between a
// request and its response.
type Request struct {
	ID      uint64
	Content RequestContent
}

// Kind returns the request's tag.
func (r Request) Kind() RequestKind {
	if r.Content == nil {
		return ""
	}
	return r.Content.Kind()
}

type requestEnvelope struct {
	ID      uint64          `json:"id"`
	Request string          `json:"request"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Request) MarshalJSON() ([]byte, error) {
	if r.Content == nil {
		return nil, fmt.Errorf("request %d has no content", r.ID)
	}
	env := requestEnvelope{ID: r.ID, Request: string(r.Content.Kind())}
	switch r.Content.(type) {
	case Ping, Unknown:
	default:
		params, err := json.Marshal(r.Content)
		if err != nil {
			return nil, err
		}
		env.Params = params
	}
	return json.Marshal(env)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Request) UnmarshalJSON(data []byte) error {
	var env requestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	content, err := decodeRequestContent(RequestKind(env.Request), env.Params)
	if err != nil {
		return fmt.Errorf("%s params: %w", env.Request, err)
	}
	*r = Request{ID: env.ID, Content: content}
	return nil
}

func decodeRequestContent(kind RequestKind, params json.RawMessage) (RequestContent, error) {
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = json.RawMessage("{}")
	}
	switch kind {
	case KindPing:
		return Ping{}, nil
	case KindGetEntity:
		var c GetEntity
		return decodeStrict(params, &c, "entity")
	case KindQueryEntities:
		var c QueryEntities
		return decodeStrict(params, &c)
	case KindSpawnEntity:
		var c SpawnEntity
		return decodeStrict(params, &c, "components")
	case KindDestroyEntity:
		var c DestroyEntity
		return decodeStrict(params, &c, "entity")
	case KindInsertComponent:
		var c InsertComponent
		return decodeStrict(params, &c, "entity", "components")
	case KindRemoveComponent:
		var c RemoveComponent
		return decodeStrict(params, &c, "entity", "components")
	case KindReparentEntity:
		var c ReparentEntity
		return decodeStrict(params, &c, "entity", "parent")
	case KindPollEntities:
		var c PollEntities
		return decodeStrict(params, &c)
	case KindGetAsset:
		var raw struct {
			Name   string          `json:"name"`
			Handle json.RawMessage `json:"handle"`
		}
		if _, err := decodeStrict(params, &raw, "name", "handle"); err != nil {
			return nil, err
		}
		h, err := UnmarshalSerializedValue(raw.Handle)
		if err != nil {
			return nil, fmt.Errorf("handle: %w", err)
		}
		return GetAsset{Name: raw.Name, Handle: h}, nil
	case KindInsertAsset:
		var raw struct {
			Name   string          `json:"name"`
			Handle json.RawMessage `json:"handle"`
			Asset  json.RawMessage `json:"asset"`
		}
		if _, err := decodeStrict(params, &raw, "name", "handle", "asset"); err != nil {
			return nil, err
		}
		h, err := UnmarshalSerializedValue(raw.Handle)
		if err != nil {
			return nil, fmt.Errorf("handle: %w", err)
		}
		a, err := UnmarshalSerializedValue(raw.Asset)
		if err != nil {
			return nil, fmt.Errorf("asset: %w", err)
		}
		return InsertAsset{Name: raw.Name, Handle: h, Asset: a}, nil
	default:
		return Unknown{Tag: string(kind)}, nil
	}
}

// decodeStrict decodes params into out after checking that every required
// field is present. It returns *out as the request content.
func decodeStrict[T any](params json.RawMessage, out *T, required ...string) (T, error) {
	if len(required) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(params, &fields); err != nil {
			return *out, err
		}
		for _, name := range required {
			if _, ok := fields[name]; !ok {
				return *out, fmt.Errorf("missing field %q", name)
			}
		}
	}
	if err := json.Unmarshal(params, out); err != nil {
		return *out, err
	}
	return *out, nil
}
