package brp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResponseContent is the body of a response.
//
// This is a sealed interface: OK, *Error, EntityResult, EntitiesResult,
// SpawnResult, PollResult and AssetResult implement it.
type ResponseContent interface {
	Tag() string
	responseContent()
}

// OK acknowledges a request that returns no data.
type OK struct{}

// EntityResult answers GetEntity.
type EntityResult struct {
	Entity QueryResult `json:"entity"`
}

// EntitiesResult answers QueryEntities.
type EntitiesResult struct {
	Entities []QueryResult `json:"entities"`
}

// SpawnResult answers SpawnEntity.
type SpawnResult struct {
	Entity EntityID `json:"entity"`
}

// PollResult answers PollEntities.
type PollResult struct {
	Entities  []QueryResult `json:"entities"`
	Watermark uint64        `json:"watermark"`
}

// AssetResult answers GetAsset.
type AssetResult struct {
	Name   string          `json:"name"`
	Handle SerializedValue `json:"handle"`
	Asset  SerializedValue `json:"asset"`
}

func (OK) Tag() string             { return "OK" }
func (*Error) Tag() string         { return "Error" }
func (EntityResult) Tag() string   { return "GetEntity" }
func (EntitiesResult) Tag() string { return "QueryEntities" }
func (SpawnResult) Tag() string    { return "SpawnEntity" }
func (PollResult) Tag() string     { return "Poll" }
func (AssetResult) Tag() string    { return "GetAsset" }

func (OK) responseContent()             {}
func (*Error) responseContent()         {}
func (EntityResult) responseContent()   {}
func (EntitiesResult) responseContent() {}
func (SpawnResult) responseContent()    {}
func (PollResult) responseContent()     {}
func (AssetResult) responseContent()    {}

// QueryResult holds the fetched data for one entity.
type QueryResult struct {
	Entity     EntityID        `json:"entity"`
	Components ComponentMap    `json:"components"`
	Optional   OptionalMap     `json:"optional"`
	Has        map[string]bool `json:"has"`
}

// NewQueryResult returns a result with empty, non-nil maps.
func NewQueryResult(e EntityID) QueryResult {
	return QueryResult{
		Entity:     e,
		Components: ComponentMap{},
		Optional:   OptionalMap{},
		Has:        map[string]bool{},
	}
}

// Response answers the request with the same ID.
type Response struct {
	ID      uint64
	Content ResponseContent
}

// NewResponse creates a response for request id.
func NewResponse(id uint64, content ResponseContent) Response {
	return Response{ID: id, Content: content}
}

// ResponseFromError creates an Error response. Errors that are not
// protocol errors are reported as InternalError.
func ResponseFromError(id uint64, err error) Response {
	if e, ok := AsError(err); ok {
		return Response{ID: id, Content: e}
	}
	return Response{ID: id, Content: NewError(CodeInternalError)}
}

// Err returns the protocol error carried by the response, if any.
func (r Response) Err() *Error {
	if e, ok := r.Content.(*Error); ok {
		return e
	}
	return nil
}

// Matches reports whether content is a legal answer to a request of the
// given kind. Errors are legal for every kind.
func Matches(kind RequestKind, content ResponseContent) bool {
	if _, ok := content.(*Error); ok {
		return true
	}
	switch kind {
	case KindPing, KindDestroyEntity, KindInsertComponent, KindRemoveComponent,
		KindReparentEntity, KindInsertAsset:
		_, ok := content.(OK)
		return ok
	case KindGetEntity:
		_, ok := content.(EntityResult)
		return ok
	case KindQueryEntities:
		_, ok := content.(EntitiesResult)
		return ok
	case KindSpawnEntity:
		_, ok := content.(SpawnResult)
		return ok
	case KindPollEntities:
		_, ok := content.(PollResult)
		return ok
	case KindGetAsset:
		_, ok := content.(AssetResult)
		return ok
	default:
		return false
	}
}

type responseEnvelope struct {
	ID       uint64          `json:"id"`
	Response string          `json:"response"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Content == nil {
		return nil, fmt.Errorf("response %d has no content", r.ID)
	}
	env := responseEnvelope{ID: r.ID, Response: r.Content.Tag()}
	if _, ok := r.Content.(OK); !ok {
		body, err := json.Marshal(r.Content)
		if err != nil {
			return nil, err
		}
		env.Content = body
	}
	return json.Marshal(env)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if len(env.Content) == 0 || bytes.Equal(env.Content, []byte("null")) {
		env.Content = json.RawMessage("{}")
	}

	var content ResponseContent
	switch env.Response {
	case "OK":
		content = OK{}
	case "Error":
		e := &Error{}
		if err := json.Unmarshal(env.Content, e); err != nil {
			return fmt.Errorf("error content: %w", err)
		}
		content = e
	case "GetEntity":
		var c EntityResult
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return fmt.Errorf("GetEntity content: %w", err)
		}
		content = c
	case "QueryEntities":
		var c EntitiesResult
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return fmt.Errorf("QueryEntities content: %w", err)
		}
		content = c
	case "SpawnEntity":
		var c SpawnResult
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return fmt.Errorf("SpawnEntity content: %w", err)
		}
		content = c
	case "Poll":
		var c PollResult
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return fmt.Errorf("Poll content: %w", err)
		}
		content = c
	case "GetAsset":
		var raw struct {
			Name   string          `json:"name"`
			Handle json.RawMessage `json:"handle"`
			Asset  json.RawMessage `json:"asset"`
		}
		if err := json.Unmarshal(env.Content, &raw); err != nil {
			return fmt.Errorf("GetAsset content: %w", err)
		}
		h, err := UnmarshalSerializedValue(raw.Handle)
		if err != nil {
			return fmt.Errorf("GetAsset handle: %w", err)
		}
		a, err := UnmarshalSerializedValue(raw.Asset)
		if err != nil {
			return fmt.Errorf("GetAsset asset: %w", err)
		}
		content = AssetResult{Name: raw.Name, Handle: h, Asset: a}
	default:
		return fmt.Errorf("unknown response tag %q", env.Response)
	}
	*r = Response{ID: env.ID, Content: content}
	return nil
}

// MarshalJSON keeps nil result lists encoding as [].
func (c EntitiesResult) MarshalJSON() ([]byte, error) {
	type plain EntitiesResult
	if c.Entities == nil {
		c.Entities = []QueryResult{}
	}
	return json.Marshal(plain(c))
}

// MarshalJSON keeps nil result lists encoding as [].
func (c PollResult) MarshalJSON() ([]byte, error) {
	type plain PollResult
	if c.Entities == nil {
		c.Entities = []QueryResult{}
	}
	return json.Marshal(plain(c))
}

// MarshalJSON always emits the three maps, empty when unset.
func (q QueryResult) MarshalJSON() ([]byte, error) {
	type plain QueryResult
	if q.Components == nil {
		q.Components = ComponentMap{}
	}
	if q.Optional == nil {
		q.Optional = OptionalMap{}
	}
	if q.Has == nil {
		q.Has = map[string]bool{}
	}
	return json.Marshal(plain(q))
}
