package brp

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SerializedValue is a component or asset value in wire form, or one of
// the two sentinels Default and Unserializable.
//
// This is a sealed interface: only JSON, JSON5, RON, Default and
// Unserializable implement it.
type SerializedValue interface {
	serializedValue()
}

// JSON is a value encoded as JSON text.
type JSON string

// JSON5 is a value encoded as JSON5 text.
type JSON5 string

// RON is a value encoded as RON text.
type RON string

// Default asks the receiver to construct the type's default value.
type Default struct{}

// Unserializable marks a value that exists but cannot cross the wire.
// The engine produces it; clients must never send it.
type Unserializable struct{}

func (JSON) serializedValue()           {}
func (JSON5) serializedValue()          {}
func (RON) serializedValue()            {}
func (Default) serializedValue()        {}
func (Unserializable) serializedValue() {}

const (
	tagDefault        = "<<Default>>"
	tagUnserializable = "<<Unserializable>>"
)

// MarshalJSON implements json.Marshaler.
func (v JSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"JSON": string(v)})
}

// MarshalJSON implements json.Marshaler.
func (v JSON5) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"JSON5": string(v)})
}

// MarshalJSON implements json.Marshaler.
func (v RON) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"RON": string(v)})
}

// MarshalJSON implements json.Marshaler.
func (Default) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagDefault)
}

// MarshalJSON implements json.Marshaler.
func (Unserializable) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagUnserializable)
}

// FormatOf reports the text format of a serialized value.
// The sentinels report ok=false.
func FormatOf(v SerializedValue) (Format, string, bool) {
	switch x := v.(type) {
	case JSON:
		return FormatJSON, string(x), true
	case JSON5:
		return FormatJSON5, string(x), true
	case RON:
		return FormatRON, string(x), true
	default:
		return 0, "", false
	}
}

// WithFormat wraps text in the SerializedValue variant for f.
func WithFormat(f Format, text string) SerializedValue {
	switch f {
	case FormatJSON5:
		return JSON5(text)
	case FormatRON:
		return RON(text)
	default:
		return JSON(text)
	}
}

// UnmarshalSerializedValue decodes a single serialized value.
func UnmarshalSerializedValue(data []byte) (SerializedValue, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch tag {
		case tagDefault:
			return Default{}, nil
		case tagUnserializable:
			return Unserializable{}, nil
		default:
			return nil, fmt.Errorf("unknown serialized value tag %q", tag)
		}
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("serialized value must be a tag or a single-key object: %w", err)
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("serialized value must have exactly one key, got %d", len(obj))
	}
	for k, text := range obj {
		switch k {
		case "JSON":
			return JSON(text), nil
		case "JSON5":
			return JSON5(text), nil
		case "RON":
			return RON(text), nil
		default:
			return nil, fmt.Errorf("unknown serialized value format %q", k)
		}
	}
	panic("unreachable")
}

// ComponentMap maps component names to serialized values.
type ComponentMap map[string]SerializedValue

// SortedNames returns the map's keys in ascending order.
func (m ComponentMap) SortedNames() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *ComponentMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ComponentMap, len(raw))
	for name, r := range raw {
		v, err := UnmarshalSerializedValue(r)
		if err != nil {
			return fmt.Errorf("component %q: %w", name, err)
		}
		out[name] = v
	}
	*m = out
	return nil
}

// OptionalMap maps optional component names to a value, or nil when the
// component is absent. Nil entries encode as JSON null.
type OptionalMap map[string]SerializedValue

// MarshalJSON implements json.Marshaler.
func (m OptionalMap) MarshalJSON() ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		if v == nil {
			raw[k] = json.RawMessage("null")
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw[k] = b
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *OptionalMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(OptionalMap, len(raw))
	for name, r := range raw {
		if string(r) == "null" {
			out[name] = nil
			continue
		}
		v, err := UnmarshalSerializedValue(r)
		if err != nil {
			return fmt.Errorf("optional component %q: %w", name, err)
		}
		out[name] = v
	}
	*m = out
	return nil
}
