// Package codec converts component and asset values to and from their
// wire forms (JSON, JSON5 and RON).
//
// Every value passes through JSON: Go values are encoded with encoding/json
// and the other formats are translated from or to that JSON text.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/value"
	"github.com/roach88/brp/internal/world"
)

// ErrUnserializable is the parser error reported when a client submits the
// Unserializable sentinel.
var ErrUnserializable = errors.New("value is marked unserializable")

// Codec serializes values for one engine. It is stateless apart from its
// logger and safe for concurrent use.
type Codec struct {
	logger *slog.Logger
}

// New creates a codec. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{logger: logger}
}

func checkType(info *world.TypeInfo) error {
	if !info.Registered() {
		return brp.NewNamedError(brp.CodeMissingTypeRegistration, info.Path)
	}
	if !info.Reflectable() {
		return brp.NewNamedError(brp.CodeMissingReflect, info.Path)
	}
	return nil
}

// Serialize encodes v, a value of info's type, in the given format.
//
// Errors: MissingTypeRegistration, MissingReflect, or Serialization when
// the value cannot be encoded.
func (c *Codec) Serialize(info *world.TypeInfo, v any, format brp.Format) (brp.SerializedValue, error) {
	if err := checkType(info); err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Debug("serialize failed", "type", info.Path, "error", err)
		return nil, brp.NewNamedError(brp.CodeSerialization, info.Path)
	}
	sv, err := FromJSON(data, format)
	if err != nil {
		c.logger.Debug("format conversion failed", "type", info.Path, "format", format, "error", err)
		return nil, brp.NewNamedError(brp.CodeSerialization, info.Path)
	}
	return sv, nil
}

// Deserialize decodes a wire value into a value of info's type.
//
// A payload in a format other than sessionFormat is accepted with a
// warning. Default needs a default constructor (MissingDefault).
// Unserializable and parser failures are Deserialization errors carrying
// the type path.
func (c *Codec) Deserialize(sv brp.SerializedValue, info *world.TypeInfo, sessionFormat brp.Format) (any, error) {
	if err := checkType(info); err != nil {
		return nil, err
	}

	switch sv.(type) {
	case nil:
		return nil, brp.ErrDeserialization(info.Path, errors.New("missing value"))
	case brp.Default:
		def, ok := info.Default()
		if !ok {
			return nil, brp.NewNamedError(brp.CodeMissingDefault, info.Path)
		}
		return def, nil
	case brp.Unserializable:
		return nil, brp.ErrDeserialization(info.Path, ErrUnserializable)
	}

	format, text, _ := brp.FormatOf(sv)
	if format != sessionFormat {
		c.logger.Warn("serialized value format differs from session format",
			"type", info.Path,
			"value_format", format.String(),
			"session_format", sessionFormat.String())
	}

	data, err := ToJSON(format, text)
	if err != nil {
		return nil, brp.ErrDeserialization(info.Path, err)
	}
	v, err := decodeInto(info, data)
	if err != nil {
		return nil, brp.ErrDeserialization(info.Path, err)
	}
	return v, nil
}

func decodeInto(info *world.TypeInfo, data []byte) (any, error) {
	ptr := info.New()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ptr); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after value")
	}
	return reflect.ValueOf(ptr).Elem().Interface(), nil
}

// FromJSON converts JSON text into a serialized value of the given format.
func FromJSON(data []byte, format brp.Format) (brp.SerializedValue, error) {
	switch format {
	case brp.FormatJSON:
		return brp.JSON(data), nil
	case brp.FormatJSON5:
		// JSON is valid JSON5; the tree keeps number digits intact.
		tree, err := value.Parse(data)
		if err != nil {
			return nil, err
		}
		out, err := value.Marshal(tree)
		if err != nil {
			return nil, err
		}
		return brp.JSON5(out), nil
	case brp.FormatRON:
		tree, err := value.Parse(data)
		if err != nil {
			return nil, err
		}
		return brp.RON(MarshalRON(tree)), nil
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// ToJSON converts text in the given format into JSON text.
func ToJSON(format brp.Format, text string) ([]byte, error) {
	switch format {
	case brp.FormatJSON:
		return []byte(text), nil
	case brp.FormatJSON5:
		tree, err := ParseJSON5(text)
		if err != nil {
			return nil, err
		}
		return value.Marshal(tree)
	case brp.FormatRON:
		tree, err := UnmarshalRON(text)
		if err != nil {
			return nil, err
		}
		return value.Marshal(tree)
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// Tree parses any serialized text value into a value tree. Sentinels have
// no tree and report an error.
func Tree(sv brp.SerializedValue) (value.Value, error) {
	format, text, ok := brp.FormatOf(sv)
	if !ok {
		return nil, fmt.Errorf("%T has no value tree", sv)
	}
	data, err := ToJSON(format, text)
	if err != nil {
		return nil, err
	}
	return value.Parse(data)
}
