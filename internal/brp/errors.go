package brp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is a protocol error returned to clients inside an Error response.
//
// Errors fall into a small taxonomy:
//   - not found: EntityNotFound, ComponentNotFound, AssetNotFound
//   - ambiguity: ComponentAmbiguous
//   - schema gaps: MissingTypeRegistration, MissingReflect, MissingDefault, MissingPartialEq
//   - codec: Serialization, Deserialization
//   - client input: InvalidRequest, InvalidEntity, InvalidQuery, InvalidWatermark
//   - operational: InternalError, Timeout, Unimplemented, Other
type Error struct {
	// Code identifies the variant.
	Code ErrorCode

	// Name is the component, asset or type name the error refers to.
	// Empty for variants that carry no payload.
	Name string

	// Message is the underlying parser message for Deserialization,
	// or the free text for Other.
	Message string
}

// ErrorCode names an Error variant. The value is the wire tag.
type ErrorCode string

const (
	CodeEntityNotFound          ErrorCode = "EntityNotFound"
	CodeComponentNotFound       ErrorCode = "ComponentNotFound"
	CodeComponentAmbiguous      ErrorCode = "ComponentAmbiguous"
	CodeComponentInvalidAccess  ErrorCode = "ComponentInvalidAccess"
	CodeMissingTypeRegistration ErrorCode = "MissingTypeRegistration"
	CodeMissingReflect          ErrorCode = "MissingReflect"
	CodeMissingDefault          ErrorCode = "MissingDefault"
	CodeMissingPartialEq        ErrorCode = "MissingPartialEq"
	CodeSerialization           ErrorCode = "Serialization"
	CodeDeserialization         ErrorCode = "Deserialization"
	CodeAssetNotFound           ErrorCode = "AssetNotFound"
	CodeInvalidRequest          ErrorCode = "InvalidRequest"
	CodeInvalidEntity           ErrorCode = "InvalidEntity"
	CodeInvalidQuery            ErrorCode = "InvalidQuery"
	CodeInvalidWatermark        ErrorCode = "InvalidWatermark"
	CodeInternalError           ErrorCode = "InternalError"
	CodeTimeout                 ErrorCode = "Timeout"
	CodeUnimplemented           ErrorCode = "Unimplemented"
	CodeOther                   ErrorCode = "Other"
)

// named lists the variants that carry a single string payload.
var named = map[ErrorCode]bool{
	CodeComponentNotFound:       true,
	CodeComponentAmbiguous:      true,
	CodeComponentInvalidAccess:  true,
	CodeMissingTypeRegistration: true,
	CodeMissingReflect:          true,
	CodeMissingDefault:          true,
	CodeMissingPartialEq:        true,
	CodeSerialization:           true,
	CodeAssetNotFound:           true,
	CodeOther:                   true,
}

var unit = map[ErrorCode]bool{
	CodeEntityNotFound:   true,
	CodeInvalidRequest:   true,
	CodeInvalidEntity:    true,
	CodeInvalidQuery:     true,
	CodeInvalidWatermark: true,
	CodeInternalError:    true,
	CodeTimeout:          true,
	CodeUnimplemented:    true,
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Code == CodeDeserialization:
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Name, e.Message)
	case e.Code == CodeOther:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Name != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Name)
	default:
		return string(e.Code)
	}
}

// Is reports whether target is an *Error with the same code.
// This lets callers write errors.Is(err, brp.NewError(brp.CodeTimeout)).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a payload-less error for a unit variant.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code}
}

// NewNamedError creates an error for a variant carrying a type or component name.
func NewNamedError(code ErrorCode, name string) *Error {
	return &Error{Code: code, Name: name}
}

// ErrEntityNotFound is returned when an entity does not exist or does not match.
func ErrEntityNotFound() *Error { return NewError(CodeEntityNotFound) }

// ErrComponentNotFound is returned when a component name resolves to nothing.
func ErrComponentNotFound(name string) *Error {
	return NewNamedError(CodeComponentNotFound, name)
}

// ErrComponentAmbiguous is returned when a short name matches several types.
func ErrComponentAmbiguous(name string) *Error {
	return NewNamedError(CodeComponentAmbiguous, name)
}

// ErrAssetNotFound is returned when an asset type or asset instance is missing.
func ErrAssetNotFound(name string) *Error {
	return NewNamedError(CodeAssetNotFound, name)
}

// ErrDeserialization wraps a parser failure for the given type.
func ErrDeserialization(typeName string, err error) *Error {
	return &Error{Code: CodeDeserialization, Name: typeName, Message: err.Error()}
}

// ErrOther carries a free-form, usually transport-specific, message.
func ErrOther(msg string) *Error {
	return &Error{Code: CodeOther, Message: msg}
}

// AsError extracts a protocol error from err, unwrapping as needed.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the protocol code of err. Errors that are not protocol
// errors report CodeInternalError.
func CodeOf(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return CodeInternalError
}

// IsCode reports whether err is a protocol error with the given code.
func IsCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

type deserializationPayload struct {
	TypeName string `json:"type_name"`
	Error    string `json:"error"`
}

// MarshalJSON encodes the error as an externally tagged variant.
func (e *Error) MarshalJSON() ([]byte, error) {
	switch {
	case e.Code == CodeDeserialization:
		return json.Marshal(map[string]deserializationPayload{
			string(e.Code): {TypeName: e.Name, Error: e.Message},
		})
	case e.Code == CodeOther:
		return json.Marshal(map[string]string{string(e.Code): e.Message})
	case named[e.Code]:
		return json.Marshal(map[string]string{string(e.Code): e.Name})
	case unit[e.Code]:
		return json.Marshal(string(e.Code))
	default:
		return nil, fmt.Errorf("unknown error code %q", e.Code)
	}
}

// UnmarshalJSON decodes an externally tagged error variant.
func (e *Error) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if !unit[ErrorCode(tag)] {
			return fmt.Errorf("unknown error variant %q", tag)
		}
		*e = Error{Code: ErrorCode(tag)}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("error must be a string or object: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("error object must have exactly one key, got %d", len(obj))
	}
	for k, raw := range obj {
		code := ErrorCode(k)
		switch {
		case code == CodeDeserialization:
			var p deserializationPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("invalid Deserialization payload: %w", err)
			}
			*e = Error{Code: code, Name: p.TypeName, Message: p.Error}
		case code == CodeOther:
			var msg string
			if err := json.Unmarshal(raw, &msg); err != nil {
				return fmt.Errorf("invalid Other payload: %w", err)
			}
			*e = Error{Code: code, Message: msg}
		case named[code]:
			var name string
			if err := json.Unmarshal(raw, &name); err != nil {
				return fmt.Errorf("invalid %s payload: %w", code, err)
			}
			*e = Error{Code: code, Name: name}
		default:
			return fmt.Errorf("unknown error variant %q", k)
		}
	}
	return nil
}
