// Package secretval implements the JSON-typed dynamic value every secret
// backend produces: Null | Bool | Number | String | Array |
// Object. It is a thin wrapper over encoding/json's RawMessage so backends
// never have to hand-build a tagged union; equality is structural, exactly
// the way sidecred's isEqualConfig compares two JSON configs logically
// instead of byte-for-byte.
package secretval

import (
	"encoding/json"
	"reflect"
)

// Value holds a JSON-typed secret payload.
type Value struct {
	raw json.RawMessage
}

// Null is the JSON null value.
var Null = Value{raw: json.RawMessage("null")}

// FromString wraps a Go string as a JSON string value.
func FromString(s string) Value {
	b, _ := json.Marshal(s)
	return Value{raw: b}
}

// Parse decodes raw JSON bytes (e.g. a backend's response body or a file's
// contents) into a Value. It validates that data is well-formed JSON.
func Parse(data []byte) (Value, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return Value{raw: json.RawMessage(data)}, nil
}

// FromAny marshals an arbitrary Go value (typically decoded from a backend
// response, e.g. map[string]interface{}) into a Value.
func FromAny(v interface{}) (Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	return Value{raw: b}, nil
}

// IsNull reports whether the value is JSON null (the zero Value is also
// treated as null so an unset field never panics on use).
func (v Value) IsNull() bool {
	return len(v.raw) == 0 || string(v.raw) == "null"
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.raw) == 0 {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	cp := make(json.RawMessage, len(data))
	copy(cp, data)
	v.raw = cp
	return nil
}

// Decode unmarshals the value into target, the same way a caller would
// decode any other JSON document.
func (v Value) Decode(target interface{}) error {
	if v.IsNull() {
		return json.Unmarshal([]byte("null"), target)
	}
	return json.Unmarshal(v.raw, target)
}

// Equal implements structural equality: two values are equal iff their
// decoded payloads are deeply equal, regardless of object key order or
// insignificant whitespace.
func (v Value) Equal(other Value) bool {
	var a, b interface{}
	if err := json.Unmarshal(v.rawOrNull(), &a); err != nil {
		return false
	}
	if err := json.Unmarshal(other.rawOrNull(), &b); err != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func (v Value) rawOrNull() json.RawMessage {
	if len(v.raw) == 0 {
		return json.RawMessage("null")
	}
	return v.raw
}

func (v Value) String() string {
	if len(v.raw) == 0 {
		return "null"
	}
	return string(v.raw)
}
