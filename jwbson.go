// Package jwbson serializes Go object graphs to a BSON-compatible binary
// format and to a configurable JSON-like text notation.
//
// Members take part when tagged `jw:"name"`; `jw:"name,r"` only reads,
// `jw:"name,w"` only writes and `jw:"-"` opts out. The helpers here use the
// default contexts and a fresh codec per call; use pkg/bson and pkg/jwon to
// reuse a codec or change the wire constants.
package jwbson

import (
	"reflect"

	"github.com/GavinLo/jwbson/pkg/bson"
	"github.com/GavinLo/jwbson/pkg/jwon"
	"github.com/GavinLo/jwbson/pkg/schema"
)

var (
	ErrInvalidArgument = schema.ErrInvalidArgument
	ErrUnsupportedType = schema.ErrUnsupportedType
	ErrMalformed       = schema.ErrMalformed
	ErrTruncated       = schema.ErrTruncated
	ErrTypeMismatch    = schema.ErrTypeMismatch
)

// MarshalBinary encodes v as one binary document.
func MarshalBinary(v any) ([]byte, error) {
	return bson.Marshal(v)
}

// UnmarshalBinary decodes one binary document into target.
func UnmarshalBinary(data []byte, target any) error {
	return bson.Unmarshal(data, target)
}

// MarshalText renders v as JSON.
func MarshalText(v any) (string, error) {
	return jwon.Marshal(v)
}

// UnmarshalText parses JSON text into target.
func UnmarshalText(s string, target any) error {
	return jwon.Unmarshal(s, target)
}

// Register installs an explicit schema for the type of sample, taking
// precedence over its struct tags in every codec using the default registry.
func Register(sample any, fields ...schema.Field) error {
	return schema.Register(reflect.TypeOf(sample), fields...)
}
