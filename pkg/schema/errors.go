package schema

import "errors"

// Error classes shared by both codecs. Callers match them with errors.Is; the
// codecs wrap them with position and key context.
var (
	ErrInvalidArgument = errors.New("jwbson: invalid argument")
	ErrUnsupportedType = errors.New("jwbson: unsupported type")
	ErrMalformed       = errors.New("jwbson: malformed input")
	ErrTruncated       = errors.New("jwbson: truncated input")
	ErrTypeMismatch    = errors.New("jwbson: type mismatch")

	ErrNotStruct     = errors.New("jwbson: expected struct")
	ErrDuplicateName = errors.New("jwbson: duplicate wire name")
)
