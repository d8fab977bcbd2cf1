package jwon

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/GavinLo/jwbson/pkg/config"
	"github.com/GavinLo/jwbson/pkg/schema"
)

// None marks a delimiter the grammar does not use.
const None rune = 0

// BytesEncoding renders byte payloads as text. *base64.Encoding satisfies it.
type BytesEncoding interface {
	EncodeToString(src []byte) string
	DecodeString(s string) ([]byte, error)
}

// Context describes the grammar of one textual dialect.
type Context struct {
	ObjectStart rune
	ObjectEnd   rune
	ArrayStart  rune
	ArrayEnd    rune
	// ArrayAsObject writes sequences with the object delimiters and index
	// keys. Readers ignore the keys and keep the order of appearance.
	ArrayAsObject bool

	KeyStart   rune
	KeyEnd     rune
	ValueStart rune
	ValueEnd   rune

	KeyValueSeparator rune
	ValueSeparator    rune

	Quote           rune
	StringNeedQuote bool

	// FloatReserve and DoubleReserve cap the decimal places written for
	// float32 and float64 members. Zero writes the shortest exact form.
	FloatReserve  int
	DoubleReserve int

	BytesEncoding BytesEncoding
}

// JSONContext returns the dialect matching JSON.
func JSONContext() *Context {
	return &Context{
		ObjectStart:       '{',
		ObjectEnd:         '}',
		ArrayStart:        '[',
		ArrayEnd:          ']',
		KeyStart:          '"',
		KeyEnd:            '"',
		ValueStart:        None,
		ValueEnd:          None,
		KeyValueSeparator: ':',
		ValueSeparator:    ',',
		Quote:             '"',
		StringNeedQuote:   true,
		FloatReserve:      3,
		DoubleReserve:     6,
		BytesEncoding:     base64.StdEncoding,
	}
}

// Validate rejects grammars the reader could not tokenize.
func (c *Context) Validate() error {
	if c.ObjectStart == None || c.ObjectEnd == None {
		return fmt.Errorf("%w: object delimiters are required", schema.ErrInvalidArgument)
	}
	if !c.ArrayAsObject && (c.ArrayStart == None || c.ArrayEnd == None) {
		return fmt.Errorf("%w: array delimiters are required unless arrays are objects", schema.ErrInvalidArgument)
	}
	if c.ValueSeparator == None {
		return fmt.Errorf("%w: value separator is required", schema.ErrInvalidArgument)
	}
	if c.KeyValueSeparator == None && c.KeyEnd == None {
		return fmt.Errorf("%w: keys need an end delimiter or a key/value separator", schema.ErrInvalidArgument)
	}
	if c.Quote == '\\' {
		return fmt.Errorf("%w: backslash cannot be the quote", schema.ErrInvalidArgument)
	}
	if c.FloatReserve < 0 || c.DoubleReserve < 0 {
		return fmt.Errorf("%w: negative float reserve", schema.ErrInvalidArgument)
	}
	if c.BytesEncoding == nil {
		return fmt.Errorf("%w: context has no bytes encoding", schema.ErrInvalidArgument)
	}
	for _, pair := range [][2]rune{{c.KeyStart, c.KeyEnd}, {c.ValueStart, c.ValueEnd}} {
		if c.Quote != None && (pair[0] == c.Quote) != (pair[1] == c.Quote) {
			return fmt.Errorf("%w: delimiters %q and %q must both or neither be the quote", schema.ErrInvalidArgument, pair[0], pair[1])
		}
	}

	type delim struct {
		name string
		r    rune
	}
	seen := make(map[rune]string, 7)
	structural := []delim{
		{"object start", c.ObjectStart},
		{"object end", c.ObjectEnd},
		{"key/value separator", c.KeyValueSeparator},
		{"value separator", c.ValueSeparator},
		{"quote", c.Quote},
	}
	if !c.ArrayAsObject {
		structural = append(structural, delim{"array start", c.ArrayStart}, delim{"array end", c.ArrayEnd})
	}
	for _, d := range structural {
		if d.r == None {
			continue
		}
		if d.r <= ' ' {
			return fmt.Errorf("%w: %s %q is whitespace or control", schema.ErrInvalidArgument, d.name, d.r)
		}
		if prev, dup := seen[d.r]; dup {
			return fmt.Errorf("%w: %q used by %s and %s", schema.ErrInvalidArgument, d.r, prev, d.name)
		}
		seen[d.r] = d.name
	}
	for _, d := range []delim{
		{"key start", c.KeyStart},
		{"key end", c.KeyEnd},
		{"value start", c.ValueStart},
		{"value end", c.ValueEnd},
	} {
		if d.r == None || d.r == c.Quote {
			continue
		}
		if d.r <= ' ' {
			return fmt.Errorf("%w: %s %q is whitespace or control", schema.ErrInvalidArgument, d.name, d.r)
		}
		if prev, dup := seen[d.r]; dup {
			return fmt.Errorf("%w: %s %q is already the %s", schema.ErrInvalidArgument, d.name, d.r, prev)
		}
	}
	return nil
}

// valuesQuoted reports whether the value delimiters are the quote, in which
// case every scalar is written between quotes and strings get no second pair.
func (c *Context) valuesQuoted() bool {
	return c.Quote != None && c.ValueStart == c.Quote
}

// delimiter reports whether r is structural outside of quotes.
func (c *Context) delimiter(r rune) bool {
	if r == None {
		return false
	}
	switch r {
	case c.ObjectStart, c.ObjectEnd, c.KeyValueSeparator, c.ValueSeparator:
		return true
	}
	return !c.ArrayAsObject && (r == c.ArrayStart || r == c.ArrayEnd)
}

// sequenceDelimiters returns the runes that open and close a sequence.
func (c *Context) sequenceDelimiters() (rune, rune) {
	if c.ArrayAsObject {
		return c.ObjectStart, c.ObjectEnd
	}
	return c.ArrayStart, c.ArrayEnd
}

type hexEncoding struct{}

func (hexEncoding) EncodeToString(src []byte) string      { return hex.EncodeToString(src) }
func (hexEncoding) DecodeString(s string) ([]byte, error) { return hex.DecodeString(s) }

// HexEncoding renders bytes as lowercase hexadecimal.
var HexEncoding BytesEncoding = hexEncoding{}

// ContextFromConfig builds and validates a context from its file form.
func ContextFromConfig(t config.Text) (*Context, error) {
	c := &Context{
		ArrayAsObject:   t.ArrayAsObject,
		StringNeedQuote: t.StringNeedQuote,
		FloatReserve:    t.FloatReserve,
		DoubleReserve:   t.DoubleReserve,
	}
	for _, ch := range []struct {
		name string
		src  string
		dst  *rune
	}{
		{"object_start", t.ObjectStart, &c.ObjectStart},
		{"object_end", t.ObjectEnd, &c.ObjectEnd},
		{"array_start", t.ArrayStart, &c.ArrayStart},
		{"array_end", t.ArrayEnd, &c.ArrayEnd},
		{"key_start", t.KeyStart, &c.KeyStart},
		{"key_end", t.KeyEnd, &c.KeyEnd},
		{"value_start", t.ValueStart, &c.ValueStart},
		{"value_end", t.ValueEnd, &c.ValueEnd},
		{"key_value_separator", t.KeyValueSeparator, &c.KeyValueSeparator},
		{"value_separator", t.ValueSeparator, &c.ValueSeparator},
		{"quote", t.Quote, &c.Quote},
	} {
		r, err := config.Char(ch.src)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", schema.ErrInvalidArgument, ch.name, err)
		}
		*ch.dst = r
	}
	switch t.BytesEncoding {
	case "", "base64":
		c.BytesEncoding = base64.StdEncoding
	case "base64url":
		c.BytesEncoding = base64.URLEncoding
	case "hex":
		c.BytesEncoding = HexEncoding
	default:
		return nil, fmt.Errorf("%w: bytes encoding %q", schema.ErrInvalidArgument, t.BytesEncoding)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
