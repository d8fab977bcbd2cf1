package bson

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/GavinLo/jwbson/pkg/config"
	"github.com/GavinLo/jwbson/pkg/schema"
)

// Context holds the wire constants of the binary format.
type Context struct {
	TypeDouble   byte
	TypeString   byte
	TypeDocument byte
	TypeArray    byte
	TypeBinary   byte
	TypeBool     byte
	TypeInt32    byte
	TypeInt64    byte

	SubTypeGeneric byte

	ValueTrue  byte
	ValueFalse byte
	Terminator byte

	ByteOrder binary.ByteOrder

	// Float32AsDouble widens float32 members to 8-byte doubles. When unset
	// every float is written and read as 4 bytes, which is not standard BSON.
	Float32AsDouble bool
}

// DefaultContext returns the BSON 1.1 constants.
func DefaultContext() *Context {
	return &Context{
		TypeDouble:      0x01,
		TypeString:      0x02,
		TypeDocument:    0x03,
		TypeArray:       0x04,
		TypeBinary:      0x05,
		TypeBool:        0x08,
		TypeInt32:       0x10,
		TypeInt64:       0x12,
		SubTypeGeneric:  0x00,
		ValueTrue:       0x01,
		ValueFalse:      0x00,
		Terminator:      0x00,
		ByteOrder:       binary.LittleEndian,
		Float32AsDouble: true,
	}
}

// Validate rejects contexts the decoder could not read back unambiguously.
func (c *Context) Validate() error {
	if c.ByteOrder == nil {
		return fmt.Errorf("%w: context has no byte order", schema.ErrInvalidArgument)
	}
	if c.ValueTrue == c.ValueFalse {
		return fmt.Errorf("%w: true and false share byte 0x%02X", schema.ErrInvalidArgument, c.ValueTrue)
	}
	seen := make(map[byte]string, 8)
	for _, t := range []struct {
		name string
		b    byte
	}{
		{"double", c.TypeDouble},
		{"string", c.TypeString},
		{"document", c.TypeDocument},
		{"array", c.TypeArray},
		{"binary", c.TypeBinary},
		{"bool", c.TypeBool},
		{"int32", c.TypeInt32},
		{"int64", c.TypeInt64},
	} {
		if prev, dup := seen[t.b]; dup {
			return fmt.Errorf("%w: tag 0x%02X used by %s and %s", schema.ErrInvalidArgument, t.b, prev, t.name)
		}
		seen[t.b] = t.name
	}
	return nil
}

func (c *Context) floatWidth() int {
	if c.Float32AsDouble {
		return 8
	}
	return 4
}

// ContextFromConfig builds and validates a context from its file form.
func ContextFromConfig(b config.Binary) (*Context, error) {
	c := &Context{
		TypeDouble:      b.TypeDouble,
		TypeString:      b.TypeString,
		TypeDocument:    b.TypeDocument,
		TypeArray:       b.TypeArray,
		TypeBinary:      b.TypeBinary,
		TypeBool:        b.TypeBool,
		TypeInt32:       b.TypeInt32,
		TypeInt64:       b.TypeInt64,
		SubTypeGeneric:  b.SubTypeGeneric,
		ValueTrue:       b.ValueTrue,
		ValueFalse:      b.ValueFalse,
		Terminator:      b.Terminator,
		Float32AsDouble: b.Float32AsDouble,
	}
	switch strings.ToLower(b.ByteOrder) {
	case "", "little":
		c.ByteOrder = binary.LittleEndian
	case "big":
		c.ByteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: byte order %q", schema.ErrInvalidArgument, b.ByteOrder)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
