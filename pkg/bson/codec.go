// Package bson implements a reflective codec for a length-framed binary
// document format laid out like BSON 1.1.
//
// Structs, string-keyed maps and sequences become documents; sequences are
// documents keyed "0", "1", ... Every document starts with its total length,
// which is backpatched once the body is written, so writers and readers must be
// seekable.
package bson

import (
	"log/slog"

	"github.com/GavinLo/jwbson/internal/arena"
	"github.com/GavinLo/jwbson/internal/trace"
	"github.com/GavinLo/jwbson/pkg/schema"
	"github.com/GavinLo/jwbson/pkg/streamio"
)

var (
	ErrInvalidArgument = schema.ErrInvalidArgument
	ErrUnsupportedType = schema.ErrUnsupportedType
	ErrMalformed       = schema.ErrMalformed
	ErrTruncated       = schema.ErrTruncated
	ErrTypeMismatch    = schema.ErrTypeMismatch
)

type Options struct {
	// Context selects the wire constants; nil means DefaultContext.
	Context *Context
	// Logger receives per-field skip diagnostics at debug level.
	Logger *slog.Logger
	// Registry resolves struct schemas; nil means schema.Default.
	Registry *schema.Registry
	// Trace records an annotated rendering of every call, see Codec.Trace.
	Trace bool
}

// Codec serializes object graphs to and from the binary format. A Codec owns
// scratch state and must not be used by more than one goroutine at a time.
type Codec struct {
	ctx *Context
	log *slog.Logger
	reg *schema.Registry
	rec *trace.Recorder

	scratch []byte
	keyBuf  []byte
	arena   arena.Arena
}

func NewCodec(opts Options) *Codec {
	c := &Codec{
		ctx: opts.Context,
		log: opts.Logger,
		reg: opts.Registry,
		rec: trace.New(opts.Trace),
	}
	if c.ctx == nil {
		c.ctx = DefaultContext()
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	if c.reg == nil {
		c.reg = schema.Default()
	}
	return c
}

// Context returns the wire constants in use.
func (c *Codec) Context() *Context { return c.ctx }

// Trace returns the annotated rendering of the last call, or "" when tracing
// is off.
func (c *Codec) Trace() string { return c.rec.String() }

// Marshal serializes v with the default context.
func Marshal(v any) ([]byte, error) {
	var buf streamio.Buffer
	if err := NewCodec(Options{}).Serialize(v, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes the document at the start of data into target.
func Unmarshal(data []byte, target any) error {
	return NewCodec(Options{}).Deserialize(streamio.NewBuffer(data), target)
}
