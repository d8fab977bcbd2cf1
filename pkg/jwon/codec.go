// Package jwon implements a reflective codec for JSON-like text whose
// punctuation is configurable. The same traversal as the binary codec walks
// the object graph, so both formats agree on which members exist and how
// sequences and maps are represented.
package jwon

import (
	"log/slog"
	"strings"

	"github.com/GavinLo/jwbson/internal/arena"
	"github.com/GavinLo/jwbson/internal/trace"
	"github.com/GavinLo/jwbson/pkg/schema"
)

var (
	ErrInvalidArgument = schema.ErrInvalidArgument
	ErrUnsupportedType = schema.ErrUnsupportedType
	ErrMalformed       = schema.ErrMalformed
	ErrTruncated       = schema.ErrTruncated
	ErrTypeMismatch    = schema.ErrTypeMismatch
)

type Options struct {
	// Context selects the dialect; nil means JSONContext.
	Context *Context
	// Logger receives per-member skip diagnostics at debug level.
	Logger *slog.Logger
	// Registry resolves struct schemas; nil means schema.Default.
	Registry *schema.Registry
	// Trace records the tokens seen while decoding and the text written while
	// encoding, see Codec.Trace.
	Trace bool
}

// Codec converts object graphs to and from text. Like the binary codec it
// keeps scratch state and is not safe for concurrent use.
type Codec struct {
	ctx *Context
	log *slog.Logger
	reg *schema.Registry
	rec *trace.Recorder

	out   []byte
	arena arena.Arena

	src      runeSource
	key, val token
}

func NewCodec(opts Options) *Codec {
	c := &Codec{
		ctx: opts.Context,
		log: opts.Logger,
		reg: opts.Registry,
		rec: trace.New(opts.Trace),
	}
	if c.ctx == nil {
		c.ctx = JSONContext()
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	if c.reg == nil {
		c.reg = schema.Default()
	}
	return c
}

func (c *Codec) Context() *Context { return c.ctx }

// Trace returns the recording of the last call, or "" when tracing is off.
func (c *Codec) Trace() string { return c.rec.String() }

// Marshal renders v with a fresh codec in the JSON dialect.
func Marshal(v any) (string, error) {
	return NewCodec(Options{}).SerializeText(v)
}

// Unmarshal parses JSON-dialect text into target with a fresh codec.
func Unmarshal(s string, target any) error {
	return NewCodec(Options{}).Deserialize(strings.NewReader(s), target)
}
