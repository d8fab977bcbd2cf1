package jwon

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/GavinLo/jwbson/pkg/schema"
	"github.com/GavinLo/jwbson/pkg/streamio"
)

// Serialize writes v as one top-level object or sequence. v must be a struct,
// a string-keyed map or a sequence, possibly behind pointers.
func (c *Codec) Serialize(v any, w io.Writer) error {
	return c.serialize(nil, v, w)
}

// SerializeNamed writes name as a leading key before the top-level container.
func (c *Codec) SerializeNamed(name string, v any, w io.Writer) error {
	return c.serialize(&name, v, w)
}

// SerializeText returns the rendering of v.
func (c *Codec) SerializeText(v any) (string, error) {
	var sb strings.Builder
	if err := c.Serialize(v, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (c *Codec) serialize(name *string, v any, w io.Writer) error {
	if v == nil || w == nil {
		return fmt.Errorf("%w: nil value or writer", ErrInvalidArgument)
	}
	if err := c.ctx.Validate(); err != nil {
		return err
	}
	rv, ok := schema.Deref(reflect.ValueOf(v))
	if !ok || schema.IsNull(rv) {
		return fmt.Errorf("%w: nil value", ErrInvalidArgument)
	}
	kind := schema.Classify(rv.Type())
	if !kind.Container() {
		return fmt.Errorf("%w: top-level %s", ErrUnsupportedType, rv.Type())
	}
	c.rec.Reset()
	c.out = c.out[:0]
	if err := c.writeContainer(name, rv, kind); err != nil {
		return err
	}
	if c.rec.Enabled() {
		c.rec.Text(string(c.out))
	}
	return streamio.WriteAll(w, c.out)
}

func (c *Codec) writeContainer(key *string, v reflect.Value, kind schema.Kind) error {
	c.writeKey(key)
	open, end := c.ctx.ObjectStart, c.ctx.ObjectEnd
	if kind == schema.KindSequence {
		open, end = c.ctx.sequenceDelimiters()
	}
	c.char(open)

	var err error
	switch kind {
	case schema.KindObject:
		err = c.writeFields(v)
	case schema.KindSequence:
		err = c.writeElements(v)
	case schema.KindMap:
		err = c.writeEntries(v)
	default:
		err = fmt.Errorf("%w: %s is not a container", ErrUnsupportedType, v.Type())
	}
	if err != nil {
		return err
	}
	c.char(end)
	return nil
}

func (c *Codec) writeFields(v reflect.Value) error {
	s, err := c.reg.Of(v.Type())
	if err != nil {
		return err
	}
	sep := false
	for i := range s.Fields {
		f := &s.Fields[i]
		if !f.CanSerialize {
			continue
		}
		written, err := c.writeMember(&f.WireName, f.Get(v), f.Kind, sep)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", s.Type, f.Name, err)
		}
		sep = sep || written
	}
	return nil
}

// writeElements carries index keys only when sequences are written as
// objects. Like the binary codec, null elements consume no index.
func (c *Codec) writeElements(v reflect.Value) error {
	kind := schema.Classify(v.Type().Elem())
	sep := false
	next := 0
	for i := 0; i < v.Len(); i++ {
		var key *string
		if c.ctx.ArrayAsObject {
			k := strconv.Itoa(next)
			key = &k
		}
		written, err := c.writeMember(key, v.Index(i), kind, sep)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if written {
			sep = true
			next++
		}
	}
	return nil
}

func (c *Codec) writeEntries(v reflect.Value) error {
	kind := schema.Classify(v.Type().Elem())
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return cmp.Compare(a.String(), b.String())
	})
	sep := false
	for _, k := range keys {
		name := k.String()
		written, err := c.writeMember(&name, v.MapIndex(k), kind, sep)
		if err != nil {
			return fmt.Errorf("[%q]: %w", name, err)
		}
		sep = sep || written
	}
	return nil
}

// writeMember writes one key/value pair, preceded by the value separator when
// sep is set. Null values and members the format cannot carry produce no
// output and report false.
func (c *Codec) writeMember(key *string, v reflect.Value, kind schema.Kind, sep bool) (bool, error) {
	v, ok := schema.Deref(v)
	if !ok || schema.IsNull(v) {
		return false, nil
	}
	if kind == schema.KindDynamic {
		kind = schema.Classify(v.Type())
	}
	if kind.Container() {
		if sep {
			c.char(c.ctx.ValueSeparator)
		}
		if err := c.writeContainer(key, v, kind); err != nil {
			name := ""
			if key != nil {
				name = *key
			}
			return false, fmt.Errorf("%q: %w", name, err)
		}
		return true, nil
	}

	text, ok := c.scalarText(v, kind)
	if !ok {
		name := ""
		if key != nil {
			name = *key
		}
		c.log.Debug("jwon: skipping unsupported member", "key", name, "type", v.Type().String(), "kind", kind.String())
		return false, nil
	}
	if sep {
		c.char(c.ctx.ValueSeparator)
	}
	c.writeKey(key)
	c.char(c.ctx.ValueStart)
	c.out = append(c.out, text...)
	c.char(c.ctx.ValueEnd)
	return true, nil
}

func (c *Codec) scalarText(v reflect.Value, kind schema.Kind) (string, bool) {
	switch kind {
	case schema.KindInt32, schema.KindInt64:
		if v.CanUint() {
			return strconv.FormatUint(v.Uint(), 10), true
		}
		return strconv.FormatInt(v.Int(), 10), true
	case schema.KindFloat32:
		return formatFloat(v.Float(), 32, c.ctx.FloatReserve)
	case schema.KindFloat64:
		return formatFloat(v.Float(), 64, c.ctx.DoubleReserve)
	case schema.KindBool:
		return strconv.FormatBool(v.Bool()), true
	case schema.KindString:
		if c.ctx.valuesQuoted() {
			return string(appendEscaped(nil, v.String(), c.ctx.Quote)), true
		}
		if c.ctx.StringNeedQuote && c.ctx.Quote != None {
			return c.quote(v.String()), true
		}
		return v.String(), true
	case schema.KindBytes:
		s := c.ctx.BytesEncoding.EncodeToString(bytesOf(v))
		if c.ctx.Quote != None && !c.ctx.valuesQuoted() {
			return c.quote(s), true
		}
		return s, true
	}
	return "", false
}

func (c *Codec) writeKey(key *string) {
	if key == nil {
		return
	}
	c.char(c.ctx.KeyStart)
	if c.ctx.KeyStart == c.ctx.Quote && c.ctx.Quote != None {
		c.out = appendEscaped(c.out, *key, c.ctx.Quote)
	} else {
		c.out = append(c.out, *key...)
	}
	c.char(c.ctx.KeyEnd)
	c.char(c.ctx.KeyValueSeparator)
}

func (c *Codec) char(r rune) {
	if r != None {
		c.out = utf8.AppendRune(c.out, r)
	}
}

func (c *Codec) quote(s string) string {
	b := make([]byte, 0, len(s)+2)
	b = utf8.AppendRune(b, c.ctx.Quote)
	b = appendEscaped(b, s, c.ctx.Quote)
	b = utf8.AppendRune(b, c.ctx.Quote)
	return string(b)
}

func appendEscaped(b []byte, s string, quote rune) []byte {
	for _, r := range s {
		switch {
		case r == quote || r == '\\':
			b = append(b, '\\')
			b = utf8.AppendRune(b, r)
		case r == '\n':
			b = append(b, `\n`...)
		case r == '\r':
			b = append(b, `\r`...)
		case r == '\t':
			b = append(b, `\t`...)
		case r < ' ':
			b = append(b, `\u00`...)
			b = append(b, "0123456789abcdef"[r>>4], "0123456789abcdef"[r&0xF])
		default:
			b = utf8.AppendRune(b, r)
		}
	}
	return b
}

// formatFloat writes f with at most reserve decimals and no trailing zeros.
// A reserve of zero selects the shortest form that reads back exactly.
func formatFloat(f float64, bits, reserve int) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if reserve == 0 {
		abs := math.Abs(f)
		if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
			return strconv.FormatFloat(f, 'e', -1, bits), true
		}
		return strconv.FormatFloat(f, 'f', -1, bits), true
	}
	s := strconv.FormatFloat(f, 'f', reserve, bits)
	if strings.IndexByte(s, '.') >= 0 {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s, true
}

func bytesOf(v reflect.Value) []byte {
	if v.Kind() == reflect.Slice {
		return v.Bytes()
	}
	out := make([]byte, v.Len())
	for i := range out {
		out[i] = byte(v.Index(i).Uint())
	}
	return out
}
