package bson

import (
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"

	"github.com/GavinLo/jwbson/internal/common"
	"github.com/GavinLo/jwbson/pkg/schema"
	"github.com/GavinLo/jwbson/pkg/streamio"
)

// maxDepth bounds document nesting on input.
const maxDepth = 1000

var anyMapType = reflect.TypeOf(map[string]any(nil))

// Deserialize reads one top-level document from r into target, which must be a
// non-nil pointer to a struct, a string-keyed map, a sequence or an interface.
// r must also be an io.Seeker. Members absent from the input keep their
// current value.
func (c *Codec) Deserialize(r io.Reader, target any) error {
	if r == nil || target == nil {
		return fmt.Errorf("%w: nil reader or target", ErrInvalidArgument)
	}
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return fmt.Errorf("%w: reader must implement io.Seeker", ErrInvalidArgument)
	}
	if err := c.ctx.Validate(); err != nil {
		return err
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: target must be a non-nil pointer, got %T", ErrInvalidArgument, target)
	}
	c.rec.Reset()
	defer c.arena.Release()

	dst := rv.Elem()
	for dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}

	limit, err := available(rs)
	if err != nil {
		return err
	}

	kind := schema.Classify(dst.Type())
	switch {
	case kind == schema.KindDynamic:
		if !anyMapType.AssignableTo(dst.Type()) {
			return fmt.Errorf("%w: %s cannot hold a document", ErrTypeMismatch, dst.Type())
		}
		m := reflect.MakeMap(anyMapType)
		if _, err := c.readDocument(rs, m, schema.KindMap, 0, limit); err != nil {
			return err
		}
		dst.Set(m)
		return nil
	case kind.Container():
		// decode into a shallow copy so a failed call leaves target as it was
		stage := reflect.New(dst.Type()).Elem()
		merge := kind == schema.KindMap && !dst.IsNil()
		if !merge {
			stage.Set(dst)
		}
		if _, err := c.readDocument(rs, stage, kind, 0, limit); err != nil {
			return err
		}
		if !merge {
			dst.Set(stage)
			return nil
		}
		iter := stage.MapRange()
		for iter.Next() {
			dst.SetMapIndex(iter.Key(), iter.Value())
		}
		return nil
	default:
		return fmt.Errorf("%w: top-level %s", ErrUnsupportedType, dst.Type())
	}
}

// available returns the number of bytes left in s, capped to the largest
// document length.
func available(s io.Seeker) (int, error) {
	cur, err := streamio.Position(s)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return int(min(end-cur, math.MaxInt32)), nil
}

// readDocument decodes one length-framed document into dst and returns the
// number of bytes it occupied. limit is the number of bytes the enclosing
// document has left.
func (c *Codec) readDocument(r io.ReadSeeker, dst reflect.Value, kind schema.Kind, depth, limit int) (int, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, maxDepth)
	}
	size, n, err := streamio.ReadInt32(r, c.ctx.ByteOrder)
	if err != nil {
		return 0, readErr(err)
	}
	if size < common.SizeInt32+1 {
		return 0, fmt.Errorf("%w: document length %d", ErrMalformed, size)
	}
	if int(size) > limit {
		if depth == 0 {
			return 0, fmt.Errorf("%w: document length %d, %d bytes available", ErrTruncated, size, limit)
		}
		return 0, fmt.Errorf("%w: document length %d overruns parent", ErrMalformed, size)
	}
	remaining := int(size) - n

	var s *schema.Struct
	switch kind {
	case schema.KindObject:
		if s, err = c.reg.Of(dst.Type()); err != nil {
			return 0, err
		}
	case schema.KindMap:
		if dst.IsNil() {
			dst.Set(reflect.MakeMap(dst.Type()))
		}
	case schema.KindSequence:
		c.arena.Begin(depth)
	}

	for remaining > 1 {
		n, err := c.readElement(r, dst, kind, s, depth, remaining-1)
		if err != nil {
			return 0, err
		}
		if n <= 0 {
			return 0, fmt.Errorf("%w: empty element", ErrMalformed)
		}
		remaining -= n
	}
	if remaining != 1 {
		return 0, fmt.Errorf("%w: elements overrun document length %d", ErrMalformed, size)
	}
	term, _, err := streamio.ReadByte(r)
	if err != nil {
		return 0, readErr(err)
	}
	if term != c.ctx.Terminator {
		return 0, fmt.Errorf("%w: document terminator 0x%02X", ErrMalformed, term)
	}
	if kind == schema.KindSequence {
		if dropped := c.arena.Materialize(dst, depth); dropped > 0 {
			c.log.Debug("bson: dropping surplus array elements", "type", dst.Type().String(), "dropped", dropped)
		}
	}
	return int(size), nil
}

// readElement decodes one [tag][key][payload] element of the current document
// and returns the number of bytes consumed.
func (c *Codec) readElement(r io.ReadSeeker, dst reflect.Value, kind schema.Kind, s *schema.Struct, depth, limit int) (int, error) {
	tag, consumed, err := streamio.ReadByte(r)
	if err != nil {
		return 0, readErr(err)
	}
	key, n, err := streamio.ReadDelimited(r, c.ctx.Terminator, c.keyBuf)
	c.keyBuf = key[:0]
	if err != nil {
		return 0, readErr(err)
	}
	consumed += n
	if consumed > limit {
		return 0, fmt.Errorf("%w: key overruns document", ErrMalformed)
	}
	limit -= consumed
	name := string(key)
	c.rec.Linef("Find Key=%s Type=0x%02X", name, tag)

	var (
		target reflect.Type
		field  *schema.Field
	)
	switch kind {
	case schema.KindObject:
		f, ok := s.Lookup(name)
		if ok && f.CanDeserialize {
			field, target = f, f.Type
		}
	case schema.KindMap, schema.KindSequence:
		target = dst.Type().Elem()
	}
	if target == nil {
		n, err := c.skipValue(r, tag, limit)
		if err != nil {
			return 0, fmt.Errorf("%q: %w", name, err)
		}
		return consumed + n, nil
	}

	val, ok, n, err := c.readValue(r, tag, target, depth, limit)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", name, err)
	}
	consumed += n
	if !ok {
		c.log.Debug("bson: skipping mismatched element", "key", name, "tag", tag, "target", target.String())
		return consumed, nil
	}

	switch kind {
	case schema.KindObject:
		field.Set(dst, val)
		if c.rec.Enabled() {
			c.rec.Linef("%s.%s=%v", s.Type.Name(), field.Name, traceValue(val))
		}
	case schema.KindMap:
		dst.SetMapIndex(reflect.ValueOf(name).Convert(dst.Type().Key()), val)
		if c.rec.Enabled() {
			c.rec.Linef("%s[%s]=%v", dst.Type(), name, traceValue(val))
		}
	case schema.KindSequence:
		c.arena.Append(depth, val)
		if c.rec.Enabled() {
			c.rec.Linef("%s[%d]=%v", dst.Type(), c.arena.Len(depth)-1, traceValue(val))
		}
	}
	return consumed, nil
}

// readValue decodes the payload of an element of type tag into a value of type
// t. ok is false when the payload was consumed but cannot be stored in t.
func (c *Codec) readValue(r io.ReadSeeker, tag byte, t reflect.Type, depth, limit int) (reflect.Value, bool, int, error) {
	switch t.Kind() {
	case reflect.Pointer:
		v, ok, n, err := c.readValue(r, tag, t.Elem(), depth, limit)
		if err != nil || !ok {
			return v, ok, n, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		return p, true, n, nil
	case reflect.Interface:
		v, ok, n, err := c.readNatural(r, tag, depth, limit)
		if err != nil || !ok {
			return v, ok, n, err
		}
		return v, v.Type().AssignableTo(t), n, nil
	}

	ctx := c.ctx
	switch tag {
	case ctx.TypeDocument, ctx.TypeArray:
		kind := schema.Classify(t)
		want := ctx.TypeDocument
		if kind == schema.KindSequence {
			want = ctx.TypeArray
		}
		if !kind.Container() || tag != want {
			n, err := c.skipDocument(r, limit)
			return reflect.Value{}, false, n, err
		}
		v := reflect.New(t).Elem()
		n, err := c.readDocument(r, v, kind, depth+1, limit)
		return v, err == nil, n, err
	}

	sc, n, err := c.readScalar(r, tag, limit)
	if err != nil || sc.kind == schema.KindInvalid {
		return reflect.Value{}, false, n, err
	}
	v, ok := sc.coerce(t)
	return v, ok, n, nil
}

// readNatural decodes an element into the Go value its wire type maps to.
func (c *Codec) readNatural(r io.ReadSeeker, tag byte, depth, limit int) (reflect.Value, bool, int, error) {
	switch tag {
	case c.ctx.TypeDocument:
		m := reflect.MakeMap(anyMapType)
		n, err := c.readDocument(r, m, schema.KindMap, depth+1, limit)
		return m, err == nil, n, err
	case c.ctx.TypeArray:
		s := reflect.New(reflect.TypeOf([]any(nil))).Elem()
		n, err := c.readDocument(r, s, schema.KindSequence, depth+1, limit)
		return s, err == nil, n, err
	}
	sc, n, err := c.readScalar(r, tag, limit)
	if err != nil || sc.kind == schema.KindInvalid {
		return reflect.Value{}, false, n, err
	}
	return sc.natural(), true, n, nil
}

// readScalar reads a fixed-width, string or binary payload. Standard element
// types without a Go mapping are skipped and reported with KindInvalid.
func (c *Codec) readScalar(r io.ReadSeeker, tag byte, limit int) (scalar, int, error) {
	ctx := c.ctx
	switch tag {
	case ctx.TypeInt32:
		b, n, err := c.readN(r, common.SizeInt32, limit)
		if err != nil {
			return scalar{}, n, err
		}
		return scalar{kind: schema.KindInt32, i: int64(common.Int32(b, ctx.ByteOrder))}, n, nil
	case ctx.TypeInt64:
		b, n, err := c.readN(r, common.SizeInt64, limit)
		if err != nil {
			return scalar{}, n, err
		}
		return scalar{kind: schema.KindInt64, i: common.Int64(b, ctx.ByteOrder)}, n, nil
	case ctx.TypeDouble:
		b, n, err := c.readN(r, ctx.floatWidth(), limit)
		if err != nil {
			return scalar{}, n, err
		}
		f := float64(common.Float32(b, ctx.ByteOrder))
		if ctx.Float32AsDouble {
			f = common.Float64(b, ctx.ByteOrder)
		}
		return scalar{kind: schema.KindFloat64, f: f}, n, nil
	case ctx.TypeBool:
		b, n, err := c.readN(r, common.SizeBool, limit)
		if err != nil {
			return scalar{}, n, err
		}
		switch b[0] {
		case ctx.ValueTrue:
			return scalar{kind: schema.KindBool, b: true}, n, nil
		case ctx.ValueFalse:
			return scalar{kind: schema.KindBool}, n, nil
		}
		c.log.Debug("bson: unknown boolean byte", "value", b[0])
		return scalar{}, n, nil
	case ctx.TypeString:
		l, n, err := streamio.ReadInt32(r, ctx.ByteOrder)
		if err != nil {
			return scalar{}, n, readErr(err)
		}
		if l < 1 || int(l) > limit-n {
			return scalar{}, n, fmt.Errorf("%w: string length %d", ErrMalformed, l)
		}
		b, m, err := c.readN(r, int(l), limit-n)
		if err != nil {
			return scalar{}, n + m, err
		}
		if b[l-1] != ctx.Terminator {
			return scalar{}, n + m, fmt.Errorf("%w: unterminated string", ErrMalformed)
		}
		return scalar{kind: schema.KindString, s: string(b[:l-1])}, n + m, nil
	case ctx.TypeBinary:
		l, n, err := streamio.ReadInt32(r, ctx.ByteOrder)
		if err != nil {
			return scalar{}, n, readErr(err)
		}
		if l < 0 || int(l)+1 > limit-n {
			return scalar{}, n, fmt.Errorf("%w: binary length %d", ErrMalformed, l)
		}
		b, m, err := c.readN(r, int(l)+1, limit-n)
		if err != nil {
			return scalar{}, n + m, err
		}
		raw := make([]byte, l)
		copy(raw, b[1:])
		return scalar{kind: schema.KindBytes, raw: raw}, n + m, nil
	}
	n, err := c.skipStandard(r, tag, limit)
	return scalar{}, n, err
}

// readN reads exactly n bytes into the codec scratch buffer.
func (c *Codec) readN(r io.Reader, n, limit int) ([]byte, int, error) {
	if n > limit {
		return nil, 0, fmt.Errorf("%w: value of %d bytes overruns document", ErrMalformed, n)
	}
	if cap(c.scratch) < n {
		c.scratch = make([]byte, n)
	}
	b := c.scratch[:n]
	m, err := streamio.ReadFull(r, b)
	if err != nil {
		return nil, m, readErr(err)
	}
	return b, m, nil
}

func readErr(err error) error {
	if errors.Is(err, streamio.ErrShortRead) {
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	return err
}

func traceValue(v reflect.Value) any {
	if d, ok := schema.Deref(v); ok {
		return d.Interface()
	}
	return nil
}
