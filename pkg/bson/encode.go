package bson

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/GavinLo/jwbson/internal/common"
	"github.com/GavinLo/jwbson/pkg/schema"
	"github.com/GavinLo/jwbson/pkg/streamio"
)

// Serialize writes v as one top-level document. v must be a struct, a
// string-keyed map or a sequence, possibly behind pointers; w must also be an
// io.Seeker.
func (c *Codec) Serialize(v any, w io.Writer) error {
	if v == nil || w == nil {
		return fmt.Errorf("%w: nil value or writer", ErrInvalidArgument)
	}
	ws, ok := w.(io.WriteSeeker)
	if !ok {
		return fmt.Errorf("%w: writer must implement io.Seeker", ErrInvalidArgument)
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
	return c.writeDocument(ws, rv, kind)
}

func (c *Codec) writeDocument(w io.WriteSeeker, v reflect.Value, kind schema.Kind) error {
	start, err := streamio.Position(w)
	if err != nil {
		return err
	}
	var size [common.SizeInt32]byte
	if err := streamio.WriteAll(w, size[:]); err != nil {
		return err
	}
	mark := c.rec.Mark()
	c.rec.Bytes(size[:])
	c.rec.Newline()

	switch kind {
	case schema.KindObject:
		err = c.writeFields(w, v)
	case schema.KindSequence:
		err = c.writeElements(w, v)
	case schema.KindMap:
		err = c.writeEntries(w, v)
	default:
		err = fmt.Errorf("%w: %s is not a document", ErrUnsupportedType, v.Type())
	}
	if err != nil {
		return err
	}

	if err := streamio.WriteAll(w, []byte{c.ctx.Terminator}); err != nil {
		return err
	}
	c.rec.Byte(c.ctx.Terminator)
	c.rec.Newline()

	end, err := streamio.Position(w)
	if err != nil {
		return err
	}
	n := end - start
	if n > math.MaxInt32 {
		return fmt.Errorf("%w: document of %d bytes", ErrUnsupportedType, n)
	}
	patch := common.PutInt32(size[:0], c.ctx.ByteOrder, int32(n))
	if _, err := w.Seek(start, io.SeekStart); err != nil {
		return err
	}
	if err := streamio.WriteAll(w, patch); err != nil {
		return err
	}
	if _, err := w.Seek(end, io.SeekStart); err != nil {
		return err
	}
	c.rec.Patch(mark, patch)
	return nil
}

func (c *Codec) writeFields(w io.WriteSeeker, v reflect.Value) error {
	s, err := c.reg.Of(v.Type())
	if err != nil {
		return err
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if !f.CanSerialize {
			continue
		}
		if _, err := c.writeField(w, f.WireName, f.Get(v), f.Kind); err != nil {
			return fmt.Errorf("%s.%s: %w", s.Type, f.Name, err)
		}
	}
	return nil
}

// writeElements numbers only the elements that were written, so null
// elements leave no gap in the keys.
func (c *Codec) writeElements(w io.WriteSeeker, v reflect.Value) error {
	kind := schema.Classify(v.Type().Elem())
	next := 0
	for i := 0; i < v.Len(); i++ {
		written, err := c.writeField(w, strconv.Itoa(next), v.Index(i), kind)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if written {
			next++
		}
	}
	return nil
}

func (c *Codec) writeEntries(w io.WriteSeeker, v reflect.Value) error {
	kind := schema.Classify(v.Type().Elem())
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return cmp.Compare(a.String(), b.String())
	})
	for _, k := range keys {
		if _, err := c.writeField(w, k.String(), v.MapIndex(k), kind); err != nil {
			return fmt.Errorf("[%q]: %w", k.String(), err)
		}
	}
	return nil
}

// writeField writes one [tag][key][terminator][payload] element. Null values
// and members the format cannot carry produce no output and report false.
func (c *Codec) writeField(w io.WriteSeeker, key string, v reflect.Value, kind schema.Kind) (bool, error) {
	v, ok := schema.Deref(v)
	if !ok || schema.IsNull(v) {
		return false, nil
	}
	if kind == schema.KindDynamic {
		kind = schema.Classify(v.Type())
	}
	if strings.IndexByte(key, c.ctx.Terminator) >= 0 {
		c.log.Debug("bson: skipping key containing the terminator", "key", key)
		return false, nil
	}

	ctx := c.ctx
	buf := c.scratch[:0]
	head := func(tag byte) {
		buf = append(buf, tag)
		buf = append(buf, key...)
		buf = append(buf, ctx.Terminator)
		c.rec.Byte(tag)
		c.rec.Text(key)
		c.rec.Byte(ctx.Terminator)
	}

	switch kind {
	case schema.KindInt32:
		head(ctx.TypeInt32)
		var n int32
		if common.IsUintKind(v.Kind()) {
			n = int32(v.Uint())
		} else {
			n = int32(v.Int())
		}
		buf = c.payload(buf, common.PutInt32(nil, ctx.ByteOrder, n))
	case schema.KindInt64:
		head(ctx.TypeInt64)
		var n int64
		if common.IsUintKind(v.Kind()) {
			n = int64(v.Uint())
		} else {
			n = v.Int()
		}
		buf = c.payload(buf, common.PutInt64(nil, ctx.ByteOrder, n))
	case schema.KindFloat32, schema.KindFloat64:
		head(ctx.TypeDouble)
		if ctx.Float32AsDouble {
			buf = c.payload(buf, common.PutFloat64(nil, ctx.ByteOrder, v.Float()))
		} else {
			buf = c.payload(buf, common.PutFloat32(nil, ctx.ByteOrder, float32(v.Float())))
		}
	case schema.KindBool:
		head(ctx.TypeBool)
		buf = c.payload(buf, common.PutBool(nil, v.Bool(), ctx.ValueTrue, ctx.ValueFalse))
	case schema.KindString:
		s := v.String()
		if len(s) >= math.MaxInt32 {
			return false, fmt.Errorf("%w: string of %d bytes", ErrUnsupportedType, len(s))
		}
		head(ctx.TypeString)
		buf = c.payload(buf, common.PutInt32(nil, ctx.ByteOrder, int32(len(s)+1)))
		buf = append(buf, s...)
		buf = append(buf, ctx.Terminator)
		c.rec.Text(s)
		c.rec.Byte(ctx.Terminator)
	case schema.KindBytes:
		raw := bytesOf(v)
		if len(raw) > math.MaxInt32 {
			return false, fmt.Errorf("%w: binary of %d bytes", ErrUnsupportedType, len(raw))
		}
		head(ctx.TypeBinary)
		buf = c.payload(buf, common.PutInt32(nil, ctx.ByteOrder, int32(len(raw))))
		buf = c.payload(buf, []byte{ctx.SubTypeGeneric})
		buf = c.payload(buf, raw)
	case schema.KindObject, schema.KindMap, schema.KindSequence:
		tag := ctx.TypeDocument
		if kind == schema.KindSequence {
			tag = ctx.TypeArray
		}
		head(tag)
		c.scratch = buf
		if err := streamio.WriteAll(w, buf); err != nil {
			return false, err
		}
		if err := c.writeDocument(w, v, kind); err != nil {
			return false, fmt.Errorf("%q: %w", key, err)
		}
		return true, nil
	default:
		c.log.Debug("bson: skipping unsupported member", "key", key, "type", v.Type().String(), "kind", kind.String())
		return false, nil
	}

	c.rec.Newline()
	c.scratch = buf
	if err := streamio.WriteAll(w, buf); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Codec) payload(buf, b []byte) []byte {
	c.rec.Bytes(b)
	return append(buf, b...)
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
