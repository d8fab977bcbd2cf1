package jwon

import (
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/GavinLo/jwbson/pkg/schema"
)

// maxDepth bounds container nesting on input.
const maxDepth = 1000

var (
	anyMapType   = reflect.TypeOf(map[string]any(nil))
	anySliceType = reflect.TypeOf([]any(nil))
)

// Deserialize reads one top-level container from r into target, which must be
// a non-nil pointer to a struct, a string-keyed map, a sequence or an
// interface. A leading key before the container is ignored. Members absent
// from the input keep their current value.
func (c *Codec) Deserialize(r io.Reader, target any) error {
	if r == nil || target == nil {
		return fmt.Errorf("%w: nil reader or target", ErrInvalidArgument)
	}
	if err := c.ctx.Validate(); err != nil {
		return err
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: target must be a non-nil pointer, got %T", ErrInvalidArgument, target)
	}
	c.rec.Reset()
	c.src.reset(r)
	defer c.arena.Release()

	dst := rv.Elem()
	for dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}

	kind := schema.Classify(dst.Type())
	if kind != schema.KindDynamic && !kind.Container() {
		return fmt.Errorf("%w: top-level %s", ErrUnsupportedType, dst.Type())
	}
	open, err := c.seekContainer()
	if err != nil {
		return err
	}

	if kind == schema.KindDynamic {
		v, vk, ok := c.makeNested(dst.Type(), open)
		if !ok {
			return fmt.Errorf("%w: %s cannot hold %q", ErrTypeMismatch, dst.Type(), open)
		}
		if err := c.parseContainer(v, vk, c.closer(open), 0); err != nil {
			return err
		}
		dst.Set(v)
		return nil
	}

	if !c.accepts(kind, open) {
		return fmt.Errorf("%w: %s cannot start with %q", ErrTypeMismatch, dst.Type(), open)
	}
	// decode into a shallow copy so a failed call leaves target as it was
	stage := reflect.New(dst.Type()).Elem()
	merge := kind == schema.KindMap && !dst.IsNil()
	if !merge {
		stage.Set(dst)
	}
	if err := c.parseContainer(stage, kind, c.closer(open), 0); err != nil {
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
}

// DeserializeText parses s into target.
func (c *Codec) DeserializeText(s string, target any) error {
	return c.Deserialize(strings.NewReader(s), target)
}

// seekContainer consumes input up to and including the first opening
// delimiter. Everything before it is read as a key and dropped.
func (c *Codec) seekContainer() (rune, error) {
	c.key.reset()
	for {
		r, err := c.src.next()
		if err != nil {
			return 0, err
		}
		if !c.key.inQuote && c.opener(r) {
			c.key.reset()
			return r, nil
		}
		if _, err := c.feed(&c.key, r, c.ctx.KeyStart, c.ctx.KeyEnd); err != nil {
			return 0, err
		}
	}
}

func (c *Codec) opener(r rune) bool {
	return r == c.ctx.ObjectStart || (!c.ctx.ArrayAsObject && r == c.ctx.ArrayStart)
}

func (c *Codec) closer(open rune) rune {
	if open == c.ctx.ObjectStart {
		return c.ctx.ObjectEnd
	}
	return c.ctx.ArrayEnd
}

// accepts reports whether a container of kind may open with r.
func (c *Codec) accepts(kind schema.Kind, r rune) bool {
	switch kind {
	case schema.KindObject, schema.KindMap:
		return r == c.ctx.ObjectStart
	case schema.KindSequence:
		open, _ := c.ctx.sequenceDelimiters()
		return r == open
	}
	return false
}

// parseContainer reads the members of the container whose opening delimiter
// was just consumed, up to and including closer. An invalid dst discards the
// members while keeping the delimiters balanced.
func (c *Codec) parseContainer(dst reflect.Value, kind schema.Kind, closer rune, depth int) error {
	if depth >= maxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, maxDepth)
	}
	var s *schema.Struct
	if dst.IsValid() {
		switch kind {
		case schema.KindObject:
			var err error
			if s, err = c.reg.Of(dst.Type()); err != nil {
				return err
			}
		case schema.KindMap:
			if dst.IsNil() {
				dst.Set(reflect.MakeMap(dst.Type()))
			}
		case schema.KindSequence:
			c.arena.Begin(depth)
		}
	}

	ctx := c.ctx
	keyed := kind != schema.KindSequence || ctx.ArrayAsObject
	var (
		key    string
		hasKey bool
	)
	c.key.reset()
	c.val.reset()

	takeKey := func() {
		key, hasKey = c.key.text(), true
		c.key.reset()
		c.rec.Linef("Find Key=%s", key)
	}
	takeValue := func() {
		c.assign(dst, kind, s, key, hasKey, depth)
		c.val.reset()
		hasKey = false
	}

	for {
		r, err := c.src.next()
		if err != nil {
			return err
		}

		switch {
		case c.key.inQuote:
			done, err := c.feed(&c.key, r, ctx.KeyStart, ctx.KeyEnd)
			if err != nil {
				return err
			}
			if done {
				takeKey()
			}
		case c.val.inQuote:
			done, err := c.feed(&c.val, r, ctx.ValueStart, ctx.ValueEnd)
			if err != nil {
				return err
			}
			if done {
				takeValue()
			}
		case c.opener(r):
			if err := c.parseNested(dst, kind, s, key, hasKey, r, depth); err != nil {
				return err
			}
			hasKey = false
			c.key.reset()
			c.val.reset()
		case r == closer:
			if c.val.active {
				takeValue()
			}
			if dst.IsValid() && kind == schema.KindSequence {
				if dropped := c.arena.Materialize(dst, depth); dropped > 0 {
					c.log.Debug("jwon: dropping surplus array elements", "type", dst.Type().String(), "dropped", dropped)
				}
			}
			return nil
		case r == ctx.ObjectEnd || (!ctx.ArrayAsObject && r == ctx.ArrayEnd):
			return fmt.Errorf("%w: unexpected %q at offset %d", ErrMalformed, r, c.src.off)
		case ctx.KeyValueSeparator != None && r == ctx.KeyValueSeparator:
			if keyed && !hasKey && c.key.active {
				takeKey()
			}
		case r == ctx.ValueSeparator:
			if c.val.active {
				takeValue()
			}
			hasKey = false
			c.key.reset()
		case keyed && !hasKey:
			done, err := c.feed(&c.key, r, ctx.KeyStart, ctx.KeyEnd)
			if err != nil {
				return err
			}
			if done {
				takeKey()
			}
		default:
			done, err := c.feed(&c.val, r, ctx.ValueStart, ctx.ValueEnd)
			if err != nil {
				return err
			}
			if done {
				takeValue()
			}
		}
	}
}

// slot resolves the declared type of the member named key, or of the next
// element. A nil type means the member is not wanted.
func (c *Codec) slot(dst reflect.Value, kind schema.Kind, s *schema.Struct, key string, hasKey bool) (reflect.Type, *schema.Field) {
	if !dst.IsValid() {
		return nil, nil
	}
	switch kind {
	case schema.KindObject:
		if !hasKey {
			return nil, nil
		}
		f, ok := s.Lookup(key)
		if !ok || !f.CanDeserialize {
			return nil, nil
		}
		return f.Type, f
	case schema.KindMap:
		if !hasKey {
			return nil, nil
		}
		return dst.Type().Elem(), nil
	case schema.KindSequence:
		return dst.Type().Elem(), nil
	}
	return nil, nil
}

func (c *Codec) store(dst reflect.Value, kind schema.Kind, s *schema.Struct, f *schema.Field, key string, v reflect.Value, depth int) {
	switch kind {
	case schema.KindObject:
		f.Set(dst, v)
		if c.rec.Enabled() {
			c.rec.Linef("%s.%s=%v", s.Type.Name(), f.Name, traceValue(v))
		}
	case schema.KindMap:
		dst.SetMapIndex(reflect.ValueOf(key).Convert(dst.Type().Key()), v)
		if c.rec.Enabled() {
			c.rec.Linef("%s[%s]=%v", dst.Type(), key, traceValue(v))
		}
	case schema.KindSequence:
		c.arena.Append(depth, v)
		if c.rec.Enabled() {
			c.rec.Linef("%s[%d]=%v", dst.Type(), c.arena.Len(depth)-1, traceValue(v))
		}
	}
}

// assign parses the completed value token into its slot. Values that do not
// fit are dropped and the pair is skipped.
func (c *Codec) assign(dst reflect.Value, kind schema.Kind, s *schema.Struct, key string, hasKey bool, depth int) {
	text, quoted := c.val.text(), c.val.quoted
	if !quoted && text == "null" {
		return
	}
	t, f := c.slot(dst, kind, s, key, hasKey)
	if t == nil {
		return
	}
	v, ok := c.parseScalar(text, quoted, t)
	if !ok {
		c.log.Debug("jwon: skipping mismatched value", "key", key, "value", text, "target", t.String())
		return
	}
	c.store(dst, kind, s, f, key, v, depth)
}

// parseNested decodes the container opened by open into the slot for key,
// or consumes and discards it when the slot cannot hold it.
func (c *Codec) parseNested(dst reflect.Value, kind schema.Kind, s *schema.Struct, key string, hasKey bool, open rune, depth int) error {
	closer := c.closer(open)
	t, f := c.slot(dst, kind, s, key, hasKey)
	v, vk, ok := c.makeNested(t, open)
	if !ok {
		if t != nil {
			c.log.Debug("jwon: skipping mismatched container", "key", key, "open", string(open), "target", t.String())
		}
		discard := schema.KindObject
		if open != c.ctx.ObjectStart {
			discard = schema.KindSequence
		}
		return c.parseContainer(reflect.Value{}, discard, closer, depth+1)
	}
	if err := c.parseContainer(v, vk, closer, depth+1); err != nil {
		if hasKey {
			return fmt.Errorf("%q: %w", key, err)
		}
		return err
	}
	c.store(dst, kind, s, f, key, wrap(v, t), depth)
	return nil
}

// makeNested allocates the container a slot of type t receives when a
// container opening with open is read. Interfaces receive map[string]any or
// []any.
func (c *Codec) makeNested(t reflect.Type, open rune) (reflect.Value, schema.Kind, bool) {
	if t == nil {
		return reflect.Value{}, schema.KindInvalid, false
	}
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() == reflect.Interface {
		nt, kind := anyMapType, schema.KindMap
		if open != c.ctx.ObjectStart {
			nt, kind = anySliceType, schema.KindSequence
		}
		if !nt.AssignableTo(base) {
			return reflect.Value{}, schema.KindInvalid, false
		}
		return reflect.New(nt).Elem(), kind, true
	}
	kind := schema.Classify(base)
	if !c.accepts(kind, open) {
		return reflect.Value{}, schema.KindInvalid, false
	}
	return reflect.New(base).Elem(), kind, true
}

// wrap converts v, a value of the base type of t, to t by allocating the
// pointers t declares.
func wrap(v reflect.Value, t reflect.Type) reflect.Value {
	switch t.Kind() {
	case reflect.Pointer:
		p := reflect.New(t.Elem())
		p.Elem().Set(wrap(v, t.Elem()))
		return p
	case reflect.Interface:
		iv := reflect.New(t).Elem()
		iv.Set(v)
		return iv
	}
	return v
}

// parseScalar converts a completed value token to type t. Numbers and
// booleans must not be quoted.
func (c *Codec) parseScalar(text string, quoted bool, t reflect.Type) (reflect.Value, bool) {
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() == reflect.Interface {
		n := natural(text, quoted)
		if !n.Type().AssignableTo(base) {
			return reflect.Value{}, false
		}
		return wrap(n, t), true
	}

	v := reflect.New(base).Elem()
	switch schema.Classify(base) {
	case schema.KindInt32, schema.KindInt64:
		if quoted || !setInteger(v, text) {
			return reflect.Value{}, false
		}
	case schema.KindFloat32, schema.KindFloat64:
		if quoted {
			return reflect.Value{}, false
		}
		f, err := strconv.ParseFloat(text, base.Bits())
		if err != nil {
			return reflect.Value{}, false
		}
		v.SetFloat(f)
	case schema.KindBool:
		b, ok := parseBool(text)
		if quoted || !ok {
			return reflect.Value{}, false
		}
		v.SetBool(b)
	case schema.KindString:
		v.SetString(text)
	case schema.KindBytes:
		raw, err := c.ctx.BytesEncoding.DecodeString(text)
		if err != nil {
			return reflect.Value{}, false
		}
		if v.Kind() == reflect.Slice {
			v.SetBytes(raw)
			break
		}
		if len(raw) != v.Len() {
			return reflect.Value{}, false
		}
		for i, b := range raw {
			v.Index(i).SetUint(uint64(b))
		}
	default:
		return reflect.Value{}, false
	}
	return wrap(v, t), true
}

// setInteger stores text into the integer v, accepting integral float forms
// such as 3.0 or 1e3 when they are in range.
func setInteger(v reflect.Value, text string) bool {
	bits := v.Type().Bits()
	if v.CanUint() {
		if u, err := strconv.ParseUint(text, 10, bits); err == nil {
			v.SetUint(u)
			return true
		}
	} else if i, err := strconv.ParseInt(text, 10, bits); err == nil {
		v.SetInt(i)
		return true
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return false
	}
	if v.CanUint() {
		if f < 0 || f >= 1<<64 || v.OverflowUint(uint64(f)) {
			return false
		}
		v.SetUint(uint64(f))
		return true
	}
	if f < math.MinInt64 || f >= 1<<63 || v.OverflowInt(int64(f)) {
		return false
	}
	v.SetInt(int64(f))
	return true
}

func parseBool(s string) (bool, bool) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}

// natural picks the Go type an untyped token reads as: quoted text is a
// string, then bool, int64 and float64 are tried in that order.
func natural(text string, quoted bool) reflect.Value {
	if quoted {
		return reflect.ValueOf(text)
	}
	if b, ok := parseBool(text); ok {
		return reflect.ValueOf(b)
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return reflect.ValueOf(i)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return reflect.ValueOf(f)
	}
	return reflect.ValueOf(text)
}

func traceValue(v reflect.Value) any {
	if d, ok := schema.Deref(v); ok {
		return d.Interface()
	}
	return nil
}
