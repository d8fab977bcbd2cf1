package bson

import (
	"math"
	"reflect"

	"github.com/GavinLo/jwbson/pkg/schema"
)

// scalar is a decoded non-document payload before it is stored. kind is one
// of Int32, Int64, Float64, Bool, String, Bytes, or Invalid for no value.
type scalar struct {
	kind schema.Kind
	i    int64
	f    float64
	b    bool
	s    string
	raw  []byte
}

func (sc scalar) natural() reflect.Value {
	switch sc.kind {
	case schema.KindInt32:
		return reflect.ValueOf(int32(sc.i))
	case schema.KindInt64:
		return reflect.ValueOf(sc.i)
	case schema.KindFloat64:
		return reflect.ValueOf(sc.f)
	case schema.KindBool:
		return reflect.ValueOf(sc.b)
	case schema.KindString:
		return reflect.ValueOf(sc.s)
	case schema.KindBytes:
		return reflect.ValueOf(sc.raw)
	default:
		return reflect.Value{}
	}
}

// coerce converts sc to t. Integers must fit the target range, doubles only
// become integers when integral, and int64 payloads are reinterpreted bit for
// bit when the target is a 64-bit unsigned integer.
func (sc scalar) coerce(t reflect.Type) (reflect.Value, bool) {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		switch sc.kind {
		case schema.KindInt32, schema.KindInt64:
			n = sc.i
		case schema.KindFloat64:
			if !integral(sc.f) || sc.f < math.MinInt64 || sc.f >= 1<<63 {
				return v, false
			}
			n = int64(sc.f)
		default:
			return v, false
		}
		if v.OverflowInt(n) {
			return v, false
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		var u uint64
		switch sc.kind {
		case schema.KindInt64:
			if t.Size() == 8 {
				u = uint64(sc.i)
				break
			}
			fallthrough
		case schema.KindInt32:
			if sc.i < 0 {
				return v, false
			}
			u = uint64(sc.i)
		case schema.KindFloat64:
			if !integral(sc.f) || sc.f < 0 || sc.f >= 1<<64 {
				return v, false
			}
			u = uint64(sc.f)
		default:
			return v, false
		}
		if v.OverflowUint(u) {
			return v, false
		}
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		var f float64
		switch sc.kind {
		case schema.KindInt32, schema.KindInt64:
			f = float64(sc.i)
		case schema.KindFloat64:
			f = sc.f
		default:
			return v, false
		}
		if v.OverflowFloat(f) {
			return v, false
		}
		v.SetFloat(f)
	case reflect.Bool:
		if sc.kind != schema.KindBool {
			return v, false
		}
		v.SetBool(sc.b)
	case reflect.String:
		if sc.kind != schema.KindString {
			return v, false
		}
		v.SetString(sc.s)
	case reflect.Slice:
		if sc.kind != schema.KindBytes || t.Elem().Kind() != reflect.Uint8 {
			return v, false
		}
		v.SetBytes(sc.raw)
	case reflect.Array:
		if sc.kind != schema.KindBytes || t.Elem().Kind() != reflect.Uint8 || t.Len() != len(sc.raw) {
			return v, false
		}
		for i, b := range sc.raw {
			v.Index(i).SetUint(uint64(b))
		}
	default:
		return v, false
	}
	return v, true
}

func integral(f float64) bool {
	return !math.IsInf(f, 0) && f == math.Trunc(f)
}
