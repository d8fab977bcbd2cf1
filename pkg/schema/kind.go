package schema

import (
	"math/big"
	"reflect"
	"strconv"
)

// Kind is the closed value taxonomy both codecs dispatch over.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindBytes
	KindObject
	KindSequence
	KindMap
	// KindDynamic is an interface type; the kind of the dynamic value applies.
	KindDynamic
	// KindUnsupported covers arbitrary-precision numbers, complex numbers,
	// non-string-keyed maps, channels and funcs. Such members are skipped.
	KindUnsupported
)

var kindNames = [...]string{
	KindInvalid:     "invalid",
	KindInt32:       "int32",
	KindInt64:       "int64",
	KindFloat32:     "float32",
	KindFloat64:     "float64",
	KindBool:        "bool",
	KindString:      "string",
	KindBytes:       "bytes",
	KindObject:      "object",
	KindSequence:    "sequence",
	KindMap:         "map",
	KindDynamic:     "dynamic",
	KindUnsupported: "unsupported",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Container reports whether k nests a document.
func (k Kind) Container() bool {
	return k == KindObject || k == KindSequence || k == KindMap
}

var (
	bigIntType   = reflect.TypeOf(big.Int{})
	bigFloatType = reflect.TypeOf(big.Float{})
	bigRatType   = reflect.TypeOf(big.Rat{})
)

// Classify maps a Go type onto the taxonomy. Pointers classify as their element.
func Classify(t reflect.Type) Kind {
	if t == nil {
		return KindInvalid
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case bigIntType, bigFloatType, bigRatType:
		return KindUnsupported
	}
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return KindInt32
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return KindInt64
	case reflect.Float32:
		return KindFloat32
	case reflect.Float64:
		return KindFloat64
	case reflect.Bool:
		return KindBool
	case reflect.String:
		return KindString
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes
		}
		return KindSequence
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return KindUnsupported
		}
		return KindMap
	case reflect.Struct:
		return KindObject
	case reflect.Interface:
		return KindDynamic
	default:
		return KindUnsupported
	}
}

// Deref follows pointers on v until a non-pointer or a nil pointer is reached.
// ok is false when v is invalid or a nil pointer/interface was hit.
func Deref(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

// IsNull reports whether v carries no value: an invalid value, or a nil
// pointer, interface, slice or map. Zero scalars are not null.
func IsNull(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return v.IsNil()
	default:
		return false
	}
}
