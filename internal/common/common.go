package common

import (
	"encoding/binary"
	"math"
	"reflect"
)

// Width of the fixed-size wire primitives.
const (
	SizeBool    = 1
	SizeInt32   = 4
	SizeInt64   = 8
	SizeFloat32 = 4
	SizeFloat64 = 8
)

// IsUintKind reports whether k is an unsigned integer kind.
func IsUintKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	default:
		return false
	}
}

// PutInt32 appends v to dst in the given byte order.
func PutInt32(dst []byte, order binary.ByteOrder, v int32) []byte {
	var scratch [SizeInt32]byte
	order.PutUint32(scratch[:], uint32(v))
	return append(dst, scratch[:]...)
}

// PutInt64 appends v to dst in the given byte order.
func PutInt64(dst []byte, order binary.ByteOrder, v int64) []byte {
	var scratch [SizeInt64]byte
	order.PutUint64(scratch[:], uint64(v))
	return append(dst, scratch[:]...)
}

func PutFloat32(dst []byte, order binary.ByteOrder, v float32) []byte {
	var scratch [SizeFloat32]byte
	order.PutUint32(scratch[:], math.Float32bits(v))
	return append(dst, scratch[:]...)
}

func PutFloat64(dst []byte, order binary.ByteOrder, v float64) []byte {
	var scratch [SizeFloat64]byte
	order.PutUint64(scratch[:], math.Float64bits(v))
	return append(dst, scratch[:]...)
}

// PutBool appends the true or false marker byte.
func PutBool(dst []byte, v bool, trueByte, falseByte byte) []byte {
	if v {
		return append(dst, trueByte)
	}
	return append(dst, falseByte)
}

// Int32 decodes the first 4 bytes of b. b must be at least SizeInt32 long.
func Int32(b []byte, order binary.ByteOrder) int32 {
	return int32(order.Uint32(b))
}

func Int64(b []byte, order binary.ByteOrder) int64 {
	return int64(order.Uint64(b))
}

func Float32(b []byte, order binary.ByteOrder) float32 {
	return math.Float32frombits(order.Uint32(b))
}

func Float64(b []byte, order binary.ByteOrder) float64 {
	return math.Float64frombits(order.Uint64(b))
}
