// Package arena holds the per-depth element buffers used while decoding
// sequences. Elements are gathered at the depth of their sequence and moved
// into the target slice or array once the sequence ends.
package arena

import "reflect"

// Arena is owned by one codec and reused across calls.
type Arena struct {
	levels [][]reflect.Value
}

// Begin empties the buffer of depth, growing the arena as needed.
func (a *Arena) Begin(depth int) {
	for len(a.levels) <= depth {
		a.levels = append(a.levels, nil)
	}
	a.levels[depth] = a.levels[depth][:0]
}

func (a *Arena) Append(depth int, v reflect.Value) {
	a.levels[depth] = append(a.levels[depth], v)
}

func (a *Arena) Len(depth int) int {
	if depth >= len(a.levels) {
		return 0
	}
	return len(a.levels[depth])
}

// Materialize stores the elements of depth into dst, a slice or array, and
// returns how many elements did not fit. Arrays keep their length: missing
// elements are zeroed.
func (a *Arena) Materialize(dst reflect.Value, depth int) int {
	elems := a.levels[depth]
	dropped := 0
	switch dst.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(dst.Type(), len(elems), len(elems))
		for i, e := range elems {
			out.Index(i).Set(e)
		}
		dst.Set(out)
	case reflect.Array:
		for i := 0; i < dst.Len(); i++ {
			if i < len(elems) {
				dst.Index(i).Set(elems[i])
			} else {
				dst.Index(i).SetZero()
			}
		}
		dropped = max(len(elems)-dst.Len(), 0)
	}
	clear(elems)
	a.levels[depth] = elems[:0]
	return dropped
}

// Release drops every reference the arena still holds.
func (a *Arena) Release() {
	for i := range a.levels {
		clear(a.levels[i][:cap(a.levels[i])])
		a.levels[i] = a.levels[i][:0]
	}
}
