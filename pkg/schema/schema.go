// Package schema resolves which members of a struct take part in
// serialization, under which wire name, and in which direction.
//
// A field participates only when it carries a `jw` struct tag:
//
//	type Item struct {
//		ID    int64  `jw:"id"`
//		Name  string `jw:""`       // wire name "Name", read+write
//		Cache []byte `jw:"-"`      // excluded
//		Hash  string `jw:"hash,w"` // serialized, never deserialized
//	}
//
// Results are computed once per type and cached for the process lifetime.
package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// TagName is the struct tag key read by Of.
const TagName = "jw"

// Permission selects the directions a field takes part in.
type Permission uint8

const (
	// ReadOnly fields are deserialized but never written.
	ReadOnly Permission = 1 << iota
	// WriteOnly fields are serialized but never read back.
	WriteOnly
	ReadWrite = ReadOnly | WriteOnly
)

// Field describes one participating member of a struct.
type Field struct {
	Name     string
	WireName string
	Type     reflect.Type
	Kind     Kind

	// Get returns the member value of obj. obj need not be addressable.
	Get func(obj reflect.Value) reflect.Value
	// Set stores v into the member of obj. obj must be addressable and v
	// assignable to Type.
	Set func(obj reflect.Value, v reflect.Value)

	CanSerialize   bool
	CanDeserialize bool
}

// Struct is the resolved, immutable schema of one struct type.
type Struct struct {
	Type   reflect.Type
	Fields []Field

	byWire map[string]int
}

// Lookup resolves a field by wire name.
func (s *Struct) Lookup(wireName string) (*Field, bool) {
	i, ok := s.byWire[wireName]
	if !ok {
		return nil, false
	}
	return &s.Fields[i], true
}

// Registry caches schemas per type. The zero value is not usable; use
// NewRegistry. A Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plans   map[reflect.Type]*Struct
	manuals map[reflect.Type]*Struct
}

func NewRegistry() *Registry {
	return &Registry{
		plans:   make(map[reflect.Type]*Struct),
		manuals: make(map[reflect.Type]*Struct),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by Of and Register.
func Default() *Registry { return defaultRegistry }

// Of returns the schema of t from the default registry.
func Of(t reflect.Type) (*Struct, error) { return defaultRegistry.Of(t) }

// Register installs a hand-built schema for t in the default registry.
func Register(t reflect.Type, fields ...Field) error {
	return defaultRegistry.Register(t, fields...)
}

// Of returns the schema of t. Pointer types are dereferenced; anything that is
// not a struct yields ErrNotStruct.
func (r *Registry) Of(t reflect.Type) (*Struct, error) {
	if t == nil {
		return nil, ErrNotStruct
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, t)
	}

	r.mu.RLock()
	s, ok := r.manuals[t]
	if !ok {
		s, ok = r.plans[t]
	}
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	built, err := build(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.manuals[t]; ok {
		return s, nil
	}
	if s, ok := r.plans[t]; ok {
		return s, nil
	}
	r.plans[t] = built
	return built, nil
}

// Register installs fields as the schema of struct type t, taking precedence
// over the tag-derived schema. Missing Kind values are classified from Type, a
// nil Get disables serialization and a nil Set disables deserialization.
func (r *Registry) Register(t reflect.Type, fields ...Field) error {
	if t == nil {
		return ErrInvalidArgument
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s", ErrNotStruct, t)
	}
	s := &Struct{Type: t, Fields: make([]Field, 0, len(fields)), byWire: make(map[string]int, len(fields))}
	for _, f := range fields {
		if f.Type == nil {
			return fmt.Errorf("%w: field %q has no type", ErrInvalidArgument, f.Name)
		}
		if f.WireName == "" {
			f.WireName = f.Name
		}
		if f.WireName == "" {
			return fmt.Errorf("%w: field without name", ErrInvalidArgument)
		}
		if f.Kind == KindInvalid {
			f.Kind = Classify(f.Type)
		}
		f.CanSerialize = f.CanSerialize && f.Get != nil
		f.CanDeserialize = f.CanDeserialize && f.Set != nil
		if err := s.add(f); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.manuals[t] = s
	delete(r.plans, t)
	r.mu.Unlock()
	return nil
}

// Accessor builds Get/Set closures for the struct field at the given index path.
func Accessor(index ...int) (get func(reflect.Value) reflect.Value, set func(reflect.Value, reflect.Value)) {
	idx := append([]int(nil), index...)
	get = func(obj reflect.Value) reflect.Value {
		return obj.FieldByIndex(idx)
	}
	set = func(obj reflect.Value, v reflect.Value) {
		obj.FieldByIndex(idx).Set(v)
	}
	return get, set
}

func (s *Struct) add(f Field) error {
	if _, dup := s.byWire[f.WireName]; dup {
		return fmt.Errorf("%w: %q in %s", ErrDuplicateName, f.WireName, s.Type)
	}
	s.byWire[f.WireName] = len(s.Fields)
	s.Fields = append(s.Fields, f)
	return nil
}

func build(t reflect.Type) (*Struct, error) {
	s := &Struct{Type: t, byWire: make(map[string]int)}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup(TagName)
		if !ok || tag == "-" || !sf.IsExported() {
			continue
		}
		name, perm, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t, sf.Name, err)
		}
		if name == "" {
			name = sf.Name
		}
		get, set := Accessor(sf.Index...)
		f := Field{
			Name:           sf.Name,
			WireName:       name,
			Type:           sf.Type,
			Kind:           Classify(sf.Type),
			Get:            get,
			Set:            set,
			CanSerialize:   perm&WriteOnly != 0,
			CanDeserialize: perm&ReadOnly != 0,
		}
		if err := s.add(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func parseTag(tag string) (string, Permission, error) {
	name, opt, hasOpt := strings.Cut(tag, ",")
	if !hasOpt {
		return name, ReadWrite, nil
	}
	switch strings.TrimSpace(opt) {
	case "r":
		return name, ReadOnly, nil
	case "w":
		return name, WriteOnly, nil
	case "rw", "wr", "":
		return name, ReadWrite, nil
	default:
		return "", 0, fmt.Errorf("%w: tag option %q", ErrInvalidArgument, opt)
	}
}
