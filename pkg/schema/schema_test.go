package schema

import (
	"math/big"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tagged struct {
	ID       int64   `jw:"id"`
	Name     string  `jw:""`
	Skipped  string  `jw:"-"`
	Untagged int
	Hash     string  `jw:"hash,w"`
	Secret   string  `jw:"secret,r"`
	Ratio    float32 `jw:"ratio,rw"`
	hidden   int     `jw:"hidden"`
}

func TestOfTaggedFields(t *testing.T) {
	s, err := Of(reflect.TypeOf(&tagged{}))
	require.NoError(t, err)
	require.Len(t, s.Fields, 5)

	var names []string
	for _, f := range s.Fields {
		names = append(names, f.WireName)
	}
	assert.Equal(t, []string{"id", "Name", "hash", "secret", "ratio"}, names)

	hash, ok := s.Lookup("hash")
	require.True(t, ok)
	assert.True(t, hash.CanSerialize)
	assert.False(t, hash.CanDeserialize)

	secret, ok := s.Lookup("secret")
	require.True(t, ok)
	assert.False(t, secret.CanSerialize)
	assert.True(t, secret.CanDeserialize)

	_, ok = s.Lookup("Untagged")
	assert.False(t, ok)
	_, ok = s.Lookup("hidden")
	assert.False(t, ok)
}

func TestOfCachesPerType(t *testing.T) {
	r := NewRegistry()
	a, err := r.Of(reflect.TypeOf(tagged{}))
	require.NoError(t, err)
	b, err := r.Of(reflect.TypeOf(&tagged{}))
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestOfConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	got := make([]*Struct, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Of(reflect.TypeOf(tagged{}))
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()
	for _, s := range got[1:] {
		assert.Same(t, got[0], s)
	}
}

func TestOfRejectsNonStruct(t *testing.T) {
	_, err := Of(reflect.TypeOf(42))
	require.ErrorIs(t, err, ErrNotStruct)
	_, err = Of(nil)
	require.ErrorIs(t, err, ErrNotStruct)
}

func TestOfBadTags(t *testing.T) {
	type dup struct {
		A int `jw:"x"`
		B int `jw:"x"`
	}
	_, err := Of(reflect.TypeOf(dup{}))
	require.ErrorIs(t, err, ErrDuplicateName)

	type badOpt struct {
		A int `jw:"a,rx"`
	}
	_, err = Of(reflect.TypeOf(badOpt{}))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAccessor(t *testing.T) {
	s, err := Of(reflect.TypeOf(tagged{}))
	require.NoError(t, err)
	f, _ := s.Lookup("id")

	v := tagged{ID: 7}
	assert.Equal(t, int64(7), f.Get(reflect.ValueOf(v)).Int())

	f.Set(reflect.ValueOf(&v).Elem(), reflect.ValueOf(int64(9)))
	assert.Equal(t, int64(9), v.ID)
}

type temperature struct {
	celsius float64
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	typ := reflect.TypeOf(temperature{})
	err := r.Register(typ, Field{
		Name: "Fahrenheit",
		Type: reflect.TypeOf(float64(0)),
		Get: func(obj reflect.Value) reflect.Value {
			c := obj.Interface().(temperature).celsius
			return reflect.ValueOf(c*9/5 + 32)
		},
		Set: func(obj reflect.Value, v reflect.Value) {
			p := obj.Addr().Interface().(*temperature)
			p.celsius = (v.Float() - 32) * 5 / 9
		},
		CanSerialize:   true,
		CanDeserialize: true,
	})
	require.NoError(t, err)

	s, err := r.Of(typ)
	require.NoError(t, err)
	f, ok := s.Lookup("Fahrenheit")
	require.True(t, ok)
	assert.Equal(t, KindFloat64, f.Kind)

	var tmp temperature
	f.Set(reflect.ValueOf(&tmp).Elem(), reflect.ValueOf(212.0))
	assert.InDelta(t, 100.0, tmp.celsius, 1e-9)
	assert.InDelta(t, 212.0, f.Get(reflect.ValueOf(tmp)).Float(), 1e-9)

	require.ErrorIs(t, r.Register(reflect.TypeOf(1)), ErrNotStruct)
	require.ErrorIs(t, r.Register(typ, Field{Name: "x"}), ErrInvalidArgument)
}

func TestRegisterWithoutSetterIsWriteOnly(t *testing.T) {
	r := NewRegistry()
	get, _ := Accessor(0)
	require.NoError(t, r.Register(reflect.TypeOf(tagged{}), Field{
		Name: "ID", WireName: "id", Type: reflect.TypeOf(int64(0)),
		Get: get, CanSerialize: true, CanDeserialize: true,
	}))
	s, err := r.Of(reflect.TypeOf(tagged{}))
	require.NoError(t, err)
	require.Len(t, s.Fields, 1)
	assert.True(t, s.Fields[0].CanSerialize)
	assert.False(t, s.Fields[0].CanDeserialize)
}

func TestClassify(t *testing.T) {
	var iface any
	cases := []struct {
		v    any
		want Kind
	}{
		{int8(0), KindInt32},
		{int16(0), KindInt32},
		{int32(0), KindInt32},
		{uint8(0), KindInt32},
		{uint16(0), KindInt32},
		{uint32(0), KindInt64},
		{int(0), KindInt64},
		{uint64(0), KindInt64},
		{float32(0), KindFloat32},
		{float64(0), KindFloat64},
		{true, KindBool},
		{"", KindString},
		{[]byte(nil), KindBytes},
		{[4]byte{}, KindBytes},
		{[]string(nil), KindSequence},
		{[3]int{}, KindSequence},
		{map[string]int(nil), KindMap},
		{map[int]string(nil), KindUnsupported},
		{tagged{}, KindObject},
		{&tagged{}, KindObject},
		{new(*int32), KindInt32},
		{big.NewInt(1), KindUnsupported},
		{big.Rat{}, KindUnsupported},
		{complex(1, 2), KindUnsupported},
		{make(chan int), KindUnsupported},
		{&iface, KindDynamic},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(reflect.TypeOf(c.v)), "%T", c.v)
	}
	assert.Equal(t, KindInvalid, Classify(nil))
}

func TestKindClasses(t *testing.T) {
	assert.True(t, KindSequence.Container())
	assert.False(t, KindDynamic.Container())
	assert.Equal(t, "float32", KindFloat32.String())
	assert.Equal(t, "kind(200)", Kind(200).String())
}

func TestNullAndDeref(t *testing.T) {
	var p *int
	assert.True(t, IsNull(reflect.ValueOf(p)))
	assert.True(t, IsNull(reflect.ValueOf([]byte(nil))))
	assert.True(t, IsNull(reflect.Value{}))
	assert.False(t, IsNull(reflect.ValueOf(0)))
	assert.False(t, IsNull(reflect.ValueOf(false)))

	n := 5
	pp := &n
	v, ok := Deref(reflect.ValueOf(&pp))
	require.True(t, ok)
	assert.Equal(t, int64(5), v.Int())

	_, ok = Deref(reflect.ValueOf(p))
	assert.False(t, ok)
}
