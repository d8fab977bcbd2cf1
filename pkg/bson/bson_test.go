package bson

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"
	"reflect"
	"strings"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GavinLo/jwbson/pkg/config"
	"github.com/GavinLo/jwbson/pkg/schema"
	"github.com/GavinLo/jwbson/pkg/streamio"
)

func ptr[T any](v T) *T { return &v }

type sample struct {
	MyInt    int16  `jw:"MyInt"`
	MyString string `jw:"MyString"`
	MyBool   bool   `jw:"MyBool"`
}

type wideSample struct {
	MyInt    int32  `jw:"MyInt"`
	MyString string `jw:"MyString"`
	MyBool   bool   `jw:"MyBool"`
}

func TestRoundTripSample(t *testing.T) {
	in := sample{MyInt: 234, MyString: "hello", MyBool: false}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	require.EqualExportedValues(t, in, out)
}

func TestNarrowIntoWideTarget(t *testing.T) {
	data, err := Marshal(&sample{MyInt: 234, MyString: "hello"})
	require.NoError(t, err)

	var out wideSample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, int32(234), out.MyInt)
	assert.Equal(t, "hello", out.MyString)
}

func TestFalseIsNotAbsent(t *testing.T) {
	data, err := Marshal(sample{MyBool: false})
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte("MyBool\x00\x00")))

	out := sample{MyBool: true}
	require.NoError(t, Unmarshal(data, &out))
	assert.False(t, out.MyBool)
}

func TestSequenceDropsNullElements(t *testing.T) {
	in := []*string{ptr("me"), ptr("you"), nil, ptr("she")}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out []string
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, []string{"me", "you", "she"}, out)

	// keys are assigned only to written elements
	var keyed map[string]string
	require.NoError(t, Unmarshal(data, &keyed))
	assert.Equal(t, map[string]string{"0": "me", "1": "you", "2": "she"}, keyed)
}

func TestAbsentFieldKeepsValue(t *testing.T) {
	type source struct {
		X *string `jw:"X"`
		Y int     `jw:"Y"`
	}
	type target struct {
		X string `jw:"X"`
		Y int    `jw:"Y"`
	}
	data, err := Marshal(source{Y: 1})
	require.NoError(t, err)
	assert.False(t, bytes.Contains(data, []byte("X\x00")))

	out := target{X: "kept"}
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, target{X: "kept", Y: 1}, out)
}

func TestTruncatedDocument(t *testing.T) {
	data, err := Marshal(sample{MyInt: 234, MyString: "hello"})
	require.NoError(t, err)

	out := sample{MyString: "before"}
	err = Unmarshal(data[:len(data)-1], &out)
	require.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, sample{MyString: "before"}, out)

	// a length field that matches the shortened body still misses its terminator
	short := append([]byte(nil), data[:len(data)-1]...)
	binary.LittleEndian.PutUint32(short, uint32(len(short)))
	err = Unmarshal(short, &out)
	require.Error(t, err)
	assert.Equal(t, sample{MyString: "before"}, out)
}

func TestFloatMapRoundTrip(t *testing.T) {
	in := map[string]float64{"a": 1.5, "b": 2.5}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out map[string]float64
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

type golden struct {
	MyInt int32  `jw:"MyInt"`
	S     string `jw:"s"`
	Ok    bool   `jw:"ok"`
}

var goldenBytes = []byte{
	0x1F, 0x00, 0x00, 0x00,
	0x10, 'M', 'y', 'I', 'n', 't', 0x00, 0x10, 0x00, 0x00, 0x00,
	0x02, 's', 0x00, 0x03, 0x00, 0x00, 0x00, 'h', 'i', 0x00,
	0x08, 'o', 'k', 0x00, 0x01,
	0x00,
}

func TestGoldenEncoding(t *testing.T) {
	data, err := Marshal(golden{MyInt: 16, S: "hi", Ok: true})
	require.NoError(t, err)
	assert.Equal(t, goldenBytes, data)
}

func TestTrace(t *testing.T) {
	c := NewCodec(Options{Trace: true})
	var buf streamio.Buffer
	require.NoError(t, c.Serialize(golden{MyInt: 16, S: "hi", Ok: true}, &buf))
	assert.Equal(t, `\x1F\x00\x00\x00`+"\n"+
		`\x10MyInt\x00\x10\x00\x00\x00`+"\n"+
		`\x02s\x00\x03\x00\x00\x00hi\x00`+"\n"+
		`\x08ok\x00\x01`+"\n"+
		`\x00`+"\n", c.Trace())

	var out golden
	require.NoError(t, c.Deserialize(bytes.NewReader(goldenBytes), &out))
	assert.Equal(t, "Find Key=MyInt Type=0x10\ngolden.MyInt=16\n"+
		"Find Key=s Type=0x02\ngolden.S=hi\n"+
		"Find Key=ok Type=0x08\ngolden.Ok=true\n", c.Trace())

	assert.Empty(t, NewCodec(Options{}).Trace())
}

type recordV1 struct {
	A int32 `jw:"a"`
	Z int64 `jw:"z"`
}

type recordV2 struct {
	A     int32             `jw:"a"`
	Inner sample            `jw:"inner"`
	Tags  []string          `jw:"tags"`
	Blob  []byte            `jw:"blob"`
	Name  string            `jw:"name"`
	Ratio float64           `jw:"ratio"`
	Small float32           `jw:"small"`
	Flag  bool              `jw:"flag"`
	Attrs map[string]uint16 `jw:"attrs"`
	Z     int64             `jw:"z"`
}

func TestUnknownKeysAreSkipped(t *testing.T) {
	in := recordV2{
		A: 7, Inner: sample{MyInt: 1, MyString: "x"}, Tags: []string{"p", "q"},
		Blob: []byte{1, 2, 3}, Name: "n", Ratio: 0.25, Small: 2, Flag: true,
		Attrs: map[string]uint16{"k": 9}, Z: -42,
	}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out recordV1
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, recordV1{A: 7, Z: -42}, out)

	var full recordV2
	require.NoError(t, Unmarshal(data, &full))
	if diff := cmp.Diff(in, full); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// element and document build hand-written inputs.
func element(tag byte, key string, payload ...byte) []byte {
	out := append([]byte{tag}, key...)
	out = append(out, 0)
	return append(out, payload...)
}

func document(elems ...[]byte) []byte {
	body := bytes.Join(elems, nil)
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(body)+5))
	out = append(out, body...)
	return append(out, 0)
}

func TestStandardTagsAreSkipped(t *testing.T) {
	data := document(
		element(tagDatetime, "when", 1, 2, 3, 4, 5, 6, 7, 8),
		element(tagNull, "nothing"),
		element(tagObjectID, "oid", make([]byte, 12)...),
		element(tagRegex, "re", 'a', '+', 0, 'i', 0),
		element(tagDecimal128, "dec", make([]byte, 16)...),
		element(tagSymbol, "sym", 2, 0, 0, 0, 'x', 0),
		element(tagMinKey, "min"),
		element(0x10, "a", 5, 0, 0, 0),
	)
	var out recordV1
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, int32(5), out.A)
}

func TestUnknownTagIsMalformed(t *testing.T) {
	data := document(element(0x42, "a", 1))
	var out recordV1
	require.ErrorIs(t, Unmarshal(data, &out), ErrMalformed)
}

func TestMalformedLengths(t *testing.T) {
	var out recordV1
	// document length below the minimum
	require.ErrorIs(t, Unmarshal([]byte{3, 0, 0, 0, 0}, &out), ErrMalformed)
	// string claims more bytes than its document holds
	data := document(element(0x02, "s", 50, 0, 0, 0, 'x', 0))
	require.ErrorIs(t, Unmarshal(data, &out), ErrMalformed)
	// wrong terminator
	data = document(element(0x10, "a", 1, 0, 0, 0))
	data[len(data)-1] = 0x07
	require.ErrorIs(t, Unmarshal(data, &out), ErrMalformed)
	// empty input
	require.ErrorIs(t, Unmarshal(nil, &out), ErrTruncated)
}

func TestPermissions(t *testing.T) {
	type perms struct {
		Out  string `jw:"out,w"`
		In   string `jw:"in,r"`
		Both string `jw:"both"`
	}
	data, err := Marshal(perms{Out: "o", In: "i", Both: "b"})
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte("out\x00")))
	assert.False(t, bytes.Contains(data, []byte("in\x00")))

	// keys without read permission are skipped and do not desync the cursor
	src := document(
		element(0x02, "out", 2, 0, 0, 0, 'X', 0),
		element(0x02, "in", 2, 0, 0, 0, 'Y', 0),
		element(0x02, "both", 2, 0, 0, 0, 'Z', 0),
	)
	var got perms
	require.NoError(t, Unmarshal(src, &got))
	assert.Equal(t, perms{In: "Y", Both: "Z"}, got)
}

func TestDynamicValues(t *testing.T) {
	in := map[string]any{
		"i":      int32(1),
		"l":      int64(2),
		"f":      1.5,
		"b":      true,
		"s":      "x",
		"raw":    []byte{1},
		"nested": map[string]any{"k": "v"},
		"list":   []any{"a", int32(3)},
	}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out any
	require.NoError(t, Unmarshal(data, &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("dynamic mismatch (-want +got):\n%s", diff)
	}

	type holder struct {
		V any `jw:"v"`
	}
	data, err = Marshal(holder{V: "text"})
	require.NoError(t, err)
	var h holder
	require.NoError(t, Unmarshal(data, &h))
	assert.Equal(t, "text", h.V)
}

func TestMapKeysAreSorted(t *testing.T) {
	data, err := Marshal(map[string]int32{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	a := bytes.Index(data, []byte("a\x00"))
	b := bytes.Index(data, []byte("b\x00"))
	c := bytes.Index(data, []byte("c\x00"))
	assert.True(t, a < b && b < c)
}

type nested struct {
	Name     string              `jw:"name"`
	Child    *nested             `jw:"child"`
	Points   [][2]float64        `jw:"points"`
	ByName   map[string]*sample  `jw:"by_name"`
	Lists    map[string][]string `jw:"lists"`
	Fixed    [3]int8             `jw:"fixed"`
	Digest   [4]byte             `jw:"digest"`
	Optional *int64              `jw:"optional"`
}

func TestNestedRoundTrip(t *testing.T) {
	in := nested{
		Name:     "root",
		Child:    &nested{Name: "leaf", Fixed: [3]int8{-1, 0, 1}},
		Points:   [][2]float64{{1, 2}, {3.5, -4}},
		ByName:   map[string]*sample{"s": {MyInt: 3, MyString: "three"}},
		Lists:    map[string][]string{"l": {"x", "y"}},
		Fixed:    [3]int8{7, 8, 9},
		Digest:   [4]byte{0xDE, 0xAD, 0xBE, 0xEF},
		Optional: ptr(int64(12)),
	}
	data, err := Marshal(&in)
	require.NoError(t, err)

	var out nested
	require.NoError(t, Unmarshal(data, &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("nested mismatch (-want +got):\n%s", diff)
	}
}

func TestCoercion(t *testing.T) {
	type wide struct {
		A int64   `jw:"a"`
		B float64 `jw:"b"`
		C int64   `jw:"c"`
		D string  `jw:"d"`
		E uint64  `jw:"e"`
	}
	type narrow struct {
		A int8    `jw:"a"`
		B int32   `jw:"b"`
		C float32 `jw:"c"`
		D int32   `jw:"d"`
		E uint64  `jw:"e"`
	}
	data, err := Marshal(wide{A: 1000, B: 4, C: 3, D: "7", E: math.MaxUint64})
	require.NoError(t, err)

	out := narrow{A: 1, D: 2}
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, int8(1), out.A, "out of range value skipped")
	assert.Equal(t, int32(4), out.B, "integral double accepted")
	assert.Equal(t, float32(3), out.C)
	assert.Equal(t, int32(2), out.D, "string is not a number")
	assert.Equal(t, uint64(math.MaxUint64), out.E)

	data, err = Marshal(wide{B: 4.5})
	require.NoError(t, err)
	out = narrow{B: 9}
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, int32(9), out.B, "fractional double skipped")
}

func TestUnsupportedMembersAreOmitted(t *testing.T) {
	type odd struct {
		Big     *big.Int       `jw:"big"`
		ByIndex map[int]string `jw:"by_index"`
		Complex complex128     `jw:"complex"`
		Keep    int32          `jw:"keep"`
	}
	data, err := Marshal(odd{Big: big.NewInt(5), ByIndex: map[int]string{1: "a"}, Complex: 1i, Keep: 3})
	require.NoError(t, err)
	assert.Equal(t, document(element(0x10, "keep", 3, 0, 0, 0)), data)

	data, err = Marshal(map[string]string{"ok": "v", "bad\x00key": "w"})
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, map[string]string{"ok": "v"}, out)
}

func TestCompactFloatContext(t *testing.T) {
	ctx := DefaultContext()
	ctx.Float32AsDouble = false
	c := NewCodec(Options{Context: ctx})

	type floats struct {
		F float32 `jw:"f"`
		D float64 `jw:"d"`
	}
	var buf streamio.Buffer
	require.NoError(t, c.Serialize(floats{F: 1.5, D: 2.25}, &buf))
	assert.Equal(t, document(
		element(0x01, "f", 0x00, 0x00, 0xC0, 0x3F),
		element(0x01, "d", 0x00, 0x00, 0x10, 0x40),
	), buf.Bytes())

	var out floats
	require.NoError(t, c.Deserialize(bytes.NewReader(buf.Bytes()), &out))
	assert.Equal(t, floats{F: 1.5, D: 2.25}, out)
}

func TestBigEndianContext(t *testing.T) {
	ctx, err := ContextFromConfig(config.Binary{
		TypeDouble: 0x21, TypeString: 0x22, TypeDocument: 0x23, TypeArray: 0x24,
		TypeBinary: 0x25, TypeBool: 0x28, TypeInt32: 0x30, TypeInt64: 0x32,
		ValueTrue: 'T', ValueFalse: 'F', Terminator: '|', ByteOrder: "big", Float32AsDouble: true,
	})
	require.NoError(t, err)
	c := NewCodec(Options{Context: ctx})

	in := recordV2{A: 258, Tags: []string{"a"}, Flag: true, Z: 1}
	var buf streamio.Buffer
	require.NoError(t, c.Serialize(in, &buf))
	assert.True(t, bytes.Contains(buf.Bytes(), []byte{0x30, 'a', '|', 0, 0, 1, 2}))

	var out recordV2
	require.NoError(t, c.Deserialize(bytes.NewReader(buf.Bytes()), &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("big endian mismatch (-want +got):\n%s", diff)
	}
}

func TestContextValidation(t *testing.T) {
	require.NoError(t, DefaultContext().Validate())

	b := config.Default().Binary
	b.TypeInt64 = b.TypeInt32
	_, err := ContextFromConfig(b)
	require.ErrorIs(t, err, ErrInvalidArgument)

	b = config.Default().Binary
	b.ValueTrue = b.ValueFalse
	_, err = ContextFromConfig(b)
	require.ErrorIs(t, err, ErrInvalidArgument)

	b = config.Default().Binary
	b.ByteOrder = "middle"
	_, err = ContextFromConfig(b)
	require.ErrorIs(t, err, ErrInvalidArgument)

	ctx, err := ContextFromConfig(config.Default().Binary)
	require.NoError(t, err)
	assert.Equal(t, DefaultContext(), ctx)
}

type writerOnly struct{ io.Writer }

type readerOnly struct{ io.Reader }

func TestInvalidArguments(t *testing.T) {
	c := NewCodec(Options{})
	var buf streamio.Buffer

	require.ErrorIs(t, c.Serialize(nil, &buf), ErrInvalidArgument)
	require.ErrorIs(t, c.Serialize(sample{}, nil), ErrInvalidArgument)
	require.ErrorIs(t, c.Serialize(sample{}, writerOnly{&bytes.Buffer{}}), ErrInvalidArgument)
	require.ErrorIs(t, c.Serialize((*sample)(nil), &buf), ErrInvalidArgument)
	require.ErrorIs(t, c.Serialize(42, &buf), ErrUnsupportedType)

	var out sample
	require.ErrorIs(t, c.Deserialize(nil, &out), ErrInvalidArgument)
	require.ErrorIs(t, c.Deserialize(bytes.NewReader(goldenBytes), nil), ErrInvalidArgument)
	require.ErrorIs(t, c.Deserialize(bytes.NewReader(goldenBytes), out), ErrInvalidArgument)
	require.ErrorIs(t, c.Deserialize(readerOnly{bytes.NewReader(goldenBytes)}, &out), ErrInvalidArgument)
	n := 0
	require.ErrorIs(t, c.Deserialize(bytes.NewReader(goldenBytes), &n), ErrUnsupportedType)
}

func TestInvalidContextIsRejected(t *testing.T) {
	noOrder := DefaultContext()
	noOrder.ByteOrder = nil
	for name, ctx := range map[string]*Context{"zero": {}, "no byte order": noOrder} {
		t.Run(name, func(t *testing.T) {
			c := NewCodec(Options{Context: ctx})
			var buf streamio.Buffer
			require.ErrorIs(t, c.Serialize(sample{MyInt: 1}, &buf), ErrInvalidArgument)
			assert.Zero(t, buf.Len())

			out := sample{MyInt: 9}
			require.ErrorIs(t, c.Deserialize(bytes.NewReader(goldenBytes), &out), ErrInvalidArgument)
			assert.Equal(t, sample{MyInt: 9}, out)
		})
	}
}

func TestPointerTargetIsAllocated(t *testing.T) {
	var out *golden
	require.NoError(t, Unmarshal(goldenBytes, &out))
	require.NotNil(t, out)
	assert.Equal(t, golden{MyInt: 16, S: "hi", Ok: true}, *out)
}

func TestMapTargetMerges(t *testing.T) {
	data, err := Marshal(map[string]int32{"b": 2})
	require.NoError(t, err)
	out := map[string]int32{"a": 1}
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, map[string]int32{"a": 1, "b": 2}, out)
}

func TestRegisteredSchema(t *testing.T) {
	type celsius struct {
		deg float64
	}
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(reflect.TypeOf(celsius{}), schema.Field{
		Name: "f", Type: reflect.TypeOf(float64(0)),
		Get: func(obj reflect.Value) reflect.Value {
			return reflect.ValueOf(obj.Interface().(celsius).deg*9/5 + 32)
		},
		Set: func(obj reflect.Value, v reflect.Value) {
			obj.Addr().Interface().(*celsius).deg = (v.Float() - 32) * 5 / 9
		},
		CanSerialize: true, CanDeserialize: true,
	}))
	c := NewCodec(Options{Registry: reg})

	var buf streamio.Buffer
	require.NoError(t, c.Serialize(celsius{deg: 100}, &buf))
	var out celsius
	require.NoError(t, c.Deserialize(bytes.NewReader(buf.Bytes()), &out))
	assert.InDelta(t, 100.0, out.deg, 1e-9)
}

func TestCodecReuse(t *testing.T) {
	c := NewCodec(Options{})
	for i := range 3 {
		var buf streamio.Buffer
		in := recordV2{A: int32(i), Tags: []string{strings.Repeat("t", i)}, Z: int64(i)}
		require.NoError(t, c.Serialize(in, &buf))
		var out recordV2
		require.NoError(t, c.Deserialize(bytes.NewReader(buf.Bytes()), &out))
		require.EqualExportedValues(t, in, out)
	}
}

type scalars struct {
	I8  int8    `jw:"i8"`
	I16 int16   `jw:"i16"`
	I32 int32   `jw:"i32"`
	I64 int64   `jw:"i64"`
	U8  uint8   `jw:"u8"`
	U16 uint16  `jw:"u16"`
	U32 uint32  `jw:"u32"`
	U64 uint64  `jw:"u64"`
	F32 float32 `jw:"f32"`
	F64 float64 `jw:"f64"`
	B   bool    `jw:"b"`
	S   string  `jw:"s"`
	Raw []byte  `jw:"raw"`
}

func TestScalarRoundTripProperty(t *testing.T) {
	c := NewCodec(Options{})
	condition := func(in scalars) bool {
		var buf streamio.Buffer
		require.NoError(t, c.Serialize(in, &buf))
		var out scalars
		require.NoError(t, c.Deserialize(streamio.NewBuffer(buf.Bytes()), &out))
		if len(in.Raw) == 0 {
			in.Raw = nil
		}
		if len(out.Raw) == 0 {
			out.Raw = nil
		}
		return assert.ObjectsAreEqual(in, out)
	}
	if err := quick.Check(condition, &quick.Config{}); err != nil {
		t.Errorf("Error: %v", err)
	}
}

func FuzzRoundTrip(f *testing.F) {
	f.Add("hello", int16(234), 1.5, true, []byte{1, 2})
	f.Fuzz(func(t *testing.T, s string, n int16, d float64, flag bool, raw []byte) {
		if math.IsNaN(d) {
			t.Skip()
		}
		type mixed struct {
			S    string  `jw:"s"`
			N    int16   `jw:"n"`
			D    float64 `jw:"d"`
			Flag bool    `jw:"flag"`
			Raw  []byte  `jw:"raw"`
		}
		in := mixed{S: s, N: n, D: d, Flag: flag, Raw: raw}
		data, err := Marshal(in)
		require.NoError(t, err)
		var out mixed
		require.NoError(t, Unmarshal(data, &out))
		assert.True(t, bytes.Equal(in.Raw, out.Raw))
		in.Raw, out.Raw = nil, nil
		require.Equal(t, in, out)
	})
}

func FuzzDeserialize(f *testing.F) {
	f.Add(goldenBytes)
	seed, _ := Marshal(recordV2{A: 1, Tags: []string{"x"}, Attrs: map[string]uint16{"k": 1}})
	f.Add(seed)
	f.Fuzz(func(t *testing.T, data []byte) {
		var rec recordV2
		_ = Unmarshal(data, &rec)
		var dyn any
		_ = Unmarshal(data, &dyn)
	})
}
