package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte(`{"name":"azerty","vals":[100.5,165.63]}`), 64)
	for _, level := range []Level{Fastest, Default, Better, Best} {
		packed, err := CompressLevel(data, level)
		require.NoError(t, err)
		assert.True(t, IsCompressed(packed))
		assert.Less(t, len(packed), len(data))

		out, err := Decompress(packed)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	}
}

func TestPlainInputPassesThrough(t *testing.T) {
	data := []byte{0x05, 0x00, 0x00, 0x00, 0x00}
	assert.False(t, IsCompressed(data))
	out, err := Decompress(data)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	out, err = Decompress(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCorruptFrame(t *testing.T) {
	packed, err := Compress([]byte("hello hello hello"))
	require.NoError(t, err)
	packed = packed[:len(packed)-2]
	_, err = Decompress(packed)
	assert.Error(t, err)
}

func TestEmptyInput(t *testing.T) {
	packed, err := Compress(nil)
	require.NoError(t, err)
	assert.True(t, IsCompressed(packed))
	out, err := Decompress(packed)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLZ4RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte(`{"name":"azerty","vals":[100.5,165.63]}`), 64)
	packed, err := CompressLZ4(data)
	require.NoError(t, err)
	assert.True(t, IsLZ4(packed))
	assert.False(t, IsCompressed(packed))
	assert.Less(t, len(packed), len(data))

	out, err := Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
