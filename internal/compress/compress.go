// Package compress wraps encoded documents in zstd or lz4 frames. Input is
// recognized by the frame magic, so callers never need to say which was used.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	// magic opens every zstd frame.
	magic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	// lz4Magic opens every lz4 frame.
	lz4Magic = []byte{0x04, 0x22, 0x4D, 0x18}
)

// Level selects the encoder speed/ratio trade-off.
type Level = zstd.EncoderLevel

const (
	Fastest = zstd.SpeedFastest
	Default = zstd.SpeedDefault
	Better  = zstd.SpeedBetterCompression
	Best    = zstd.SpeedBestCompression
)

var (
	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error

	encMu sync.Mutex
	encs  = map[Level]*zstd.Encoder{}
)

func encoder(level Level) (*zstd.Encoder, error) {
	encMu.Lock()
	defer encMu.Unlock()
	if e, ok := encs[level]; ok {
		return e, nil
	}
	e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithZeroFrames(true))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	encs[level] = e
	return e, nil
}

func decoder() (*zstd.Decoder, error) {
	decOnce.Do(func() {
		dec, decErr = zstd.NewReader(nil)
		if decErr != nil {
			decErr = fmt.Errorf("zstd decoder: %w", decErr)
		}
	})
	return dec, decErr
}

// Compress returns data as a single zstd frame at the default level.
func Compress(data []byte) ([]byte, error) {
	return CompressLevel(data, Default)
}

func CompressLevel(data []byte, level Level) ([]byte, error) {
	enc, err := encoder(level)
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2+len(magic))), nil
}

// CompressLZ4 returns data as one lz4 frame. It trades ratio for speed
// compared to Compress.
func CompressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates data if it starts with a zstd or lz4 frame magic and
// returns it unchanged otherwise.
func Decompress(data []byte) ([]byte, error) {
	switch {
	case IsCompressed(data):
		d, err := decoder()
		if err != nil {
			return nil, err
		}
		out, err := d.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case IsLZ4(data):
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, nil
	}
	return data, nil
}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

func IsLZ4(data []byte) bool {
	return bytes.HasPrefix(data, lz4Magic)
}
