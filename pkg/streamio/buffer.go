package streamio

import (
	"errors"
	"io"
)

var errSeekNegative = errors.New("streamio: negative position")

// Buffer is an in-memory io.ReadWriteSeeker. Writes overwrite at the current
// offset and extend the buffer as needed, which is what length backpatching
// needs and what bytes.Buffer cannot do.
type Buffer struct {
	data []byte
	off  int
}

// NewBuffer wraps data for reading. The buffer takes ownership of data.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the full contents regardless of the current offset.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Len() int { return len(b.data) }

// Reset empties the buffer and keeps its capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

func (b *Buffer) ReadByte() (byte, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	c := b.data[b.off]
	b.off++
	return c, nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	end := b.off + len(p)
	if end > len(b.data) {
		old := len(b.data)
		if end > cap(b.data) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
		// seeking past the end leaves a gap that must read as zeros
		if b.off > old {
			clear(b.data[old:b.off])
		}
	}
	copy(b.data[b.off:], p)
	b.off = end
	return len(p), nil
}

func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.off) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("streamio: invalid whence")
	}
	if abs < 0 {
		return 0, errSeekNegative
	}
	b.off = int(abs)
	return abs, nil
}
