// Package streamio holds the exact-count stream helpers shared by the codecs.
//
// Every read helper reports the number of bytes it consumed next to the error so
// that callers can keep a running byte budget for length-framed formats.
package streamio

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/GavinLo/jwbson/internal/common"
)

var (
	// ErrShortRead reports a read that stopped before the requested count.
	ErrShortRead = errors.New("streamio: short read")
	// ErrNegativeCount reports a non-positive read request.
	ErrNegativeCount = errors.New("streamio: non-positive count")
)

// ReadFull reads exactly len(buf) bytes. A partial read returns the bytes
// consumed so far together with ErrShortRead.
func ReadFull(r io.Reader, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrNegativeCount
	}
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, ErrShortRead
		}
		return n, err
	}
	return n, nil
}

// ReadByte reads a single byte.
func ReadByte(r io.Reader) (byte, int, error) {
	if br, ok := r.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, 0, ErrShortRead
			}
			return 0, 0, err
		}
		return b, 1, nil
	}
	var one [1]byte
	n, err := ReadFull(r, one[:])
	return one[0], n, err
}

// ReadCString reads bytes up to and including a 0x00 terminator and returns them
// without the terminator. scratch is reused as the accumulation buffer; the
// returned slice aliases it and is only valid until the next call. The count
// includes the terminator.
func ReadCString(r io.Reader, scratch []byte) ([]byte, int, error) {
	return ReadDelimited(r, 0x00, scratch)
}

// ReadDelimited is ReadCString with a caller-chosen terminator byte.
func ReadDelimited(r io.Reader, term byte, scratch []byte) ([]byte, int, error) {
	scratch = scratch[:0]
	consumed := 0
	for {
		b, n, err := ReadByte(r)
		consumed += n
		if err != nil {
			return scratch, consumed, err
		}
		if b == term {
			return scratch, consumed, nil
		}
		scratch = append(scratch, b)
	}
}

// ReadInt32 reads a 4-byte integer in the given byte order.
func ReadInt32(r io.Reader, order binary.ByteOrder) (int32, int, error) {
	var scratch [common.SizeInt32]byte
	n, err := ReadFull(r, scratch[:])
	if err != nil {
		return 0, n, err
	}
	return common.Int32(scratch[:], order), n, nil
}

// WriteAll writes b completely.
func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// Position returns the current offset of s.
func Position(s io.Seeker) (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

// Skip advances s by n bytes without reading them. Seeking past the end of a
// stream is not detected here; the next read reports it.
func Skip(s io.Seeker, n int64) error {
	if n < 0 {
		return ErrNegativeCount
	}
	if n == 0 {
		return nil
	}
	_, err := s.Seek(n, io.SeekCurrent)
	return err
}
