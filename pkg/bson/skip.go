package bson

import (
	"fmt"
	"io"

	"github.com/GavinLo/jwbson/internal/common"
	"github.com/GavinLo/jwbson/pkg/streamio"
)

// Standard BSON element types the codec never produces. They are recognized
// only so that documents carrying them can still be read.
const (
	tagUndefined     = 0x06
	tagObjectID      = 0x07
	tagDatetime      = 0x09
	tagNull          = 0x0A
	tagRegex         = 0x0B
	tagDBPointer     = 0x0C
	tagJavaScript    = 0x0D
	tagSymbol        = 0x0E
	tagCodeWithScope = 0x0F
	tagTimestamp     = 0x11
	tagDecimal128    = 0x13
	tagMaxKey        = 0x7F
	tagMinKey        = 0xFF
)

// skipValue advances past the payload of an element of type tag.
func (c *Codec) skipValue(r io.ReadSeeker, tag byte, limit int) (int, error) {
	ctx := c.ctx
	switch tag {
	case ctx.TypeDocument, ctx.TypeArray:
		return c.skipDocument(r, limit)
	case ctx.TypeInt32:
		return skipN(r, common.SizeInt32, limit)
	case ctx.TypeInt64:
		return skipN(r, common.SizeInt64, limit)
	case ctx.TypeDouble:
		return skipN(r, ctx.floatWidth(), limit)
	case ctx.TypeBool:
		return skipN(r, common.SizeBool, limit)
	case ctx.TypeString:
		return c.skipString(r, limit)
	case ctx.TypeBinary:
		l, n, err := streamio.ReadInt32(r, ctx.ByteOrder)
		if err != nil {
			return n, readErr(err)
		}
		if l < 0 {
			return n, fmt.Errorf("%w: binary length %d", ErrMalformed, l)
		}
		m, err := skipN(r, int(l)+1, limit-n)
		return n + m, err
	}
	return c.skipStandard(r, tag, limit)
}

func (c *Codec) skipDocument(r io.ReadSeeker, limit int) (int, error) {
	size, n, err := streamio.ReadInt32(r, c.ctx.ByteOrder)
	if err != nil {
		return n, readErr(err)
	}
	if size < common.SizeInt32+1 || int(size) > limit {
		return n, fmt.Errorf("%w: document length %d", ErrMalformed, size)
	}
	m, err := skipN(r, int(size)-n, limit-n)
	return n + m, err
}

func (c *Codec) skipString(r io.ReadSeeker, limit int) (int, error) {
	l, n, err := streamio.ReadInt32(r, c.ctx.ByteOrder)
	if err != nil {
		return n, readErr(err)
	}
	if l < 1 {
		return n, fmt.Errorf("%w: string length %d", ErrMalformed, l)
	}
	m, err := skipN(r, int(l), limit-n)
	return n + m, err
}

func (c *Codec) skipStandard(r io.ReadSeeker, tag byte, limit int) (int, error) {
	switch tag {
	case tagUndefined, tagNull, tagMaxKey, tagMinKey:
		return 0, nil
	case tagObjectID:
		return skipN(r, 12, limit)
	case tagDatetime, tagTimestamp:
		return skipN(r, 8, limit)
	case tagDecimal128:
		return skipN(r, 16, limit)
	case tagJavaScript, tagSymbol:
		return c.skipString(r, limit)
	case tagDBPointer:
		n, err := c.skipString(r, limit)
		if err != nil {
			return n, err
		}
		m, err := skipN(r, 12, limit-n)
		return n + m, err
	case tagRegex:
		total := 0
		for range 2 {
			_, n, err := streamio.ReadCString(r, c.keyBuf)
			total += n
			if err != nil {
				return total, readErr(err)
			}
			if total > limit {
				return total, fmt.Errorf("%w: regex overruns document", ErrMalformed)
			}
		}
		return total, nil
	case tagCodeWithScope:
		l, n, err := streamio.ReadInt32(r, c.ctx.ByteOrder)
		if err != nil {
			return n, readErr(err)
		}
		if int(l) < n {
			return n, fmt.Errorf("%w: code length %d", ErrMalformed, l)
		}
		m, err := skipN(r, int(l)-n, limit-n)
		return n + m, err
	}
	return 0, fmt.Errorf("%w: unknown element type 0x%02X", ErrMalformed, tag)
}

// skipN seeks past n bytes. Running past the end of the stream surfaces on the
// next read as truncation.
func skipN(r io.Seeker, n, limit int) (int, error) {
	if n > limit {
		return 0, fmt.Errorf("%w: value of %d bytes overruns document", ErrMalformed, n)
	}
	if err := streamio.Skip(r, int64(n)); err != nil {
		return 0, err
	}
	return n, nil
}
