package jwon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
	"unicode/utf8"
)

// runeSource reads runes and tracks the byte offset for error messages.
type runeSource struct {
	r   io.RuneReader
	br  *bufio.Reader
	off int64
}

func (s *runeSource) reset(r io.Reader) {
	s.off = 0
	if rr, ok := r.(io.RuneReader); ok {
		s.r = rr
		return
	}
	if s.br == nil {
		s.br = bufio.NewReader(r)
	} else {
		s.br.Reset(r)
	}
	s.r = s.br
}

func (s *runeSource) next() (rune, error) {
	r, n, err := s.r.ReadRune()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("%w: input ended at offset %d", ErrTruncated, s.off)
		}
		return 0, err
	}
	if r == utf8.RuneError && n == 1 {
		return 0, fmt.Errorf("%w: invalid UTF-8 at offset %d", ErrMalformed, s.off)
	}
	s.off += int64(n)
	return r, nil
}

// token accumulates one key or value. Text between quotes is taken literally
// apart from backslash escapes. quoted is set only by a quote inside the
// capture, never by a start delimiter that happens to be the quote.
type token struct {
	buf     []byte
	active  bool
	quoted  bool
	inQuote bool
	escape  bool
	hex     int
	code    rune
	high    rune
}

func (t *token) begin() {
	t.reset()
	t.active = true
}

func (t *token) reset() {
	*t = token{buf: t.buf[:0]}
}

func (t *token) text() string { return string(t.buf) }

func (t *token) openQuote() {
	t.inQuote = true
	t.quoted = true
}

func (t *token) emit(r rune) {
	if t.high != 0 {
		t.buf = utf8.AppendRune(t.buf, utf8.RuneError)
		t.high = 0
	}
	t.buf = utf8.AppendRune(t.buf, r)
}

// quotedRune consumes r inside a quoted segment.
func (t *token) quotedRune(r, quote rune) error {
	switch {
	case t.hex > 0:
		d := hexValue(r)
		if d < 0 {
			return fmt.Errorf("%w: bad \\u escape digit %q", ErrMalformed, r)
		}
		t.code = t.code<<4 | d
		if t.hex--; t.hex > 0 {
			return nil
		}
		switch {
		case utf16.IsSurrogate(t.code) && t.high != 0:
			t.buf = utf8.AppendRune(t.buf, utf16.DecodeRune(t.high, t.code))
			t.high = 0
		case utf16.IsSurrogate(t.code):
			t.high = t.code
		default:
			t.emit(t.code)
		}
	case t.escape:
		t.escape = false
		switch r {
		case 'n':
			t.emit('\n')
		case 'r':
			t.emit('\r')
		case 't':
			t.emit('\t')
		case 'b':
			t.emit('\b')
		case 'f':
			t.emit('\f')
		case 'u':
			t.hex, t.code = 4, 0
		default:
			t.emit(r)
		}
	case r == '\\':
		t.escape = true
	case r == quote:
		t.inQuote = false
	default:
		t.emit(r)
	}
	return nil
}

func hexValue(r rune) rune {
	switch {
	case r >= '0' && r <= '9':
		return r - '0'
	case r >= 'a' && r <= 'f':
		return r - 'a' + 10
	case r >= 'A' && r <= 'F':
		return r - 'A' + 10
	}
	return -1
}

// feed advances t by one rune under the (start, end) delimiters and reports
// whether r completed the token.
//
// A None start lets any non-delimiter begin the capture and a None end lets
// any structural delimiter finish it. When start and end are the same rune it
// toggles the capture. Spaces and tabs are dropped mid-capture; other control
// runes finish it.
func (c *Codec) feed(t *token, r, start, end rune) (bool, error) {
	q := c.ctx.Quote
	if t.inQuote {
		if err := t.quotedRune(r, q); err != nil {
			return false, err
		}
		return !t.inQuote && r == end, nil
	}
	if r <= ' ' {
		return t.active && r != ' ' && r != '\t', nil
	}
	if !t.active {
		switch {
		case start == None:
			if c.ctx.delimiter(r) {
				return false, nil
			}
			t.begin()
		case r == start:
			t.begin()
			// a delimiter that is the quote makes the capture literal
			// without marking the value as a string
			t.inQuote = r == q
			return false, nil
		default:
			return false, nil
		}
	}
	if r == end || (end == None && c.ctx.delimiter(r)) {
		return true, nil
	}
	if q != None && r == q {
		t.openQuote()
		return false, nil
	}
	t.emit(r)
	return false, nil
}
