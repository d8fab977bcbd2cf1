// Package trace records the annotated diagnostic output of a codec call.
//
// Framing bytes are rendered as \xNN escapes, text is appended verbatim, and a
// previously recorded byte run can be rewritten in place once its final value
// is known (document lengths). All methods are no-ops on a nil *Recorder.
package trace

import "fmt"

const hexDigits = "0123456789ABCDEF"

// byteWidth is the rendered width of one byte: `\xNN`.
const byteWidth = 4

type Recorder struct {
	buf []byte
}

// New returns a recorder when enabled is set and nil otherwise.
func New(enabled bool) *Recorder {
	if !enabled {
		return nil
	}
	return &Recorder{}
}

func (r *Recorder) Enabled() bool { return r != nil }

func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.buf = r.buf[:0]
}

// Mark returns the current write index, for a later Patch.
func (r *Recorder) Mark() int {
	if r == nil {
		return 0
	}
	return len(r.buf)
}

func (r *Recorder) Byte(b byte) {
	if r == nil {
		return
	}
	r.buf = append(r.buf, '\\', 'x', hexDigits[b>>4], hexDigits[b&0x0F])
}

func (r *Recorder) Bytes(bs []byte) {
	for _, b := range bs {
		r.Byte(b)
	}
}

func (r *Recorder) Text(s string) {
	if r == nil {
		return
	}
	r.buf = append(r.buf, s...)
}

func (r *Recorder) Newline() { r.Text("\n") }

// Linef appends a formatted line.
func (r *Recorder) Linef(format string, args ...any) {
	if r == nil {
		return
	}
	r.buf = fmt.Appendf(r.buf, format, args...)
	r.buf = append(r.buf, '\n')
}

// Patch overwrites the byte escapes recorded at mark with bs.
func (r *Recorder) Patch(mark int, bs []byte) {
	if r == nil || mark < 0 || mark+len(bs)*byteWidth > len(r.buf) {
		return
	}
	i := mark
	for _, b := range bs {
		r.buf[i] = '\\'
		r.buf[i+1] = 'x'
		r.buf[i+2] = hexDigits[b>>4]
		r.buf[i+3] = hexDigits[b&0x0F]
		i += byteWidth
	}
}

func (r *Recorder) String() string {
	if r == nil {
		return ""
	}
	return string(r.buf)
}
