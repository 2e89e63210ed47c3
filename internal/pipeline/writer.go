package pipeline

import "strconv"

// Writer is a bounded output sink. It copies what fits into its slice and
// keeps counting past the end, so the same formatter call either measures
// (nil slice) or writes, with identical lengths.
type Writer struct {
	buf []byte
	n   int
}

func newWriter(buf []byte) Writer { return Writer{buf: buf} }

// Len returns the number of bytes the output needs.
func (w *Writer) Len() int { return w.n }

// Overflow reports whether the output did not fit.
func (w *Writer) Overflow() bool { return w.n > len(w.buf) }

// Bytes returns the written output. Valid only without overflow.
func (w *Writer) Bytes() []byte { return w.buf[:min(w.n, len(w.buf))] }

// Truncate drops everything after the first n bytes.
func (w *Writer) Truncate(n int) {
	if n < w.n {
		w.n = n
	}
}

func (w *Writer) WriteByte(c byte) error {
	if w.n < len(w.buf) {
		w.buf[w.n] = c
	}
	w.n++
	return nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.n < len(w.buf) {
		copy(w.buf[w.n:], p)
	}
	w.n += len(p)
	return len(p), nil
}

func (w *Writer) WriteString(s string) (int, error) {
	if w.n < len(w.buf) {
		copy(w.buf[w.n:], s)
	}
	w.n += len(s)
	return len(s), nil
}

func (w *Writer) writeInt(v int64) {
	var tmp [24]byte
	_, _ = w.Write(strconv.AppendInt(tmp[:0], v, 10))
}

func (w *Writer) writeUint(v uint64) {
	var tmp [24]byte
	_, _ = w.Write(strconv.AppendUint(tmp[:0], v, 10))
}

func (w *Writer) writeFloat(v float64, prec, bitSize int) {
	var tmp [48]byte
	_, _ = w.Write(strconv.AppendFloat(tmp[:0], v, 'f', prec, bitSize))
}

func (w *Writer) writeHexByte(b byte, digits string) {
	_ = w.WriteByte(digits[b>>4])
	_ = w.WriteByte(digits[b&0x0F])
}

// writeEscaped writes s as a JSON string body without the surrounding quotes.
func (w *Writer) writeEscaped(s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			_ = w.WriteByte('\\')
			_ = w.WriteByte(c)
		case c == '\n':
			_, _ = w.WriteString(`\n`)
		case c < 0x20:
			_, _ = w.WriteString(`\u00`)
			w.writeHexByte(c, hexLower)
		default:
			_ = w.WriteByte(c)
		}
	}
}

// writeStringPair writes "key":"value" with the value escaped.
func (w *Writer) writeStringPair(key, value string) {
	_ = w.WriteByte('"')
	_, _ = w.WriteString(key)
	_, _ = w.WriteString(`":"`)
	w.writeEscaped(value)
	_ = w.WriteByte('"')
}
