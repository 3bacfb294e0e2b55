// Package hexescape renders arbitrary bytes as a single line of text: printable
// ASCII is written as-is and every other byte as its hex value in angle
// brackets, e.g. "ab\x00" becomes "ab<00>".
package hexescape

import (
	"bufio"
	"io"
)

const hexDigits = "0123456789ABCDEF"

// IsPrintable returns true for bytes in the printable ASCII range, space through
// tilde.
func IsPrintable(b byte) bool {
	return b >= 0x20 && b <= 0x7E
}

// AppendEscaped appends the escaped form of `data` to `dst` and returns the
// extended slice.
func AppendEscaped(dst, data []byte) []byte {
	for _, b := range data {
		if IsPrintable(b) {
			dst = append(dst, b)
		} else {
			dst = append(dst, '<', hexDigits[b>>4], hexDigits[b&0x0F], '>')
		}
	}
	return dst
}

// Escape returns the escaped form of `data`.
func Escape(data []byte) string {
	return string(AppendEscaped(make([]byte, 0, len(data)), data))
}

// Writer escapes everything written to it before passing it on to the
// underlying writer. Output is buffered; call Flush when done.
type Writer struct {
	out     *bufio.Writer
	scratch []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriter(w)}
}

// Write escapes `p`. The returned count is the number of input bytes consumed,
// not the number of bytes written to the underlying writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.scratch = AppendEscaped(w.scratch[:0], p)
	if _, err := w.out.Write(w.scratch); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush writes any buffered output to the underlying writer.
func (w *Writer) Flush() error {
	return w.out.Flush()
}
