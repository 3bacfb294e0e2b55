package boot

import (
	"fmt"
	"io"
)

// Console is the text output available before the kernel runs, e.g. the BIOS
// teletype service.
type Console interface {
	PutChar(c byte)
}

// WriterConsole is a [Console] that writes to an io.Writer. Write errors are
// dropped since a boot console has no way to report them either.
type WriterConsole struct {
	W io.Writer
}

func (c WriterConsole) PutChar(ch byte) {
	_, _ = c.W.Write([]byte{ch})
}

// Puts writes a string to the console one character at a time. Line feeds are
// preceded by a carriage return as teletype output requires.
func Puts(console Console, s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			console.PutChar('\r')
		}
		console.PutChar(s[i])
	}
}

// Printf formats according to a format specifier and writes the result to the
// console.
func Printf(console Console, format string, args ...any) {
	Puts(console, fmt.Sprintf(format, args...))
}
