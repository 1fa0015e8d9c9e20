// Package syslog is a zero-allocation logger for the supervisor core,
// adapted from an inlined main.go Logger seen elsewhere in this
// codebase's lineage. It mirrors
// every message to the USB console (via the builtin print) and, once a
// UART session is attached, to a shmring-backed UART ring as well. No
// fmt, no buffers, no append — constants a bare-metal logging style
// also avoids on the hot logging path.
package syslog

import (
	"supervisor-fw/x/conv"
	"supervisor-fw/x/shmring"
	"supervisor-fw/x/strconvx"
)

type Logger struct {
	uart *shmring.Ring
}

var nl = [...]byte{'\n'}

func (l *Logger) SetUART(r *shmring.Ring) { l.uart = r }

func (l *Logger) writeString(s string) {
	if s == "" {
		return
	}
	print(s)
	if l.uart != nil {
		_ = l.uart.TryWriteFrom([]byte(s))
	}
}

func (l *Logger) writePart(v any) {
	switch x := v.(type) {
	case string:
		l.writeString(x)
	case int:
		l.writeString(strconvx.Itoa(x))
	case int32:
		l.writeString(strconvx.Itoa(int(x)))
	case int64:
		l.writeString(strconvx.Itoa(int(x)))
	case uint16:
		l.writeString(strconvx.Itoa(int(x)))
	case uint32:
		l.writeString(strconvx.Itoa(int(x)))
	case bool:
		if x {
			l.writeString("true")
		} else {
			l.writeString("false")
		}
	default:
		l.writeString("?")
	}
}

func (l *Logger) Print(parts ...any) {
	for i := range parts {
		l.writePart(parts[i])
	}
}

func (l *Logger) newline() {
	print("\n")
	if l.uart != nil {
		_ = l.uart.TryWriteFrom(nl[:])
	}
}

func (l *Logger) Println(parts ...any) { l.Print(parts...); l.newline() }

// Deci prints a label followed by a signed value in tenths (e.g. deci-°C
// style fixed point), used for temperature and fixed-point telemetry logs.
func (l *Logger) Deci(label string, deci int) {
	if deci < 0 {
		l.Print(label, "-")
		deci = -deci
	} else {
		l.Print(label)
	}
	whole := deci / 10
	frac := deci % 10
	l.Println(strconvx.Itoa(whole), ".", strconvx.Itoa(frac))
}

// Hex32 prints a label followed by an 8-digit uppercase hex value (e.g.
// the DFU bootloader handshake word or a frame CRC32) without going
// through strconvx/fmt, using a stack buffer the way conv.U32Hex expects.
func (l *Logger) Hex32(label string, v uint32) {
	var buf [8]byte
	l.Print(label, string(conv.U32Hex(buf[:], v)))
	l.newline()
}

// Default is the process-wide logger instance, matching the
// package-level `var log Logger` in main.go.
var Default Logger
