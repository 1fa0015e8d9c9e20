// Package uartlog drains the syslog Logger's optional shmring UART mirror
// onto a real UART peripheral. The split between a ring fed by the logger
// and a task that drains it onto hardware mirrors the
// services/hal/internal/uartio worker, generalized here from RX framing to
// a simple fire-and-forget TX mirror of diagnostic log lines.
package uartlog

import (
	"context"

	"supervisor-fw/x/shmring"
)

// Writer is the minimal blocking UART TX surface Pump needs. The rp2
// backend in uart_rp2.go satisfies it directly with *uartx.UART; the host
// backend in uart_host.go satisfies it by writing to the console.
type Writer interface {
	Write(p []byte) (int, error)
}

// Pump drains ring onto w until ctx is cancelled. It must run in its own
// task for the lifetime of the firmware once a UART mirror is attached to
// the logger via syslog.Logger.SetUART.
func Pump(ctx context.Context, ring *shmring.Ring, w Writer) {
	buf := make([]byte, 128)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ring.Readable():
		}
		for {
			n := ring.TryReadInto(buf)
			if n == 0 {
				break
			}
			if _, err := w.Write(buf[:n]); err != nil {
				break
			}
		}
	}
}
