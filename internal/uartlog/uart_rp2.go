//go:build rp2040 || rp2350

package uartlog

import "github.com/jangala-dev/tinygo-uartx/uartx"

// NewHardwareWriter configures UART0 as the diagnostic log mirror,
// the same peripheral DefaultUARTFactory exposes as
// "uart0" (services/hal/internal/platform/factories_rp2xxx.go).
func NewHardwareWriter(baud uint32) Writer {
	_ = uartx.UART0.Configure(uartx.UARTConfig{})
	uartx.UART0.SetBaudRate(baud)
	return uartx.UART0
}
