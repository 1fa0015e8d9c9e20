//go:build !rp2040 && !rp2350

package uartlog

import "os"

// NewHardwareWriter on host builds mirrors the log UART onto stderr so
// `go test`/host simulation runs can observe it, matching the
// host/"!rp2040 && !rp2350" factory split (factories_host.go).
func NewHardwareWriter(baud uint32) Writer {
	_ = baud
	return os.Stderr
}
