// cmd/supervisor/board_host.go
//go:build !(rp2040 || rp2350)

package main

import (
	"context"
	"time"

	"supervisor-fw/internal/flash"
	"supervisor-fw/internal/flash/fakeflash"
	"supervisor-fw/internal/hwio/fakehw"
	"supervisor-fw/services/sampler"
)

// flashExtent is the highest offset the firmware's own flash layout
// touches (spec.md §6); a host build backs the whole range with one
// RAM-resident fakeflash.Device so cfgstore and dfu share the single
// flash.Owner exactly as they will share the real MCU's controller.
const flashExtent = flash.ConfigLogOffset + flash.ConfigLogSize

// newBoard constructs a Board for host/simulation builds: every
// capability is a fakehw/fakeflash double driven by nothing but the
// passage of time, the same role factories_host.go plays for
// `go test`/host HAL runs. It exists so this module links and its
// behavior can be exercised without real MCU peripherals; a production
// build supplies board_rp2xxx.go's real pin/ADC/flash wiring instead.
func newBoard() Board {
	return Board{
		Name:  "host-sim",
		Flash: fakeflash.New(flashExtent),
		Sampler: sampler.Channels{
			Vin:     &fakehw.ADC{Raw: 0},
			Vscap:   &fakehw.ADC{Raw: 0},
			Iin:     &fakehw.ADC{Raw: 0},
			McuTemp: &fakehw.ADC{Raw: 0},
			PcbTemp: &fakehw.ADC{Raw: 0},
			CMOn:    &fakehw.Pin{},
			PG5V:    &fakehw.Pin{},
			PwrBtn:  &fakehw.Pin{},
			UserBtn: &fakehw.Pin{},
		},
		FiveVEnable: &fakehw.Pin{},
		SBCStrobe:   &fakehw.Pin{},
		Resetter:    &hostResetter{},
		LEDStrand:   &fakehw.Strand{},
		Watchdog:    &fakehw.Watchdog{},
		I2C:         &fakehw.I2CSecondary{},
	}
}

// hostResetter logs instead of actually rebooting the process, since a
// host build has no MCU reset vector to invoke (spec.md §1 calls the
// reset primitive itself an abstract capability).
type hostResetter struct{}

func (hostResetter) Reset() {
	println("supervisor: system reset requested (host build: no-op)")
}

// runForever blocks until ctx is cancelled. Host builds have no
// hardware watchdog external to the process, so main just idles; a real
// MCU build relies on the external watchdog per spec.md §7.
func runForever(ctx context.Context) {
	<-ctx.Done()
	time.Sleep(10 * time.Millisecond)
}
