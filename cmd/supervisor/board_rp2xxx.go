// cmd/supervisor/board_rp2xxx.go
//go:build rp2040 || rp2350

package main

import (
	"context"
	"machine"
	"time"

	"supervisor-fw/drivers/aht20"
	"supervisor-fw/internal/flash/fakeflash"
	"supervisor-fw/internal/hwio/aht20pcb"
	"supervisor-fw/internal/hwio/fakehw"
	"supervisor-fw/services/sampler"
)

// Pin assignments are hardware-dependent and MUST match the product
// schematic (spec.md §6 "GPIO surface"); these are placeholders the way
// cmd/pico-hal-main leaves its rail GPIO numbers for the board
// bring-up engineer to confirm against hardware.
const (
	pinFiveVEnable = machine.GPIO2
	pinSBCStrobe   = machine.GPIO3
	pinCMOn        = machine.GPIO4
	pinPG5V        = machine.GPIO5
	pinPwrBtn      = machine.GPIO6
	pinUserBtn     = machine.GPIO7

	adcVin     = machine.ADC0
	adcVscap   = machine.ADC1
	adcIin     = machine.ADC2
	adcMcuTemp = machine.ADC3
)

// newBoard wires the real GPIO/ADC capabilities through the `machine`
// package, grounded on services/hal/internal/platform/
// factories_rp2xxx.go's pin/ADC adapters. The flash controller and the
// target-mode I²C peripheral are spec.md §1 non-goals ("low-level MCU
// peripheral drivers... hardware I²C peripheral... treated as abstract
// capabilities"): a product build supplies its own flash.Device and
// hwio.I2CSecondary against the board's actual flash and I²C IP; this
// build tag stands up RAM-backed doubles so the firmware still links and
// runs end to end on hardware lacking that board-specific wiring.
// boardName is set at link time via -ldflags "-X main.boardName=...";
// left empty here for a generic build.
var boardName string

// aht20I2C is the controller-mode bus the PCB-temperature sensor sits on,
// distinct from the target-mode I²C0 the Bus Command Engine answers on
// (spec.md §4.5), grounded on DefaultI2CFactory's i2c0/i2c1 split
// (services/hal/internal/platform/factories_rp2xxx.go).
var aht20I2C = machine.I2C1

func newBoard() Board {
	_ = aht20I2C.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       machine.I2C1_SDA_PIN,
		SCL:       machine.I2C1_SCL_PIN,
	})
	pcbTempDev := aht20.New(aht20I2C)
	pcbTemp := aht20pcb.New(&pcbTempDev)

	out := Board{
		Name: boardName,
		Sampler: sampler.Channels{
			Vin:     adcChannel{p: adcVin},
			Vscap:   adcChannel{p: adcVscap},
			Iin:     adcChannel{p: adcIin},
			McuTemp: adcChannel{p: adcMcuTemp},
			PcbTemp: pcbTemp,
			CMOn:    gpioIn{p: pinCMOn},
			PG5V:    gpioIn{p: pinPG5V},
			PwrBtn:  gpioIn{p: pinPwrBtn},
			UserBtn: gpioIn{p: pinUserBtn},
		},
		FiveVEnable: gpioOut{p: pinFiveVEnable},
		SBCStrobe:   gpioOut{p: pinSBCStrobe},
		Resetter:    mcuResetter{},
		LEDStrand:   &fakehw.Strand{}, // real board: WS2812-style strand driver
		Watchdog:    &fakehw.Watchdog{},
		I2C:         &fakehw.I2CSecondary{}, // real board: target-mode I2C0 driver
	}

	pinFiveVEnable.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinSBCStrobe.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinCMOn.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	pinPG5V.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	pinPwrBtn.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	pinUserBtn.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	machine.InitADC()

	out.Flash = fakeflash.New(flashExtentRP2) // real board: on-chip flash driver over the spec.md §6 layout
	return out
}

const flashExtentRP2 = 0x118000

type gpioOut struct{ p machine.Pin }

func (g gpioOut) Set(level bool) { g.p.Set(level) }

type gpioIn struct{ p machine.Pin }

func (g gpioIn) Get() bool { return g.p.Get() }

type adcChannel struct{ p machine.ADC }

func (a adcChannel) ReadRaw() (uint16, error) {
	return a.p.Get(), nil
}

type mcuResetter struct{}

func (mcuResetter) Reset() { machine.CPUReset() }

func runForever(ctx context.Context) {
	<-ctx.Done()
	time.Sleep(10 * time.Millisecond)
}
