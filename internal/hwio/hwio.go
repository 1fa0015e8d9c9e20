// Package hwio defines the abstract hardware capabilities the supervisor
// core depends on. Concrete implementations (ADC/GPIO/PWM/flash/watchdog
// peripheral drivers) live outside this module; the core only ever holds
// these narrow interfaces, the same boundary drawn
// between services/hal (device logic) and its build-tagged provider
// packages (services/hal/internal/provider, services/hal/internal/drvshim).
package hwio

import "context"

// ADCChannel reads a single analog input and returns a raw, unscaled sample.
// Scaling to physical units is the caller's job (see services/sampler).
type ADCChannel interface {
	ReadRaw() (uint16, error)
}

// DigitalIn reads a debounced-by-hardware-or-not digital level. Callers in
// this firmware perform their own software debounce (spec.md §4.1/§4.3);
// this interface only has to report the instantaneous pin state.
type DigitalIn interface {
	Get() bool
}

// DigitalOut drives an output pin. Used for the 5V rail enable, the SBC
// power-button strobe and USB-disable lines (spec.md §6 GPIO surface).
type DigitalOut interface {
	Set(level bool)
}

// LEDStrand renders one frame onto the 5-pixel RGB strand (spec.md §4.2).
// Colors are packed 0xRRGGBB; index 0..4.
type LEDStrand interface {
	SetFrame(pixels [5]uint32)
}

// Watchdog is the hardware watchdog peripheral. Kick extends the timeout
// window; a missed Kick past the hardware timeout resets the MCU — the
// spec's only path for a "fatal: watchdog loop dead" condition (spec.md §7).
type Watchdog interface {
	Kick()
}

// Resetter performs the MCU system reset primitive (spec.md §4.7 "System
// reset"). Implementations should not return.
type Resetter interface {
	Reset()
}

// I2CSecondary abstracts the MCU's I²C peripheral running in secondary
// (target) mode at the fixed address the Bus Command Engine answers on
// (spec.md §4.5). It is the target-mode counterpart of a
// drvshim.I2C controller-mode shim: instead of initiating Tx(addr, w, r),
// the firmware here waits to be addressed and replies within the host's
// clock-stretching budget.
type I2CSecondary interface {
	// NextTransaction blocks until the host addresses this peripheral,
	// returning the bytes the host wrote (command code plus any write
	// payload) and how many bytes the host's read phase expects back (0
	// for a write-only transaction).
	NextTransaction(ctx context.Context) (written []byte, readLen int, err error)

	// Reply supplies the bytes clocked out during a pending read phase.
	// Called only when the preceding NextTransaction reported readLen > 0.
	Reply(data []byte) error
}

