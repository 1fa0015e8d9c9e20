// cmd/supervisor/board.go
package main

import (
	"supervisor-fw/internal/flash"
	"supervisor-fw/internal/hwio"
	"supervisor-fw/services/sampler"
)

// Board bundles every hardware capability the supervisor core needs,
// each expressed as one of the narrow hwio interfaces (spec.md §1:
// "Low-level MCU peripheral drivers... treated as abstract
// capabilities"). newBoard is provided per build target (board_host.go
// for host/simulation builds, board_rp2xxx.go for the real MCU), the
// same split drawn in services/hal/internal/platform between
// factories_host.go and factories_rp2xxx.go.
type Board struct {
	// Name identifies the board variant for the boot banner; empty on a
	// build that didn't set it via -ldflags, in which case main falls
	// back to a generic label.
	Name string

	Flash flash.Device

	Sampler sampler.Channels

	FiveVEnable hwio.DigitalOut
	SBCStrobe   hwio.DigitalOut
	Resetter    hwio.Resetter

	LEDStrand hwio.LEDStrand
	Watchdog  hwio.Watchdog
	I2C       hwio.I2CSecondary
}
