package busengine

import (
	"context"

	"supervisor-fw/internal/hwio"
	"supervisor-fw/types"
)

// ServeI2C drives the target-mode I²C peripheral: each transaction's first
// written byte selects the register (spec.md §4.5/§6); a transaction with
// a non-zero read phase is answered from Read (any further written bytes
// are ignored), and a write-only transaction hands the remaining written
// bytes to Write. It loops until ctx is cancelled, and must run for the lifetime of
// the firmware alongside Run.
//
// Grounded on drvshim.I2C's controller-mode shim
// (services/hal/internal/drvshim/i2cshim.go), inverted here for secondary
// mode: instead of initiating Tx, the loop answers transactions the host
// initiates against us.
func (e *Engine) ServeI2C(ctx context.Context, dev hwio.I2CSecondary) {
	for {
		written, readLen, err := dev.NextTransaction(ctx)
		if err != nil {
			return
		}
		if len(written) == 0 {
			continue
		}
		code := types.RegCode(written[0])
		payload := written[1:]

		if readLen > 0 {
			_ = dev.Reply(e.Read(code, readLen))
			continue
		}
		e.Write(code, payload)
	}
}
