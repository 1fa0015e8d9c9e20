// Package watchdogfeed implements the Watchdog Feeder (spec.md §2): it
// kicks the hardware watchdog at a fixed interval as long as the core
// state machine is alive. Its ticker-driven shape is grounded directly on a
// heartbeat-ticker service, generalized from a
// println heartbeat to an actual hardware watchdog kick gated on a
// liveness probe.
package watchdogfeed

import (
	"context"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/hwio"
)

const feedInterval = 100 * time.Millisecond

// Feeder kicks wd every feedInterval as long as alive() reports the
// power state machine's dispatch loop is still making progress. If alive
// ever reports false the feeder stops kicking and lets the hardware
// watchdog reset the MCU (spec.md §7 "Fatal conditions... resolved by the
// external hardware watchdog").
type Feeder struct {
	conn  *bus.Connection
	wd    hwio.Watchdog
	alive func() bool
}

func NewFeeder(conn *bus.Connection, wd hwio.Watchdog, alive func() bool) *Feeder {
	return &Feeder{conn: conn, wd: wd, alive: alive}
}

func (f *Feeder) Run(ctx context.Context) {
	t := time.NewTicker(feedInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if f.alive() {
				f.wd.Kick()
			}
		}
	}
}
