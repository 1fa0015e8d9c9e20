// Command supervisor is the firmware entry point: it constructs the
// board's hardware capabilities, wires every core service onto a single
// bus.Bus, and runs each service on its own goroutine for the lifetime of
// the process. The bootstrap shape — one bus, one Connection per task,
// a context cancelled on shutdown — follows the same bootstrap shape as
// main.go elsewhere in this codebase (bus creation, per-task
// connections); after starting the services main only waits for the
// context to be cancelled.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/flash"
	"supervisor-fw/internal/syslog"
	"supervisor-fw/internal/uartlog"
	"supervisor-fw/services/buttons"
	"supervisor-fw/services/busengine"
	"supervisor-fw/services/cfgstore"
	"supervisor-fw/services/dfu"
	"supervisor-fw/services/ledrender"
	"supervisor-fw/services/powerstate"
	"supervisor-fw/services/sampler"
	"supervisor-fw/services/watchdogfeed"
	"supervisor-fw/types"
	"supervisor-fw/x/shmring"
	"supervisor-fw/x/strx"
)

// busQueueLen is the per-connection mailbox depth (spec.md §5: "bounded
// queues; a full queue is a bug, not a backpressure strategy" — sized
// generously since every task here drains promptly each tick).
const busQueueLen = 32

// uartLogBaud and uartLogRingBytes match the hal package's own uart
// adaptor default (services/hal/internal/devices/uart/adaptor.go: 115200).
const uartLogBaud = 115200
const uartLogRingBytes = 512

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	board := newBoard()
	syslog.Default.Println("supervisor: boot on ", strx.Coalesce(board.Name, "unknown-board"))

	uartRing := shmring.New(uartLogRingBytes)
	syslog.Default.SetUART(uartRing)
	go uartlog.Pump(ctx, uartRing, uartlog.NewHardwareWriter(uartLogBaud))

	b := bus.NewBus(busQueueLen)

	owner := flash.NewOwner(board.Flash)

	cfg := cfgstore.NewStore(b.NewConnection("cfgstore"), owner)
	pipeline := dfu.NewPipeline(b.NewConnection("dfu"), owner)
	engine := busengine.NewEngine(b.NewConnection("busengine"), cfg, pipeline)

	machine := powerstate.NewMachine(b.NewConnection("powerstate"), powerstate.HW{
		FiveVEnable: board.FiveVEnable,
		SBCStrobe:   board.SBCStrobe,
		Resetter:    board.Resetter,
	}, cfg.Get)

	smp := sampler.NewSampler(board.Sampler, b.NewConnection("sampler"), cfg.Get)
	btn := buttons.NewMonitor(b.NewConnection("buttons"), machine.IsPoweredDown)

	vscapConn := b.NewConnection("ledrender-vscap")
	vscapSub := vscapConn.Subscribe(bus.T("telemetry", "snapshot"))
	var lastVscapMV int32
	led := ledrender.NewRenderer(b.NewConnection("ledrender"), board.LEDStrand,
		machine.State,
		func() int32 {
			select {
			case msg := <-vscapSub.Channel():
				if snap, ok := msg.Payload.(types.Snapshot); ok {
					lastVscapMV = snap.VscapMV
				}
			default:
			}
			return lastVscapMV
		},
		func() uint8 { return cfg.Get().LEDBrightness },
	)

	// The watchdog must only be fed while the MCU is actually servicing the
	// rest of its duties; a hung power state machine starving this closure
	// is exactly the condition spec.md §7 wants the external watchdog to
	// catch, so feeding is gated on the machine's own liveness rather than
	// tied unconditionally to the ticker.
	feeder := watchdogfeed.NewFeeder(b.NewConnection("watchdogfeed"), board.Watchdog, machine.Alive)

	go cfg.Run(ctx)
	go smp.Run(ctx)
	go btn.Run(ctx)
	go led.Run(ctx)
	go feeder.Run(ctx)
	go machine.Run(ctx)
	go engine.Run(ctx.Done())
	go engine.ServeI2C(ctx, board.I2C)

	syslog.Default.Println("supervisor: running")
	runForever(ctx)

	vscapSub.Unsubscribe()
	time.Sleep(5 * time.Millisecond)
	syslog.Default.Println("supervisor: shutdown")
}
