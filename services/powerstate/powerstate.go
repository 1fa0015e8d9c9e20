// Package powerstate implements the hierarchical Power State Machine
// (spec.md §4.7): a PowerOff/OffCharging/SystemStartup flat prelude
// feeding a PoweredOn super-state (Operational/Blackout/HostUnresponsive
// children) alongside the Standby and PoweredDown branches.
//
// Its single select-loop, named-timer-per-state shape is grounded on the
// services/hal/internal/core/loop.go dispatcher (a
// single-threaded run-to-completion event loop with a reused timer
// armed/disarmed around the loop body) and its gpio_worker.go debounce
// state tracking, generalized from device polling to power-state
// transitions.
package powerstate

import (
	"context"
	"sync/atomic"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/hwio"
	"supervisor-fw/internal/syslog"
	"supervisor-fw/services/buttons"
	"supervisor-fw/types"
)

var (
	telemetryTopic = bus.T("telemetry", "snapshot")
	cmdTopic       = bus.T("cmd", "event")
	pressTopic     = bus.T("button", "press")
	dfuCommitTopic = bus.T("dfu", "commit_requested")
	stateTopic     = bus.T("state", "current")
)

const hostGraceTimeout = 3 * time.Second
const standbyEntryTimeout = 10 * time.Second
const blackoutShutdownTimeout = 30 * time.Second
const poweredDownBlackoutTimeout = 60 * time.Second
const poweredDownAutoRestartTimeout = 2 * time.Second
const sbcStrobeDuration = 200 * time.Millisecond
const resetQuiescence = 50 * time.Millisecond

// HW bundles the GPIO capabilities the state machine drives directly.
// CM_ON, power-good, VIN and Vscap are read from the telemetry snapshot
// instead, since the Input Sampler already owns their debounce/filtering.
type HW struct {
	FiveVEnable hwio.DigitalOut
	SBCStrobe   hwio.DigitalOut
	Resetter    hwio.Resetter
}

// Machine runs the power state machine on its own task (spec.md §5:
// "single-threaded cooperative; all tasks run on one MCU core").
type Machine struct {
	conn *bus.Connection
	hw   HW
	cfg  func() types.ConfigRecord

	state         types.State
	stateEnteredAt time.Time

	snap types.Snapshot

	timerID types.TimerID
	timer   *time.Timer
	timerCh chan types.TimerID

	lastPingAt time.Time

	// loopTickNano is updated once per Run iteration and read from the
	// Watchdog Feeder's task via Alive; it is the only cross-task field
	// on Machine and so is kept atomic rather than mutex-guarded like the
	// rest of this single-threaded-by-convention struct.
	loopTickNano atomic.Int64

	// PoweredDownManual / PoweredDownBlackout reset requests are
	// deferred by resetQuiescence so final writes can flush.
	resetter hwio.Resetter
}

func NewMachine(conn *bus.Connection, hw HW, cfg func() types.ConfigRecord) *Machine {
	m := &Machine{
		conn:     conn,
		hw:       hw,
		cfg:      cfg,
		state:    types.PowerOff,
		timerCh:  make(chan types.TimerID, 1),
		resetter: hw.Resetter,
	}
	return m
}

// State returns the current state for in-process readers (e.g. the LED
// Renderer) that don't need bus indirection.
func (m *Machine) State() types.State {
	return m.state
}

// IsPoweredDown reports whether the machine is in one of the flat
// off/shutdown states, used by the Power Button Monitor to gate
// HeldForReset (spec.md §4.3).
func (m *Machine) IsPoweredDown() bool {
	switch m.state {
	case types.PowerOff, types.OffCharging, types.PoweredDownBlackout, types.PoweredDownManual:
		return true
	default:
		return false
	}
}

// Run drives the event loop until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) {
	telemSub := m.conn.Subscribe(telemetryTopic)
	cmdSub := m.conn.Subscribe(cmdTopic)
	pressSub := m.conn.Subscribe(pressTopic)
	dfuSub := m.conn.Subscribe(dfuCommitTopic)
	defer telemSub.Unsubscribe()
	defer cmdSub.Unsubscribe()
	defer pressSub.Unsubscribe()
	defer dfuSub.Unsubscribe()

	for {
		m.loopTickNano.Store(time.Now().UnixNano())

		// Tie-break order (spec.md §4.7): hard protective (VIN, carried
		// on the telemetry topic) > bus commands > button events > timers.
		select {
		case msg, ok := <-telemSub.Channel():
			if !ok {
				return
			}
			m.onTelemetry(msg, ctx)
			continue
		default:
		}
		select {
		case msg, ok := <-cmdSub.Channel():
			if !ok {
				return
			}
			m.onCommand(msg, ctx)
			continue
		default:
		}
		select {
		case msg, ok := <-pressSub.Channel():
			if !ok {
				return
			}
			m.onPress(msg, ctx)
			continue
		default:
		}
		select {
		case id := <-m.timerCh:
			m.onTimer(id, ctx)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case msg, ok := <-telemSub.Channel():
			if !ok {
				return
			}
			m.onTelemetry(msg, ctx)
		case msg, ok := <-cmdSub.Channel():
			if !ok {
				return
			}
			m.onCommand(msg, ctx)
		case msg, ok := <-pressSub.Channel():
			if !ok {
				return
			}
			m.onPress(msg, ctx)
		case <-dfuSub.Channel():
			m.requestSystemReset()
		case id := <-m.timerCh:
			m.onTimer(id, ctx)
		}
	}
}

// aliveGrace is how stale a loop tick may be before Alive reports false.
// The Input Sampler publishes telemetry every 20ms (spec.md §4.1) and
// the event loop always subscribes to it, so a healthy loop never goes
// this long between ticks; this is the gate the Watchdog Feeder checks
// before kicking the external watchdog (spec.md §7).
const aliveGrace = 200 * time.Millisecond

// Alive reports whether the event loop is still ticking within
// aliveGrace of now. It is safe to call from any task.
func (m *Machine) Alive() bool {
	last := m.loopTickNano.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) < aliveGrace
}

func (m *Machine) onTelemetry(msg *bus.Message, ctx context.Context) {
	snap, ok := msg.Payload.(types.Snapshot)
	if !ok {
		return
	}
	m.snap = snap
	m.handleEvent(types.Event{Kind: types.EvTelemetryChanged, Snapshot: snap}, ctx)
}

func (m *Machine) onCommand(msg *bus.Message, ctx context.Context) {
	ev, ok := msg.Payload.(types.Event)
	if !ok {
		return
	}
	m.handleEvent(ev, ctx)
}

func (m *Machine) onPress(msg *bus.Message, ctx context.Context) {
	pe, ok := msg.Payload.(buttons.PressEvent)
	if !ok {
		return
	}
	switch pe.Kind {
	case buttons.PressShort:
		m.handleEvent(types.Event{Kind: types.EvShortPress}, ctx)
	case buttons.PressLong:
		m.handleEvent(types.Event{Kind: types.EvLongPress}, ctx)
	case buttons.PressHeldForReset:
		m.handleEvent(types.Event{Kind: types.EvHeldForReset}, ctx)
	}
}

func (m *Machine) onTimer(id types.TimerID, ctx context.Context) {
	if id != m.timerID {
		return // stale timer fired after cancellation raced the channel
	}
	m.handleEvent(types.Event{Kind: types.EvTimerExpired, Timer: id}, ctx)
}

// armTimer starts a named timer owned by the current state, cancelling
// whatever was previously armed first (spec.md §5: "entering a new state
// cancels all timers owned by the previous state").
func (m *Machine) armTimer(id types.TimerID, d time.Duration) {
	m.cancelTimer()
	m.timerID = id
	m.timer = time.AfterFunc(d, func() {
		select {
		case m.timerCh <- id:
		default:
		}
	})
}

func (m *Machine) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerID = types.TimerNone
}

// requestSystemReset implements the spec.md §4.7 "System reset" primitive:
// a 50ms quiescence so final LED/GPIO writes flush before the MCU resets.
func (m *Machine) requestSystemReset() {
	time.AfterFunc(resetQuiescence, func() {
		m.resetter.Reset()
	})
}

func (m *Machine) publishState() {
	m.conn.Publish(m.conn.NewMessage(stateTopic, m.state, true))
}

func (m *Machine) logTransition(from, to types.State) {
	syslog.Default.Print("powerstate: ")
	syslog.Default.Print(from.String())
	syslog.Default.Print(" -> ")
	syslog.Default.Println(to.String())
}
