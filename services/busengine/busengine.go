// Package busengine implements the Bus Command Engine (spec.md §4.5): a
// register-map protocol served over an I²C secondary interface at
// address 0x6D. The first byte of every transaction selects a command
// code (types.RegCode); reads are answered from cached telemetry/config/
// DFU state, writes fan out to the Config Store, the DFU Pipeline, or a
// command event published for the Power State Machine.
//
// The cached-snapshot-via-retained-subscription shape is grounded on the
// drvshim/provider adapter pattern (services/hal/internal/
// drvshim/i2cshim.go): a thin interrupt-context-safe facade backed by
// state a background subscription keeps current, so the hot path never
// blocks on a channel receive.
package busengine

import (
	"sync"
	"sync/atomic"

	"supervisor-fw/bus"
	"supervisor-fw/services/cfgstore"
	"supervisor-fw/services/dfu"
	"supervisor-fw/types"
)

var (
	telemetryTopic = bus.T("telemetry", "snapshot")
	stateTopic     = bus.T("state", "current")
	cmdTopic       = bus.T("cmd", "event")
)

// Address is the fixed I²C secondary address (spec.md §4.5).
const Address = 0x6D

// Engine dispatches register reads/writes. Construct with NewEngine and
// call Run in its own task to keep the cached snapshot/state current;
// Read and Write are safe to call from the I²C ISR task without blocking.
type Engine struct {
	conn *bus.Connection
	cfg  *cfgstore.Store
	dfu  *dfu.Pipeline

	snapMu sync.RWMutex
	snap   types.Snapshot

	state atomic.Uint32 // types.State, stored as uint32
}

func NewEngine(conn *bus.Connection, cfg *cfgstore.Store, pipeline *dfu.Pipeline) *Engine {
	return &Engine{conn: conn, cfg: cfg, dfu: pipeline}
}

// Run keeps the engine's cached telemetry snapshot and state code current
// by following the retained bus topics the Input Sampler and Power State
// Machine publish to. It must run for the lifetime of the firmware.
func (e *Engine) Run(done <-chan struct{}) {
	snapSub := e.conn.Subscribe(telemetryTopic)
	stateSub := e.conn.Subscribe(stateTopic)
	defer snapSub.Unsubscribe()
	defer stateSub.Unsubscribe()

	for {
		select {
		case <-done:
			return
		case m, ok := <-snapSub.Channel():
			if !ok {
				return
			}
			if snap, ok := m.Payload.(types.Snapshot); ok {
				e.snapMu.Lock()
				e.snap = snap
				e.snapMu.Unlock()
			}
		case m, ok := <-stateSub.Channel():
			if !ok {
				return
			}
			if st, ok := m.Payload.(types.State); ok {
				e.state.Store(uint32(st))
			}
		}
	}
}

func (e *Engine) snapshot() types.Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

func (e *Engine) currentState() types.State {
	return types.State(e.state.Load())
}

// publishCommand emits a command event for the Power State Machine to
// consume (spec.md §4.5: "Write handling emits events to the state
// machine... for control commands").
func (e *Engine) publishCommand(ev types.Event) {
	e.conn.Publish(e.conn.NewMessage(cmdTopic, ev, false))
}
