// Package buttons implements the Power Button Monitor (spec.md §4.3): it
// classifies already-debounced power-button edges (the Input Sampler owns
// the raw debounce, spec.md §4.1) into ShortPress/LongPress/HeldForReset,
// and republishes raw user-button edges unclassified. Edge classification
// by held-duration buckets mirrors gpio_worker.go's edge
// detector, generalized from a single rising/falling callback to a
// press-duration state machine.
package buttons

import (
	"context"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/types"
)

const (
	shortMin = 50 * time.Millisecond
	shortMax = 1 * time.Second
	longMin  = 3 * time.Second
	resetMin = 8 * time.Second
)

type PressKind uint8

const (
	PressShort PressKind = iota
	PressLong
	PressHeldForReset
)

type PressEvent struct {
	Kind PressKind
}

type UserButtonEvent struct {
	Pressed bool
}

// Monitor classifies power-button holds; its isPoweredDown callback reports
// whether the supervisor is currently in a powered-down state, needed to
// gate HeldForReset (spec.md §4.3: "held >= 8s while powered down; forces
// hard reset").
type Monitor struct {
	conn *bus.Connection

	snapSub *bus.Subscription

	pwrDown    time.Time
	pwrHeld    bool
	userDown   time.Time
	userHeld   bool
	lastUserBtn bool
	lastPwrBtn  bool

	isPoweredDown func() bool

	pressTopic bus.Topic
	userTopic  bus.Topic
}

func NewMonitor(conn *bus.Connection, isPoweredDown func() bool) *Monitor {
	return &Monitor{
		conn:          conn,
		isPoweredDown: isPoweredDown,
		pressTopic:    bus.T("button", "press"),
		userTopic:     bus.T("button", "user"),
	}
}

func (m *Monitor) Run(ctx context.Context) {
	m.snapSub = m.conn.Subscribe(bus.T("telemetry", "snapshot"))
	defer m.conn.Unsubscribe(m.snapSub)

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.snapSub.Channel():
			snap, ok := msg.Payload.(types.Snapshot)
			if !ok {
				continue
			}
			m.onSnapshot(snap, time.Now())
		case <-tick.C:
			m.checkHeldForReset(time.Now())
		}
	}
}

func (m *Monitor) onSnapshot(snap types.Snapshot, now time.Time) {
	if snap.PwrBtn != m.lastPwrBtn {
		if snap.PwrBtn {
			m.pwrDown = now
			m.pwrHeld = false
		} else {
			m.classifyPowerRelease(now)
		}
		m.lastPwrBtn = snap.PwrBtn
	}

	if snap.UserBtn != m.lastUserBtn {
		m.conn.Publish(m.conn.NewMessage(m.userTopic, UserButtonEvent{Pressed: snap.UserBtn}, false))
		m.lastUserBtn = snap.UserBtn
	}
}

func (m *Monitor) classifyPowerRelease(now time.Time) {
	if m.pwrHeld {
		// Already fired HeldForReset while held; releasing doesn't emit
		// a second event.
		return
	}
	held := now.Sub(m.pwrDown)
	switch {
	case held >= resetMin && m.isPoweredDown():
		m.emit(PressHeldForReset)
	case held >= longMin:
		m.emit(PressLong)
	case held >= shortMin && held < shortMax:
		m.emit(PressShort)
	default:
		// sub-50ms blip, or a 1s-3s hold that spec.md §4.3 assigns to
		// neither bucket (ShortPress is "< 1s", LongPress is ">= 3s"):
		// not a classified press, ignore.
	}
}

// checkHeldForReset fires HeldForReset as soon as the 8s threshold is
// crossed while still held and powered down, without waiting for release
// (spec.md §4.3: "forces hard reset" — the reset must not wait on release).
func (m *Monitor) checkHeldForReset(now time.Time) {
	if m.lastPwrBtn && !m.pwrHeld && m.isPoweredDown() {
		if now.Sub(m.pwrDown) >= resetMin {
			m.pwrHeld = true
			m.emit(PressHeldForReset)
		}
	}
}

func (m *Monitor) emit(k PressKind) {
	m.conn.Publish(m.conn.NewMessage(m.pressTopic, PressEvent{Kind: k}, false))
}
