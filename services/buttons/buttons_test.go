package buttons

import (
	"testing"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/types"
)

func newTestMonitor(poweredDown bool) (*Monitor, *bus.Connection, *bus.Subscription) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(bus.T("button", "press"))
	m := NewMonitor(conn, func() bool { return poweredDown })
	return m, conn, sub
}

func TestShortPress(t *testing.T) {
	m, _, sub := newTestMonitor(false)
	now := time.Now()
	m.onSnapshot(types.Snapshot{PwrBtn: true}, now)
	m.onSnapshot(types.Snapshot{PwrBtn: false}, now.Add(200*time.Millisecond))

	select {
	case msg := <-sub.Channel():
		ev := msg.Payload.(PressEvent)
		if ev.Kind != PressShort {
			t.Fatalf("got %v, want PressShort", ev.Kind)
		}
	default:
		t.Fatal("expected press event")
	}
}

func TestLongPress(t *testing.T) {
	m, _, sub := newTestMonitor(false)
	now := time.Now()
	m.onSnapshot(types.Snapshot{PwrBtn: true}, now)
	m.onSnapshot(types.Snapshot{PwrBtn: false}, now.Add(4*time.Second))

	msg := <-sub.Channel()
	if ev := msg.Payload.(PressEvent); ev.Kind != PressLong {
		t.Fatalf("got %v, want PressLong", ev.Kind)
	}
}

func TestHeldForResetFiresWhilePoweredDownWithoutWaitingForRelease(t *testing.T) {
	m, _, sub := newTestMonitor(true)
	now := time.Now()
	m.onSnapshot(types.Snapshot{PwrBtn: true}, now)
	m.checkHeldForReset(now.Add(8100 * time.Millisecond))

	msg := <-sub.Channel()
	if ev := msg.Payload.(PressEvent); ev.Kind != PressHeldForReset {
		t.Fatalf("got %v, want PressHeldForReset", ev.Kind)
	}
}

func TestMidRangeHoldUnclassified(t *testing.T) {
	m, _, sub := newTestMonitor(false)
	now := time.Now()
	m.onSnapshot(types.Snapshot{PwrBtn: true}, now)
	m.onSnapshot(types.Snapshot{PwrBtn: false}, now.Add(2*time.Second))

	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected event for a 1s-3s hold, which spec.md §4.3 assigns to neither ShortPress nor LongPress: %+v", msg.Payload)
	default:
	}
}

func TestSubDebounceBlipIgnored(t *testing.T) {
	m, _, sub := newTestMonitor(false)
	now := time.Now()
	m.onSnapshot(types.Snapshot{PwrBtn: true}, now)
	m.onSnapshot(types.Snapshot{PwrBtn: false}, now.Add(10*time.Millisecond))

	select {
	case msg := <-sub.Channel():
		t.Fatalf("unexpected event for sub-threshold press: %+v", msg.Payload)
	default:
	}
}
