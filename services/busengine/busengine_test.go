package busengine

import (
	"encoding/binary"
	"testing"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/flash"
	"supervisor-fw/internal/flash/fakeflash"
	"supervisor-fw/services/cfgstore"
	"supervisor-fw/services/dfu"
	"supervisor-fw/types"
)

func newTestEngine(t *testing.T) (*Engine, *bus.Connection) {
	t.Helper()
	dev := fakeflash.New(flash.DFUStagingOffset + flash.DFURegionSize)
	owner := flash.NewOwner(dev)
	b := bus.NewBus(8)

	cfgConn := b.NewConnection("cfg")
	cfg := cfgstore.NewStore(cfgConn, owner)
	dfuConn := b.NewConnection("dfu")
	pipeline := dfu.NewPipeline(dfuConn, owner)

	engineConn := b.NewConnection("engine")
	e := NewEngine(engineConn, cfg, pipeline)
	return e, b.NewConnection("driver")
}

func TestReadVersionRegisters(t *testing.T) {
	e, _ := newTestEngine(t)

	if got := e.Read(types.RegLegacyHWVersion, 1); got[0] != types.LegacyHWVersion {
		t.Fatalf("legacy hw version = %#x, want %#x", got[0], types.LegacyHWVersion)
	}
	if got := e.Read(types.RegLegacyFWVersion, 1); got[0] != types.LegacyFWVersion {
		t.Fatalf("legacy fw version = %#x, want %#x", got[0], types.LegacyFWVersion)
	}
}

func TestUnknownCommandReadsFF(t *testing.T) {
	e, _ := newTestEngine(t)
	got := e.Read(types.RegCode(0x99), 2)
	for _, b := range got {
		if b != 0xFF {
			t.Fatalf("unknown command read = %#v, want all 0xFF", got)
		}
	}
}

func TestConfigWriteThenReadRoundTrips(t *testing.T) {
	e, _ := newTestEngine(t)

	payload := make([]byte, 1)
	payload[0] = 200
	e.Write(types.RegLEDBrightness, payload)

	got := e.Read(types.RegLEDBrightness, 1)
	if got[0] != 200 {
		t.Fatalf("LED brightness readback = %d, want 200", got[0])
	}
}

func TestWatchdogTimeoutWritePublishesCommandEvent(t *testing.T) {
	e, driver := newTestEngine(t)
	sub := driver.Subscribe(cmdTopic)
	defer sub.Unsubscribe()

	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, 1500)
	e.Write(types.RegWatchdogTimeoutMS, data)

	select {
	case m := <-sub.Channel():
		ev, ok := m.Payload.(types.Event)
		if !ok || ev.Kind != types.EvSetWatchdogTimeout || ev.WatchdogTimeoutMS != 1500 {
			t.Fatalf("unexpected command event: %+v", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command event")
	}
}

func TestStateCodeReadReflectsPublishedState(t *testing.T) {
	e, driver := newTestEngine(t)
	done := make(chan struct{})
	go e.Run(done)
	defer close(done)

	driver.Publish(driver.NewMessage(stateTopic, types.OperationalCoOp, true))
	time.Sleep(20 * time.Millisecond)

	got := e.Read(types.RegStateCode, 1)
	if got[0] != byte(types.OperationalCoOp) {
		t.Fatalf("state code = %d, want %d", got[0], byte(types.OperationalCoOp))
	}
}

func TestTelemetryReadReflectsPublishedSnapshot(t *testing.T) {
	e, driver := newTestEngine(t)
	done := make(chan struct{})
	go e.Run(done)
	defer close(done)

	driver.Publish(driver.NewMessage(telemetryTopic, types.Snapshot{VinMV: 12000}, true))
	time.Sleep(20 * time.Millisecond)

	got := e.Read(types.RegVinMV, 2)
	if binary.BigEndian.Uint16(got) != 12000 {
		t.Fatalf("VIN read = %d, want 12000", binary.BigEndian.Uint16(got))
	}
}
