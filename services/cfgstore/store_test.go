package cfgstore

import (
	"math"
	"testing"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/flash"
	"supervisor-fw/internal/flash/fakeflash"
	"supervisor-fw/types"
)

func newTestStore(t *testing.T) (*Store, *flash.Owner, *fakeflash.Device) {
	t.Helper()
	dev := fakeflash.New(flash.ConfigLogSize * 4) // device four times the log size; the log itself uses the region at offset 0
	owner := flash.NewOwner(dev)
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	s := &Store{
		conn:     conn,
		owner:    owner,
		base:     0,
		halfSize: flash.ConfigLogSize / 2,
		appendQ:  make(chan appendJob, 32),
	}
	s.load()
	return s, owner, dev
}

func drain(t *testing.T, s *Store, owner *flash.Owner) {
	t.Helper()
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case job := <-s.appendQ:
			s.persist(job)
		default:
			return
		}
	}
}

func TestFreshLogUsesDefaults(t *testing.T) {
	s, _, _ := newTestStore(t)
	rec := s.Get()
	if rec != types.DefaultConfigRecord() {
		t.Fatalf("fresh log should yield defaults, got %+v", rec)
	}
}

func TestSetThenReloadRoundTrips(t *testing.T) {
	s, owner, dev := newTestStore(t)

	if !s.Set(types.KeyLEDBrightness, []byte{200}) {
		t.Fatal("expected Set to succeed")
	}
	drain(t, s, owner)

	reloaded := &Store{base: 0, halfSize: flash.ConfigLogSize / 2, owner: owner}
	reloaded.load()
	if reloaded.Get().LEDBrightness != 200 {
		t.Fatalf("LEDBrightness after reload = %d, want 200", reloaded.Get().LEDBrightness)
	}
	_ = dev
}

func TestF32CorrectionScaleRoundTripsBitIdentical(t *testing.T) {
	s, owner, _ := newTestStore(t)

	want := float32(1.0456789)
	if !s.Set(types.KeyVinCorrectionScale, u32be(math.Float32bits(want))) {
		t.Fatal("expected Set to succeed")
	}
	drain(t, s, owner)

	reloaded := &Store{base: 0, halfSize: flash.ConfigLogSize / 2, owner: owner}
	reloaded.load()
	got := reloaded.Get().VinCorrectionScale
	if got != want {
		t.Fatalf("VinCorrectionScale = %v, want bit-identical %v", got, want)
	}
}

func TestInvalidWriteIsRejectedAndCounted(t *testing.T) {
	s, _, _ := newTestStore(t)
	before := s.Get()

	// power_off >= power_on violates the invariant.
	ok := s.Set(types.KeyPowerOffVscapCV, u16be(5000))
	if ok {
		t.Fatal("expected Set to reject an invariant-violating write")
	}
	if s.RejectedWrites() != 1 {
		t.Fatalf("RejectedWrites = %d, want 1", s.RejectedWrites())
	}
	if s.Get() != before {
		t.Fatal("rejected write must not mutate the mirror")
	}
}

func TestCorruptRecordTerminatesScan(t *testing.T) {
	s, owner, dev := newTestStore(t)

	s.Set(types.KeyLEDBrightness, []byte{77})
	drain(t, s, owner)
	s.Set(types.KeyWatchdogTimeoutMS, u16be(42))
	drain(t, s, owner)

	// Corrupt the second record's CRC trailer.
	halfBase := s.base + uint32(s.active)*s.halfSize
	dev.Corrupt(halfBase+s.writeOff-1, []byte{0x00})

	reloaded := &Store{base: 0, halfSize: flash.ConfigLogSize / 2, owner: owner}
	reloaded.load()
	rec := reloaded.Get()
	if rec.LEDBrightness != 77 {
		t.Fatalf("first record should survive, LEDBrightness = %d", rec.LEDBrightness)
	}
	if rec.WatchdogTimeoutMS == 42 {
		t.Fatal("corrupt second record must not be applied")
	}
}

func TestCompactionTriggersNearFullHalf(t *testing.T) {
	s, owner, _ := newTestStore(t)

	// Force writeOff close to the erase-block reserve so the next persist
	// compacts rather than appending in place.
	s.writeOff = s.halfSize - flash.EraseBlockSize + 1
	genBefore := s.active

	s.Set(types.KeyLEDBrightness, []byte{9})
	drain(t, s, owner)

	if s.Compactions() == 0 {
		t.Fatal("expected a compaction to have run")
	}
	if s.active == genBefore && s.Compactions() > 0 {
		// active half should have flipped on compaction
		t.Fatalf("active half did not flip after compaction")
	}
	if s.Get().LEDBrightness != 9 {
		t.Fatalf("LEDBrightness after compaction = %d, want 9", s.Get().LEDBrightness)
	}
}
