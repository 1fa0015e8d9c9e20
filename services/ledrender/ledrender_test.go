package ledrender

import (
	"testing"

	"supervisor-fw/bus"
	"supervisor-fw/internal/hwio/fakehw"
	"supervisor-fw/types"
)

func TestBarGraphBoundaries(t *testing.T) {
	cases := []struct {
		mV   int32
		want int
	}{
		{4000, 1}, // below range clamps to 1 LED
		{5000, 1},
		{10000, 5},
		{12000, 5}, // above range clamps to 5 LEDs
		{7500, 3},
	}
	for _, c := range cases {
		px := barGraph(colorGreen, c.mV)
		lit := 0
		for _, p := range px {
			if p != 0 {
				lit++
			}
		}
		if lit != c.want {
			t.Errorf("barGraph(%d) lit=%d, want %d", c.mV, lit, c.want)
		}
	}
}

func TestOvervoltLatchHysteresis(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test")
	strand := &fakehw.Strand{}
	state := types.OperationalSolo
	vscap := int32(10000)
	r := NewRenderer(conn, strand,
		func() types.State { return state },
		func() int32 { return vscap },
		func() uint8 { return 255 })

	r.renderFrame()
	if r.overvoltLatched {
		t.Fatal("should not be latched at 10000 mV")
	}

	vscap = 10300
	r.renderFrame()
	if !r.overvoltLatched {
		t.Fatal("should latch above 10200 mV")
	}

	vscap = 10100
	r.renderFrame()
	if !r.overvoltLatched {
		t.Fatal("should remain latched between 10000 and 10200 mV (hysteresis)")
	}

	vscap = 9900
	r.renderFrame()
	if r.overvoltLatched {
		t.Fatal("should disengage at or below 10000 mV")
	}
}

func TestPowerOffIsSolidRed(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test")
	strand := &fakehw.Strand{}
	r := NewRenderer(conn, strand,
		func() types.State { return types.PowerOff },
		func() int32 { return 0 },
		func() uint8 { return 255 })

	r.renderFrame()
	if len(strand.Frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(strand.Frames))
	}
	for _, p := range strand.Frames[0] {
		if p != colorRed {
			t.Fatalf("expected solid red, got %#x", p)
		}
	}
}
