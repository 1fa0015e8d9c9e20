package watchdogfeed

import (
	"context"
	"testing"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/hwio/fakehw"
)

func TestFeederKicksWhileAlive(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test")
	wd := &fakehw.Watchdog{}
	alive := true
	f := NewFeeder(conn, wd, func() bool { return alive })

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	f.Run(ctx)

	if wd.Kicks == 0 {
		t.Fatal("expected at least one kick while alive")
	}
}

func TestFeederStopsKickingWhenNotAlive(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test")
	wd := &fakehw.Watchdog{}
	f := NewFeeder(conn, wd, func() bool { return false })

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	f.Run(ctx)

	if wd.Kicks != 0 {
		t.Fatalf("expected no kicks when not alive, got %d", wd.Kicks)
	}
}
