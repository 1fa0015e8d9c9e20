package busengine

import (
	"context"
	"testing"
	"time"

	"supervisor-fw/internal/hwio/fakehw"
	"supervisor-fw/types"
)

func TestServeI2CReadTransactionReplies(t *testing.T) {
	e, _ := newTestEngine(t)
	dev := &fakehw.I2CSecondary{
		Pending: []fakehw.I2CTransaction{
			{Written: []byte{byte(types.RegLegacyHWVersion)}, ReadLen: 1},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	e.ServeI2C(ctx, dev)

	if len(dev.Replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(dev.Replies))
	}
	if dev.Replies[0][0] != types.LegacyHWVersion {
		t.Fatalf("reply = %#x, want %#x", dev.Replies[0][0], types.LegacyHWVersion)
	}
}

func TestServeI2CWriteTransactionAppliesConfig(t *testing.T) {
	e, _ := newTestEngine(t)
	dev := &fakehw.I2CSecondary{
		Pending: []fakehw.I2CTransaction{
			{Written: []byte{byte(types.RegLEDBrightness), 128}},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	e.ServeI2C(ctx, dev)

	if got := e.cfg.Get().LEDBrightness; got != 128 {
		t.Fatalf("LEDBrightness = %d, want 128", got)
	}
}
