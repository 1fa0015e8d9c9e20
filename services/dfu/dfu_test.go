package dfu

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"supervisor-fw/bus"
	"supervisor-fw/internal/flash"
	"supervisor-fw/internal/flash/fakeflash"
	"supervisor-fw/types"
)

func newTestPipeline(t *testing.T) (*Pipeline, *flash.Owner, *fakeflash.Device) {
	t.Helper()
	dev := fakeflash.New(flash.DFUStagingOffset + flash.DFURegionSize)
	owner := flash.NewOwner(dev)
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	return NewPipeline(conn, owner), owner, dev
}

func buildBlock(blockNum uint16, data []byte) []byte {
	frame := make([]byte, blockFrameHeaderSize+len(data))
	binary.BigEndian.PutUint16(frame[4:6], blockNum)
	binary.BigEndian.PutUint16(frame[6:8], uint16(len(data)))
	copy(frame[8:], data)
	crc := crc32.ChecksumIEEE(frame[4:])
	binary.BigEndian.PutUint32(frame[0:4], crc)
	return frame
}

func TestStartValidatesSize(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	if err := p.Start(flash.DFURegionSize + 1); err == nil {
		t.Fatal("expected oversized DFU_START to error")
	}
	if p.State().Status != types.DFUErrorSize {
		t.Fatalf("status = %v, want DFUErrorSize", p.State().Status)
	}
}

func TestBlockWriteAndCommitRoundTrip(t *testing.T) {
	p, _, dev := newTestPipeline(t)

	size := uint32(types.BlockBytes*2 + 10)
	if err := p.Start(size); err != nil {
		t.Fatalf("Start: %v", err)
	}

	block0 := make([]byte, types.BlockBytes)
	for i := range block0 {
		block0[i] = byte(i)
	}
	block1 := make([]byte, types.BlockBytes)
	for i := range block1 {
		block1[i] = byte(255 - i)
	}
	block2 := make([]byte, 10)
	for i := range block2 {
		block2[i] = 0xAB
	}

	if err := p.Block(buildBlock(0, block0)); err != nil {
		t.Fatalf("block 0: %v", err)
	}
	if err := p.Block(buildBlock(1, block1)); err != nil {
		t.Fatalf("block 1: %v", err)
	}
	if err := p.Block(buildBlock(2, block2)); err != nil {
		t.Fatalf("block 2: %v", err)
	}

	if p.State().BlocksWritten != 3 {
		t.Fatalf("BlocksWritten = %d, want 3", p.State().BlocksWritten)
	}

	if err := p.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if p.State().Status != types.DFUReady {
		t.Fatalf("status after commit = %v, want Ready", p.State().Status)
	}

	got := make([]byte, types.BlockBytes)
	if err := dev.ReadAt(flash.DFUStagingOffset, got); err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if got[i] != block0[i] {
			t.Fatalf("staged block 0 byte %d = %#x, want %#x", i, got[i], block0[i])
		}
	}

	handshake := make([]byte, 4)
	if err := dev.ReadAt(flash.HandshakeOffset, handshake); err != nil {
		t.Fatal(err)
	}
	if binary.BigEndian.Uint32(handshake) != flash.HandshakeMagic {
		t.Fatal("handshake word not written on commit")
	}
}

func TestBlockCRCMismatchLatchesError(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	if err := p.Start(types.BlockBytes); err != nil {
		t.Fatalf("Start: %v", err)
	}

	frame := buildBlock(0, make([]byte, types.BlockBytes))
	frame[0] ^= 0xFF // corrupt the CRC

	if err := p.Block(frame); err == nil {
		t.Fatal("expected CRC mismatch error")
	}
	if p.State().Status != types.DFUErrorCRC {
		t.Fatalf("status = %v, want DFUErrorCRC", p.State().Status)
	}
}

func TestBlockOutOfRangeLatchesError(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	if err := p.Start(types.BlockBytes); err != nil {
		t.Fatalf("Start: %v", err)
	}

	frame := buildBlock(5, make([]byte, types.BlockBytes))
	if err := p.Block(frame); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if p.State().Status != types.DFUErrorOutOfRange {
		t.Fatalf("status = %v, want DFUErrorOutOfRange", p.State().Status)
	}
}

func TestCommitWithMissingBlocksLatchesIncomplete(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	if err := p.Start(types.BlockBytes * 2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Block(buildBlock(0, make([]byte, types.BlockBytes))); err != nil {
		t.Fatalf("block 0: %v", err)
	}

	if err := p.Commit(); err == nil {
		t.Fatal("expected incomplete commit to error")
	}
	if p.State().Status != types.DFUErrorIncomplete {
		t.Fatalf("status = %v, want DFUErrorIncomplete", p.State().Status)
	}
}

func TestAbortResetsToIdle(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	if err := p.Start(types.BlockBytes); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Abort()
	if p.State().Status != types.DFUIdle {
		t.Fatalf("status after abort = %v, want Idle", p.State().Status)
	}
	if p.State().BlocksWritten != 0 {
		t.Fatal("abort must clear block count")
	}
}

func TestBlocksWrittenNeverExceedsExpectedBlockCount(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	size := uint32(types.BlockBytes * 3)
	if err := p.Start(size); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Rewriting the same block must not inflate BlocksWritten past the
	// expected total (spec.md §8: "blocks_written never exceeds
	// ceil(expected_size / BLOCK_BYTES)").
	for i := 0; i < 3; i++ {
		if err := p.Block(buildBlock(0, make([]byte, types.BlockBytes))); err != nil {
			t.Fatalf("block 0 attempt %d: %v", i, err)
		}
	}
	if p.State().BlocksWritten != 1 {
		t.Fatalf("BlocksWritten = %d, want 1 after repeated writes of the same block", p.State().BlocksWritten)
	}
}
