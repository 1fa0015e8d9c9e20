// Package dfu implements the DFU Staging Pipeline (spec.md §4.6): it
// receives block-indexed firmware image writes into the dual-bank DFU
// staging region and, on commit, hands off to the bootloader via a
// well-known handshake word.
//
// Its single-session, latch-on-error shape is grounded on the
// services/hal flash-adjacent drivers for register/offset bookkeeping
// (drivers/ltc4015/registers.go's address-table style) generalized from
// a fixed register map to a computed block offset; the mutual-exclusion
// discipline against the Config Store is the same flash.Owner capability
// both packages share (internal/flash/flash.go).
package dfu

import (
	"encoding/binary"
	"hash/crc32"
	"sync"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/errcode"
	"supervisor-fw/internal/flash"
	"supervisor-fw/internal/syslog"
	"supervisor-fw/types"
)

// blockFrameHeaderSize is the CRC32(4B) + block_num(2B) + length(2B)
// prefix ahead of the block's data (spec.md §4.6 block format).
const blockFrameHeaderSize = 8

const maxBlocks = flash.DFURegionSize / types.BlockBytes

var commitTopic = bus.T("dfu", "commit_requested")
var bootOutcomeTopic = bus.T("dfu", "boot_outcome")

// BootOutcome reports whether the bootloader's handshake word is still
// present at boot, i.e. whether a staged DFU commit has or has not yet
// been consumed by the bootloader's image swap.
type BootOutcome uint8

const (
	BootOutcomeNoPendingDFU BootOutcome = iota
	BootOutcomeNewImagePending
)

var (
	errBusNotAcquired = errcode.Busy
)

// Pipeline owns the RAM-only DFU session state and the staged writes
// into the DFU region. All exported methods are safe to call from the
// bus command engine's async DFU task; none may be called from interrupt
// context directly (spec.md §5: "Bus engine interrupt context: must not
// await; all slow work is queued").
type Pipeline struct {
	conn  *bus.Connection
	owner *flash.Owner

	mu         sync.Mutex
	state      types.DFUState
	bitmap     []byte // 1 bit per block, ceil(maxBlocks/8) bytes
	totalBytes uint32
}

func NewPipeline(conn *bus.Connection, owner *flash.Owner) *Pipeline {
	p := &Pipeline{
		conn:   conn,
		owner:  owner,
		bitmap: make([]byte, (maxBlocks+7)/8),
		state:  types.DFUState{Status: types.DFUIdle},
	}
	p.reportBootOutcome()
	return p
}

// reportBootOutcome implements the DFU resume-after-reset guard: because
// session state is RAM-only and destroyed by reset, the only durable
// trace of "did the last commit take" is the bootloader handshake word
// this same image would have consumed on a successful swap. A word still
// present means the bootloader has not yet (or did not) act on it.
func (p *Pipeline) reportBootOutcome() {
	dev, err := p.owner.TryAcquire()
	if err != nil {
		return
	}
	defer p.owner.Release()

	word := make([]byte, 4)
	if err := dev.ReadAt(flash.HandshakeOffset, word); err != nil {
		return
	}
	outcome := BootOutcomeNoPendingDFU
	if binary.BigEndian.Uint32(word) == flash.HandshakeMagic {
		outcome = BootOutcomeNewImagePending
	}
	p.conn.Publish(p.conn.NewMessage(bootOutcomeTopic, outcome, true))
}

// State returns a copy of the current session state for bus register
// reads (0x41, 0x42).
func (p *Pipeline) State() types.DFUState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start implements DFU_START(size): validates the size, erases the DFU
// region, and resets session bookkeeping (spec.md §4.6).
func (p *Pipeline) Start(size uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if size > flash.DFURegionSize {
		p.state = types.DFUState{Status: types.DFUErrorSize}
		return errcode.DFUSizeExceeded
	}

	dev, err := p.acquire()
	if err != nil {
		return err
	}
	defer p.owner.Release()

	if err := dev.EraseRange(flash.DFUStagingOffset, flash.DFURegionSize); err != nil {
		p.state = types.DFUState{Status: types.DFUErrorSize}
		return errcode.Of(err)
	}

	for i := range p.bitmap {
		p.bitmap[i] = 0
	}
	p.totalBytes = 0
	p.state = types.DFUState{ExpectedSize: size, Status: types.DFUReceiving}
	return nil
}

// Block implements DFU_BLOCK(frame): verifies the CRC32 over
// block_num||length||data, writes data at the block's offset within the
// DFU region, and marks the block received.
func (p *Pipeline) Block(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Status != types.DFUReceiving {
		return errcode.DFUNoSession
	}
	if len(frame) < blockFrameHeaderSize {
		p.state.Status = types.DFUErrorCRC
		return errcode.DFUFrameShort
	}

	wantCRC := binary.BigEndian.Uint32(frame[0:4])
	blockNum := binary.BigEndian.Uint16(frame[4:6])
	length := binary.BigEndian.Uint16(frame[6:8])
	if int(length) != len(frame)-blockFrameHeaderSize {
		p.state.Status = types.DFUErrorCRC
		return errcode.DFULengthMismatch
	}
	data := frame[blockFrameHeaderSize:]

	gotCRC := crc32.ChecksumIEEE(frame[4:])
	if gotCRC != wantCRC {
		p.state.Status = types.DFUErrorCRC
		return errcode.DFUCRCMismatch
	}

	total := p.state.TotalBlocks()
	if blockNum >= total || uint32(blockNum)*types.BlockBytes+uint32(length) > flash.DFURegionSize {
		p.state.Status = types.DFUErrorOutOfRange
		return errcode.DFUOutOfRange
	}

	dev, err := p.acquire()
	if err != nil {
		return err
	}
	defer p.owner.Release()

	off := flash.DFUStagingOffset + uint32(blockNum)*types.BlockBytes
	if err := dev.ProgramAt(off, data); err != nil {
		p.state.Status = types.DFUErrorCRC
		return errcode.Of(err)
	}

	if !p.bitSet(blockNum) {
		p.setBit(blockNum)
		p.state.BlocksWritten++
		p.totalBytes += uint32(length)
	}
	return nil
}

// Commit implements DFU_COMMIT: requires every expected block to be
// present, verifies the received byte count, writes the bootloader
// handshake word, and requests a system reset.
func (p *Pipeline) Commit() error {
	p.mu.Lock()

	if p.state.Status != types.DFUReceiving {
		p.mu.Unlock()
		return errcode.DFUNoSession
	}
	total := p.state.TotalBlocks()
	for b := uint16(0); b < total; b++ {
		if !p.bitSet(b) {
			p.state.Status = types.DFUErrorIncomplete
			p.mu.Unlock()
			return errcode.DFUIncomplete
		}
	}
	if p.totalBytes != p.state.ExpectedSize {
		p.state.Status = types.DFUErrorIncomplete
		p.mu.Unlock()
		return errcode.DFUIncomplete
	}
	p.state.Status = types.DFUCommitting
	p.mu.Unlock()

	dev, err := p.acquire()
	if err != nil {
		p.mu.Lock()
		p.state.Status = types.DFUErrorIncomplete
		p.mu.Unlock()
		return err
	}
	defer p.owner.Release()

	if err := dev.EraseRange(flash.HandshakeOffset, flash.HandshakeSize); err != nil {
		p.mu.Lock()
		p.state.Status = types.DFUErrorIncomplete
		p.mu.Unlock()
		return err
	}
	word := make([]byte, 4)
	binary.BigEndian.PutUint32(word, flash.HandshakeMagic)
	if err := dev.ProgramAt(flash.HandshakeOffset, word); err != nil {
		p.mu.Lock()
		p.state.Status = types.DFUErrorIncomplete
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.state.Status = types.DFUReady
	p.mu.Unlock()

	syslog.Default.Hex32("dfu: handshake written ", flash.HandshakeMagic)
	p.conn.Publish(p.conn.NewMessage(commitTopic, types.Event{Kind: types.EvDFUCommitRequested}, false))
	return nil
}

// Abort implements DFU_ABORT: discards the session back to Idle.
func (p *Pipeline) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = types.DFUState{Status: types.DFUIdle}
	for i := range p.bitmap {
		p.bitmap[i] = 0
	}
	p.totalBytes = 0
}

func (p *Pipeline) bitSet(block uint16) bool {
	return p.bitmap[block/8]&(1<<(block%8)) != 0
}

func (p *Pipeline) setBit(block uint16) {
	p.bitmap[block/8] |= 1 << (block % 8)
}

// acquire retries TryAcquire briefly; the DFU task is not interrupt
// context, so a short bounded wait here is acceptable even though the
// bus engine itself must never block (spec.md §5).
func (p *Pipeline) acquire() (flash.Device, error) {
	for i := 0; i < 20; i++ {
		dev, err := p.owner.TryAcquire()
		if err == nil {
			return dev, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil, errBusNotAcquired
}
