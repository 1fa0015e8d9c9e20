// Package flash describes the fixed MCU flash layout shared with the
// bootloader (spec.md §6) and the single-writer ownership capability that
// arbitrates between the two in-firmware flash writers: the Config Store
// and the DFU Staging Pipeline (spec.md §5, §9).
package flash

import "errors"

// Region offsets and sizes, relative to the MCU flash base. These must
// match the separate bootloader's own layout constants exactly; the two
// images are built from different source trees but share this contract.
const (
	BootStubOffset = 0x000000
	BootStubSize   = 256

	// Bootloader hands the "new image pending" word here on DFU commit.
	HandshakeOffset = 0x006000
	HandshakeSize   = 4 * 1024

	// HandshakeMagic is written by DFU_COMMIT to ask the bootloader to
	// swap images on next boot (spec.md §8 scenario 4).
	HandshakeMagic uint32 = 0xD0DEFEED

	AppImageAOffset = 0x007000
	AppImageASize   = 512 * 1024

	DFUStagingOffset = 0x087000
	DFURegionSize    = 516 * 1024

	ConfigLogOffset = 0x108000
	ConfigLogSize   = 64 * 1024

	// EraseBlockSize is the MCU's flash erase granularity. The Config
	// Store's ping-pong compaction (spec.md §4.4) triggers when free space
	// in the active half falls below one of these blocks.
	EraseBlockSize = 4096
)

// Device is the raw byte-addressable flash peripheral, abstracted from the
// MCU's specific flash controller (spec.md §1: "Low-level MCU peripheral
// drivers... treated as abstract capabilities").
type Device interface {
	// ReadAt copies len(p) bytes starting at absolute offset off.
	ReadAt(off uint32, p []byte) error
	// ProgramAt writes p at absolute offset off. The region must already
	// be erased; ProgramAt never erases on the caller's behalf.
	ProgramAt(off uint32, p []byte) error
	// EraseRange erases every erase-block overlapping [off, off+size).
	EraseRange(off, size uint32) error
}

// ErrBusy is returned by TryAcquire when the flash controller is already
// claimed by the other writer.
var ErrBusy = errors.New("flash: controller busy")

// Owner is the single-writer-at-a-time capability token described in
// spec.md §5 ("these two never run concurrently") and §9 ("Enforce mutual
// exclusion via a single flash-access ownership capability"). The Config
// Store and DFU Pipeline each hold a reference to the same Owner; only one
// may be mid-operation at a time.
type Owner struct {
	dev  Device
	held chan struct{} // 1-buffered; acts as a non-blocking mutex
}

func NewOwner(dev Device) *Owner {
	o := &Owner{dev: dev, held: make(chan struct{}, 1)}
	o.held <- struct{}{}
	return o
}

// TryAcquire claims exclusive flash access. Callers MUST call Release.
func (o *Owner) TryAcquire() (Device, error) {
	select {
	case <-o.held:
		return o.dev, nil
	default:
		return nil, ErrBusy
	}
}

func (o *Owner) Release() {
	select {
	case o.held <- struct{}{}:
	default:
	}
}
