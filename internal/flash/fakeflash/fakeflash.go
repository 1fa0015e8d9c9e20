// Package fakeflash is a RAM-backed flash.Device test double. It
// mirrors the failure texture of real NOR flash closely enough to
// exercise the Config Store and DFU pipeline's corruption-recovery
// paths: erased bytes read back as 0xFF, and ProgramAt can only clear
// bits (never set an already-programmed bit back to 1) without an
// intervening erase.
package fakeflash

import "errors"

// ErrNotErased is returned by ProgramAt when the target range contains a
// bit that would need to flip 0->1, which real flash cannot do without
// an erase.
var ErrNotErased = errors.New("fakeflash: program target not erased")

type Device struct {
	mem []byte
}

// New returns a Device of the given size with every byte erased (0xFF).
func New(size uint32) *Device {
	d := &Device{mem: make([]byte, size)}
	for i := range d.mem {
		d.mem[i] = 0xFF
	}
	return d
}

func (d *Device) ReadAt(off uint32, p []byte) error {
	if int(off)+len(p) > len(d.mem) {
		return errors.New("fakeflash: read out of range")
	}
	copy(p, d.mem[off:])
	return nil
}

func (d *Device) ProgramAt(off uint32, p []byte) error {
	if int(off)+len(p) > len(d.mem) {
		return errors.New("fakeflash: program out of range")
	}
	for i, b := range p {
		cur := d.mem[int(off)+i]
		if cur&b != b {
			return ErrNotErased
		}
		d.mem[int(off)+i] = b
	}
	return nil
}

func (d *Device) EraseRange(off, size uint32) error {
	if int(off)+int(size) > len(d.mem) {
		return errors.New("fakeflash: erase out of range")
	}
	for i := off; i < off+size; i++ {
		d.mem[i] = 0xFF
	}
	return nil
}

// Corrupt flips bytes within [off, off+len(garbage)) to garbage, used by
// tests to simulate a torn write or bit-rot mid-record.
func (d *Device) Corrupt(off uint32, garbage []byte) {
	copy(d.mem[off:], garbage)
}
