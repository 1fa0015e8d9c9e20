// Package fakehw provides in-memory hwio implementations for unit tests,
// the same role services/hal/internal/core's test doubles
// and gpio_worker_test.go fakes play for HAL device tests.
package fakehw

import (
	"context"
	"errors"
)

// ADC is a settable fake ADC channel.
type ADC struct {
	Raw   uint16
	Err   error
	Reads int
}

func (a *ADC) ReadRaw() (uint16, error) {
	a.Reads++
	if a.Err != nil {
		return 0, a.Err
	}
	return a.Raw, nil
}

var ErrRead = errors.New("fakehw: read failed")

// Pin is a settable fake digital input/output.
type Pin struct {
	Level bool
	Sets  []bool
}

func (p *Pin) Get() bool { return p.Level }

func (p *Pin) Set(level bool) {
	p.Level = level
	p.Sets = append(p.Sets, level)
}

// Strand records frames written to it.
type Strand struct {
	Frames [][5]uint32
}

func (s *Strand) SetFrame(pixels [5]uint32) {
	s.Frames = append(s.Frames, pixels)
}

// Watchdog counts kicks.
type Watchdog struct {
	Kicks int
}

func (w *Watchdog) Kick() { w.Kicks++ }

// Resetter records whether Reset was invoked.
type Resetter struct {
	Resets int
}

func (r *Resetter) Reset() { r.Resets++ }

// I2CTransaction is one queued host-initiated transaction for I2CSecondary.
type I2CTransaction struct {
	Written []byte
	ReadLen int
}

// I2CSecondary is a scripted fake of the MCU's target-mode I²C peripheral:
// tests enqueue transactions and observe the replies sent back.
type I2CSecondary struct {
	Pending []I2CTransaction
	Replies [][]byte
}

func (s *I2CSecondary) NextTransaction(ctx context.Context) ([]byte, int, error) {
	if len(s.Pending) == 0 {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	}
	tx := s.Pending[0]
	s.Pending = s.Pending[1:]
	return tx.Written, tx.ReadLen, nil
}

func (s *I2CSecondary) Reply(data []byte) error {
	s.Replies = append(s.Replies, append([]byte(nil), data...))
	return nil
}
