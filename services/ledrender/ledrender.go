// Package ledrender implements the LED Renderer (spec.md §4.2): given the
// current power state, the latest Vscap reading and configured
// brightness, it produces a 5-pixel RGB frame at 25Hz. Scroll and flash
// timing is counted off the frame phase; brightness changes are smoothed
// by the x/ramp linear stepper, and x/mathx.MapU16 gives the
// Vscap-to-bar-height mapping.
package ledrender

import (
	"context"
	"sync/atomic"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/hwio"
	"supervisor-fw/types"
	"supervisor-fw/x/mathx"
	"supervisor-fw/x/ramp"
	"supervisor-fw/x/timex"
)

// brightnessRampMS/brightnessRampSteps bound how quickly the rendered
// brightness follows a configured LEDBrightness change, so a bus write
// mid-animation doesn't visibly snap the strand.
const (
	brightnessRampMS    = 400
	brightnessRampSteps = 16
	brightnessPollEvery = 200 * time.Millisecond
)

const frameHz = 25

// frameInterval is derived from frameHz rather than hand-converted, so
// the frame rate only has to change in one place.
var frameInterval = time.Duration(timex.PeriodFromHz(frameHz))

const (
	colorRed    uint32 = 0xFF0000
	colorGreen  uint32 = 0x00FF00
	colorYellow uint32 = 0xFFFF00
	colorPurple uint32 = 0x800080
	colorOff    uint32 = 0x000000
)

// Overvoltage hysteresis bounds (spec.md §4.2, §8).
const (
	overvoltEngageMV   = 10200
	overvoltDisengageMV = 10000
)

const scrollHz = 2
const flashHz = 5

type Renderer struct {
	conn    *bus.Connection
	strand  hwio.LEDStrand
	stateF  func() types.State
	vscapF  func() int32
	brightF func() uint8

	overvoltLatched bool
	phase           int // scroll/flash animation phase counter

	brightLevel atomic.Uint32 // current smoothed 0..255 brightness
}

func NewRenderer(conn *bus.Connection, strand hwio.LEDStrand, stateF func() types.State, vscapF func() int32, brightF func() uint8) *Renderer {
	r := &Renderer{conn: conn, strand: strand, stateF: stateF, vscapF: vscapF, brightF: brightF}
	r.brightLevel.Store(uint32(brightF()))
	return r
}

func (r *Renderer) Run(ctx context.Context) {
	go r.rampBrightness(ctx)

	t := time.NewTicker(frameInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.renderFrame()
		}
	}
}

// rampBrightness follows brightF's target smoothly rather than snapping
// the strand whenever a LEDBrightness config write lands mid-animation,
// reusing the x/ramp linear stepper across its target each time
// it moves.
func (r *Renderer) rampBrightness(ctx context.Context) {
	poll := time.NewTicker(brightnessPollEvery)
	defer poll.Stop()
	tick := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			target := uint16(r.brightF())
			cur := uint16(r.brightLevel.Load())
			if target == cur {
				continue
			}
			ramp.StartLinear(cur, target, 255, brightnessRampMS, brightnessRampSteps, tick, func(level uint16) {
				r.brightLevel.Store(uint32(level))
			})
		}
	}
}

func (r *Renderer) renderFrame() {
	state := r.stateF()
	vscap := r.vscapF()
	brightness := uint8(r.brightLevel.Load())

	r.updateOvervoltLatch(vscap)

	var pixels [5]uint32
	switch {
	case state == types.PowerOff || state == types.OffCharging:
		pixels = solid(colorRed)
	case state == types.SystemStartup:
		pixels = solid(colorYellow)
	case state.IsPoweredOnChild() && !isBlackout(state):
		pixels = barGraph(colorGreen, vscap)
	case isBlackout(state):
		pixels = r.scrollPattern(colorGreen, colorPurple)
	case state == types.EnteringStandby || state == types.Standby ||
		state == types.BlackoutShutdown || state == types.PoweredDownBlackout ||
		state == types.PoweredDownManual:
		pixels = solid(colorPurple)
	default:
		pixels = solid(colorOff)
	}

	if r.overvoltLatched {
		if r.phase%(frameHz/flashHz) < (frameHz/flashHz+1)/2 { // flashes at 5Hz against the 25Hz frame clock (3 frames on, 2 off)
			pixels[0] = colorRed
		} else {
			pixels[0] = colorOff
		}
	}

	pixels = scaleBrightness(pixels, brightness)

	r.phase++
	r.strand.SetFrame(pixels)
}

func (r *Renderer) updateOvervoltLatch(vscapMV int32) {
	if !r.overvoltLatched && vscapMV > overvoltEngageMV {
		r.overvoltLatched = true
	} else if r.overvoltLatched && vscapMV <= overvoltDisengageMV {
		r.overvoltLatched = false
	}
}

func isBlackout(s types.State) bool {
	return s == types.BlackoutSolo || s == types.BlackoutCoOp
}

func solid(c uint32) [5]uint32 {
	return [5]uint32{c, c, c, c, c}
}

// barGraph maps Vscap linearly from 5.0V (1 LED) to 10.0V (5 LEDs),
// per spec.md §4.2.
func barGraph(c uint32, vscapMV int32) [5]uint32 {
	lit := mathx.MapU16(clampU16(vscapMV, 5000, 10000), 5000, 10000, 1, 5)
	var pixels [5]uint32
	for i := 0; i < int(lit); i++ {
		pixels[i] = c
	}
	return pixels
}

func clampU16(v int32, lo, hi int32) uint16 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint16(v)
}

// scrollPattern alternates the two colors pixel by pixel and shifts the
// pattern one pixel right-to-left every frameHz/scrollHz frames, about 2Hz
// (spec.md §4.2 "Depleting (blackout) states").
func (r *Renderer) scrollPattern(a, b uint32) [5]uint32 {
	framesPerStep := frameHz / scrollHz
	step := (r.phase / framesPerStep) % 5
	var pixels [5]uint32
	for i := range pixels {
		if (i+step)%2 == 0 {
			pixels[i] = a
		} else {
			pixels[i] = b
		}
	}
	return pixels
}

func scaleBrightness(pixels [5]uint32, brightness uint8) [5]uint32 {
	if brightness == 255 {
		return pixels
	}
	var out [5]uint32
	for i, c := range pixels {
		r := uint8((c >> 16) & 0xFF)
		g := uint8((c >> 8) & 0xFF)
		b := uint8(c & 0xFF)
		r = uint8(uint32(r) * uint32(brightness) / 255)
		g = uint8(uint32(g) * uint32(brightness) / 255)
		b = uint8(uint32(b) * uint32(brightness) / 255)
		out[i] = uint32(r)<<16 | uint32(g)<<8 | uint32(b)
	}
	return out
}
