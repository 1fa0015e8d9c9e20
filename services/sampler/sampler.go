// Package sampler implements the Input Sampler (spec.md §4.1): it owns
// every analog and digital input, applies correction scaling and IIR
// filtering, and is the sole writer of the shared telemetry snapshot.
// Its periodic-timer-driven loop is grounded on
// services/hal/worker.go measureWorker, which also rearms a single reused
// *time.Timer each pass rather than spinning a goroutine per channel.
package sampler

import (
	"context"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/hwio"
	"supervisor-fw/types"
	"supervisor-fw/x/mathx"
)

// VinDivisor etc. are compile-time hardware-dependent constants (spec.md
// §4.1 "Scaling"). Values here are placeholders for a 40V-input resistor
// divider feeding a 3.3V-referenced ADC; a real board overrides them via
// a build-tagged file the way per-board pin maps are overridden elsewhere.
const (
	adcFullScaleMV = 3300
	adcMaxCount    = 4095

	VinDivisor   = 16.0 // Vin = raw_mV * VinDivisor
	VscapDivisor = 4.0
	IinDivisor   = 1.0 // current-sense amp gain folded in here
)

const sampleInterval = 20 * time.Millisecond
const debounceStable = 20 * time.Millisecond
const changeThresholdMV = 500

const iirAlpha = 0.25 // spec.md §4.1: "first-order IIR (α ≈ 0.25)"

// Channels is the hardware bundle the sampler owns exclusively.
type Channels struct {
	Vin, Vscap, Iin, McuTemp, PcbTemp hwio.ADCChannel
	CMOn, PG5V, PwrBtn, UserBtn       hwio.DigitalIn
}

type digitalDebounce struct {
	stable    bool
	candidate bool
	since     time.Time
}

// Sampler owns the shared Snapshot and is its only writer.
type Sampler struct {
	ch   Channels
	conn *bus.Connection
	cfg  func() types.ConfigRecord

	snap types.Snapshot

	filtVinMV, filtVscapMV, filtIinMV float64
	filtMcuTemp, filtPcbTemp          float64
	haveFilt                          bool

	cmOn, pg5v, pwrBtn, userBtn digitalDebounce

	adcFailCount uint32

	snapTopic bus.Topic
	evTopic   bus.Topic
}

// NewSampler constructs a Sampler. cfg returns the live config record
// (read from services/cfgstore) so correction scales apply on every pass.
// samplePass takes its own `now` from the ticker in Run (or directly from
// a test), so the sampler needs no injected clock of its own.
func NewSampler(ch Channels, conn *bus.Connection, cfg func() types.ConfigRecord) *Sampler {
	return &Sampler{
		ch:        ch,
		conn:      conn,
		cfg:       cfg,
		snapTopic: bus.T("telemetry", "snapshot"),
		evTopic:   bus.T("telemetry", "changed"),
	}
}

func (s *Sampler) Run(ctx context.Context) {
	t := time.NewTicker(sampleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.samplePass(now)
		}
	}
}

func (s *Sampler) samplePass(now time.Time) {
	cfg := s.cfg()

	s.updateChannel(&s.filtVinMV, s.ch.Vin, VinDivisor, float64(cfg.VinCorrectionScale))
	s.updateChannel(&s.filtVscapMV, s.ch.Vscap, VscapDivisor, float64(cfg.VscapCorrectionScale))
	s.updateChannel(&s.filtIinMV, s.ch.Iin, IinDivisor, float64(cfg.IinCorrectionScale))
	s.updateChannel(&s.filtMcuTemp, s.ch.McuTemp, 1.0, 1.0)
	s.updateChannel(&s.filtPcbTemp, s.ch.PcbTemp, 1.0, 1.0)
	s.haveFilt = true

	prevVin := s.snap.VinMV
	prevVscap := s.snap.VscapMV

	s.snap.VinMV = int32(s.filtVinMV)
	s.snap.VscapMV = int32(s.filtVscapMV)
	s.snap.IinMA = int32(s.filtIinMV)
	s.snap.McuTempCC = int32(s.filtMcuTemp)
	s.snap.PcbTempCC = int32(s.filtPcbTemp)

	changed := mathx.Abs(int(s.snap.VinMV)-int(prevVin)) > changeThresholdMV ||
		mathx.Abs(int(s.snap.VscapMV)-int(prevVscap)) > changeThresholdMV

	changed = s.debounceDigital(&s.cmOn, s.ch.CMOn.Get(), &s.snap.CMOn, now) || changed
	changed = s.debounceDigital(&s.pg5v, s.ch.PG5V.Get(), &s.snap.PG5V, now) || changed
	changed = s.debounceDigital(&s.pwrBtn, s.ch.PwrBtn.Get(), &s.snap.PwrBtn, now) || changed
	changed = s.debounceDigital(&s.userBtn, s.ch.UserBtn.Get(), &s.snap.UserBtn, now) || changed

	s.snap.TimestampMS = now.UnixMilli()

	s.conn.Publish(s.conn.NewMessage(s.snapTopic, s.snap, true))
	if changed {
		s.conn.Publish(s.conn.NewMessage(s.evTopic, types.TelemetryChanged{Snapshot: s.snap}, false))
	}
}

// debounceDigital applies the ≥20ms stable-state hysteresis of spec.md
// §4.1 and reports whether the debounced value flipped this pass.
func (s *Sampler) debounceDigital(d *digitalDebounce, raw bool, out *bool, now time.Time) bool {
	if raw != d.candidate {
		d.candidate = raw
		d.since = now
	}
	if d.candidate != d.stable && !d.since.IsZero() && now.Sub(d.since) >= debounceStable {
		d.stable = d.candidate
		*out = d.stable
		return true
	}
	*out = d.stable
	return false
}

// updateChannel reads ch, scales it, and folds it into *filt via the IIR
// filter. On an ADC read failure it counts the failure and leaves *filt
// untouched, holding the previous filtered value (spec.md §4.1 "Failure:
// ADC read failures are counted but do not propagate; the previous
// filtered value is held").
func (s *Sampler) updateChannel(filt *float64, ch hwio.ADCChannel, divisor, scale float64) {
	raw, err := ch.ReadRaw()
	if err != nil {
		s.adcFailCount++
		return
	}
	sample := float64(raw) * adcFullScaleMV / adcMaxCount * divisor * scale
	if !s.haveFilt {
		*filt = sample
		return
	}
	*filt = iir(*filt, sample)
}

func iir(prev, sample float64) float64 {
	return prev + iirAlpha*(sample-prev)
}

func (s *Sampler) ADCFailures() uint32 { return s.adcFailCount }
