package sampler

import (
	"testing"
	"time"

	"supervisor-fw/bus"
	"supervisor-fw/internal/hwio/fakehw"
	"supervisor-fw/types"
)

func newTestSampler() (*Sampler, *fakehw.ADC, *bus.Connection, *bus.Subscription) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(bus.T("telemetry", "snapshot"))

	vin := &fakehw.ADC{}
	ch := Channels{
		Vin:     vin,
		Vscap:   &fakehw.ADC{},
		Iin:     &fakehw.ADC{},
		McuTemp: &fakehw.ADC{},
		PcbTemp: &fakehw.ADC{},
		CMOn:    &fakehw.Pin{},
		PG5V:    &fakehw.Pin{},
		PwrBtn:  &fakehw.Pin{},
		UserBtn: &fakehw.Pin{},
	}
	cfg := func() types.ConfigRecord { return types.DefaultConfigRecord() }
	s := NewSampler(ch, conn, cfg)
	return s, vin, conn, sub
}

func TestSamplerFiltersTowardSteadyInput(t *testing.T) {
	s, vin, _, sub := newTestSampler()
	vin.Raw = 2048 // mid-scale

	now := time.Now()
	for i := 0; i < 50; i++ {
		s.samplePass(now.Add(time.Duration(i) * sampleInterval))
	}

	select {
	case m := <-sub.Channel():
		snap := m.Payload.(types.Snapshot)
		want := int32(2048.0 * (float64(adcFullScaleMV) / float64(adcMaxCount)) * VinDivisor)
		if diff := snap.VinMV - want; diff > 50 || diff < -50 {
			t.Fatalf("VinMV = %d, want near %d", snap.VinMV, want)
		}
	default:
		t.Fatal("no snapshot published")
	}
}

func TestSamplerHoldsLastValueOnADCFailure(t *testing.T) {
	s, vin, _, _ := newTestSampler()
	vin.Raw = 1000
	now := time.Now()
	s.samplePass(now)
	before := s.filtVinMV

	vin.Err = fakehw.ErrRead
	s.samplePass(now.Add(sampleInterval))

	if s.filtVinMV != before {
		t.Fatalf("filtered Vin changed on ADC failure: before=%v after=%v", before, s.filtVinMV)
	}
	if s.ADCFailures() != 1 {
		t.Fatalf("ADCFailures() = %d, want 1", s.ADCFailures())
	}
}

func TestDigitalDebounceRequiresStableWindow(t *testing.T) {
	s, _, _, _ := newTestSampler()
	now := time.Now()

	var out bool
	d := &digitalDebounce{}
	if changed := s.debounceDigital(d, true, &out, now); changed {
		t.Fatal("should not change on first transition before debounce window elapses")
	}
	if changed := s.debounceDigital(d, true, &out, now.Add(5*time.Millisecond)); changed {
		t.Fatal("should not change before 20ms stable window")
	}
	if changed := s.debounceDigital(d, true, &out, now.Add(25*time.Millisecond)); !changed {
		t.Fatal("expected debounced transition after stable window")
	}
	if !out {
		t.Fatal("expected debounced value true")
	}
}
