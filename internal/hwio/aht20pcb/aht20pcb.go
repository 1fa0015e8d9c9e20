// Package aht20pcb adapts an AHT20 temperature/humidity I2C
// driver (drivers/aht20) into an hwio.ADCChannel, letting the Input
// Sampler's PCB-temperature channel (spec.md §4.1) be backed by a real
// board-mounted digital sensor instead of a bare ADC pin, distinct from
// the MCU's own internal ADC temperature channel. The adapter shape
// mirrors adaptor_aht20_driver.go: a thin type wrapping
// the driver that exposes just the one capability its caller needs.
package aht20pcb

import (
	"supervisor-fw/drivers/aht20"
)

// Sampler's updateChannel (services/sampler/sampler.go) scales every
// ADCChannel's raw count by adcFullScaleMV/adcMaxCount before applying the
// correction scale and IIR filter. PcbTemp is read with divisor=scale=1.0,
// so ReadRaw must return counts that, fed back through that same formula,
// reproduce the sensor's actual centi-Celsius reading. These mirror the
// sampler's own placeholder hardware constants.
const (
	adcFullScaleMV = 3300
	adcMaxCount    = 4095
)

// Channel adapts an *aht20.Device into the hwio.ADCChannel the sampler
// expects for its PcbTemp input.
type Channel struct {
	dev *aht20.Device
}

// New wraps an already-constructed, already-configured AHT20 device.
func New(dev *aht20.Device) *Channel {
	return &Channel{dev: dev}
}

// ReadRaw triggers a measurement and returns a synthetic raw ADC count
// that reproduces the sensor's centi-Celsius reading once the sampler
// applies its standard raw*fullScale/maxCount scaling. Sub-zero readings
// clamp to 0 counts; this board's PCB never sees sub-zero ambient in
// practice, and the clamp just avoids an unsigned-wraparound artifact.
func (c *Channel) ReadRaw() (uint16, error) {
	if err := c.dev.Read(); err != nil {
		return 0, err
	}
	centiC := c.dev.DeciCelsius() * 10
	if centiC < 0 {
		return 0, nil
	}
	raw := int64(centiC) * adcMaxCount / adcFullScaleMV
	if raw > adcMaxCount {
		raw = adcMaxCount
	}
	return uint16(raw), nil
}
