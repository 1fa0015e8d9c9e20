package cfgstore

import (
	"github.com/andreyvit/tinyjson"

	"supervisor-fw/types"
)

// factoryDefaultsJSON is the embedded factory-default record, grounded on
// the services/config/defaultconfigs.go embedded-JSON-blob
// pattern, parsed with the same tinyjson package and only consulted when
// the flash log is entirely unreadable (spec.md
// §4.4: "On total corruption, defaults are used").
const factoryDefaultsJSON = `{
  "vin_correction_scale": 1.0,
  "vscap_correction_scale": 1.0,
  "iin_correction_scale": 1.0,
  "power_on_vscap_cV": 800,
  "power_off_vscap_cV": 550,
  "vin_threshold_cV": 900,
  "watchdog_timeout_ms": 0,
  "solo_depleting_timeout_ms": 5000,
  "led_brightness": 128,
  "auto_restart": false
}`

// defaultConfig parses factoryDefaultsJSON, falling back to the
// hard-coded types.DefaultConfigRecord if the embedded blob is ever
// malformed (it should never be, but a corrupt build must not panic a
// boot path).
func defaultConfig() types.ConfigRecord {
	rec := types.DefaultConfigRecord()

	raw := tinyjson.Raw(factoryDefaultsJSON)
	val := raw.Value()
	raw.EnsureEOF()
	m, ok := val.(map[string]any)
	if !ok {
		return rec
	}

	if f, ok := m["vin_correction_scale"].(float64); ok {
		rec.VinCorrectionScale = float32(f)
	}
	if f, ok := m["vscap_correction_scale"].(float64); ok {
		rec.VscapCorrectionScale = float32(f)
	}
	if f, ok := m["iin_correction_scale"].(float64); ok {
		rec.IinCorrectionScale = float32(f)
	}
	if f, ok := m["power_on_vscap_cV"].(float64); ok {
		rec.PowerOnVscapCV = uint16(f)
	}
	if f, ok := m["power_off_vscap_cV"].(float64); ok {
		rec.PowerOffVscapCV = uint16(f)
	}
	if f, ok := m["vin_threshold_cV"].(float64); ok {
		rec.VinThresholdCV = uint16(f)
	}
	if f, ok := m["watchdog_timeout_ms"].(float64); ok {
		rec.WatchdogTimeoutMS = uint16(f)
	}
	if f, ok := m["solo_depleting_timeout_ms"].(float64); ok {
		rec.SoloDepletingTimeoutMS = uint32(f)
	}
	if f, ok := m["led_brightness"].(float64); ok {
		rec.LEDBrightness = uint8(f)
	}
	if b, ok := m["auto_restart"].(bool); ok {
		rec.AutoRestart = b
	}
	return rec
}
