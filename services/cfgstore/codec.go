package cfgstore

import (
	"encoding/binary"
	"math"

	"supervisor-fw/types"
)

// encodeField serializes one config key's current value out of rec for
// the flash log record (spec.md §4.4 format: key_tag, length, payload,
// crc16). Float fields are encoded via math.Float32bits so the round-trip
// is bit-identical (spec.md §8: "For every f32 correction scale,
// write(x); read() == x (bit-identical)").
func encodeField(key types.ConfigKey, rec types.ConfigRecord) []byte {
	switch key {
	case types.KeyVinCorrectionScale:
		return u32be(math.Float32bits(rec.VinCorrectionScale))
	case types.KeyVscapCorrectionScale:
		return u32be(math.Float32bits(rec.VscapCorrectionScale))
	case types.KeyIinCorrectionScale:
		return u32be(math.Float32bits(rec.IinCorrectionScale))
	case types.KeyPowerOnVscapCV:
		return u16be(rec.PowerOnVscapCV)
	case types.KeyPowerOffVscapCV:
		return u16be(rec.PowerOffVscapCV)
	case types.KeyVinThresholdCV:
		return u16be(rec.VinThresholdCV)
	case types.KeyWatchdogTimeoutMS:
		return u16be(rec.WatchdogTimeoutMS)
	case types.KeySoloDepletingTimeoutMS:
		return u32be(rec.SoloDepletingTimeoutMS)
	case types.KeyLEDBrightness:
		return []byte{rec.LEDBrightness}
	case types.KeyAutoRestart:
		if rec.AutoRestart {
			return []byte{1}
		}
		return []byte{0}
	default:
		return nil
	}
}

// applyField decodes payload into the matching field of rec, returning
// false if the key is unknown or payload is the wrong length.
func applyField(key types.ConfigKey, payload []byte, rec *types.ConfigRecord) bool {
	switch key {
	case types.KeyVinCorrectionScale:
		if len(payload) != 4 {
			return false
		}
		rec.VinCorrectionScale = math.Float32frombits(binary.BigEndian.Uint32(payload))
	case types.KeyVscapCorrectionScale:
		if len(payload) != 4 {
			return false
		}
		rec.VscapCorrectionScale = math.Float32frombits(binary.BigEndian.Uint32(payload))
	case types.KeyIinCorrectionScale:
		if len(payload) != 4 {
			return false
		}
		rec.IinCorrectionScale = math.Float32frombits(binary.BigEndian.Uint32(payload))
	case types.KeyPowerOnVscapCV:
		if len(payload) != 2 {
			return false
		}
		rec.PowerOnVscapCV = binary.BigEndian.Uint16(payload)
	case types.KeyPowerOffVscapCV:
		if len(payload) != 2 {
			return false
		}
		rec.PowerOffVscapCV = binary.BigEndian.Uint16(payload)
	case types.KeyVinThresholdCV:
		if len(payload) != 2 {
			return false
		}
		rec.VinThresholdCV = binary.BigEndian.Uint16(payload)
	case types.KeyWatchdogTimeoutMS:
		if len(payload) != 2 {
			return false
		}
		rec.WatchdogTimeoutMS = binary.BigEndian.Uint16(payload)
	case types.KeySoloDepletingTimeoutMS:
		if len(payload) != 4 {
			return false
		}
		rec.SoloDepletingTimeoutMS = binary.BigEndian.Uint32(payload)
	case types.KeyLEDBrightness:
		if len(payload) != 1 {
			return false
		}
		rec.LEDBrightness = payload[0]
	case types.KeyAutoRestart:
		if len(payload) != 1 {
			return false
		}
		rec.AutoRestart = payload[0] != 0
	default:
		return false
	}
	return true
}

func u16be(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
