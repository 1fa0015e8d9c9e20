package busengine

import (
	"encoding/binary"
	"math"

	"supervisor-fw/types"
)

// Read answers a register read with width bytes, returning 0xFF-filled
// data for any command code outside the table (spec.md §7: "unknown
// command, wrong length... silently ignored or reply with 0xFF").
func (e *Engine) Read(code types.RegCode, width int) []byte {
	out := make([]byte, width)
	for i := range out {
		out[i] = 0xFF
	}

	cfg := e.cfg.Get()
	snap := e.snapshot()

	switch code {
	case types.RegLegacyHWVersion:
		putByte(out, types.LegacyHWVersion)
	case types.RegLegacyFWVersion:
		putByte(out, types.LegacyFWVersion)
	case types.RegHWVersion:
		putU32(out, types.HardwareVersion)
	case types.RegFWVersion:
		putU32(out, types.FirmwareVersion)

	case types.RegSBCPowerState:
		if e.currentState().IsPoweredOnChild() {
			putByte(out, 1)
		} else {
			putByte(out, 0)
		}

	case types.RegWatchdogTimeoutMS:
		putU16(out, cfg.WatchdogTimeoutMS)
	case types.RegPowerOnVscapCV:
		putU16(out, cfg.PowerOnVscapCV)
	case types.RegPowerOffVscapCV:
		putU16(out, cfg.PowerOffVscapCV)
	case types.RegStateCode:
		putByte(out, byte(e.currentState()))
	case types.RegWatchdogElapsed:
		// Reading this register is the host's watchdog keepalive (the
		// only register-table entry shaped like a periodic liveness
		// poll): the read itself resets elapsed-since-ping, which is
		// why the value always reads back 0x00.
		putByte(out, 0x00)
		e.publishCommand(types.Event{Kind: types.EvWatchdogPing})
	case types.RegLEDBrightness:
		putByte(out, cfg.LEDBrightness)
	case types.RegAutoRestart:
		if cfg.AutoRestart {
			putByte(out, 1)
		} else {
			putByte(out, 0)
		}
	case types.RegSoloDepletingMS:
		putU32(out, cfg.SoloDepletingTimeoutMS)

	case types.RegVinMV:
		putU16(out, uint16(snap.VinMV))
	case types.RegVscapMV:
		putU16(out, uint16(snap.VscapMV))
	case types.RegIinMA:
		putU16(out, uint16(snap.IinMA))
	case types.RegMcuTemp:
		putU16(out, uint16(snap.McuTempCC))
	case types.RegPcbTemp:
		putU16(out, uint16(snap.PcbTempCC))

	case types.RegDFUStatus:
		putByte(out, byte(e.dfu.State().Status))
	case types.RegDFUBlocksWritten:
		putU16(out, e.dfu.State().BlocksWritten)

	case types.RegVinCorrectionScale:
		putU32(out, math.Float32bits(cfg.VinCorrectionScale))
	case types.RegVscapCorrectionScale:
		putU32(out, math.Float32bits(cfg.VscapCorrectionScale))
	case types.RegIinCorrectionScale:
		putU32(out, math.Float32bits(cfg.IinCorrectionScale))

	default:
		// unknown/write-only code: leave the 0xFF fill in place.
	}
	return out
}

// Write applies a register write, dropping unknown codes silently
// (spec.md §7). DFU start, block and commit writes (0x40, 0x43, 0x44) are
// handed to the DFU pipeline in a background goroutine so the ISR-context
// caller never blocks (spec.md §4.5 concurrency boundary); DFU abort (0x45)
// is applied synchronously; config writes update the mirror
// synchronously via cfgstore, which itself defers the flash append.
func (e *Engine) Write(code types.RegCode, data []byte) {
	switch code {
	case types.RegSBCPowerState:
		if len(data) >= 1 && data[0] == 0x00 {
			e.publishCommand(types.Event{Kind: types.EvShutdown})
		}

	case types.RegWatchdogTimeoutMS:
		if len(data) != 2 {
			return
		}
		ms := binary.BigEndian.Uint16(data)
		e.cfg.Set(types.KeyWatchdogTimeoutMS, data)
		e.publishCommand(types.Event{Kind: types.EvSetWatchdogTimeout, WatchdogTimeoutMS: ms})
	case types.RegPowerOnVscapCV:
		e.cfg.Set(types.KeyPowerOnVscapCV, data)
	case types.RegPowerOffVscapCV:
		e.cfg.Set(types.KeyPowerOffVscapCV, data)
	case types.RegLEDBrightness:
		e.cfg.Set(types.KeyLEDBrightness, data)
	case types.RegAutoRestart:
		e.cfg.Set(types.KeyAutoRestart, data)
	case types.RegSoloDepletingMS:
		e.cfg.Set(types.KeySoloDepletingTimeoutMS, data)

	case types.RegVinCorrectionScale:
		e.cfg.Set(types.KeyVinCorrectionScale, data)
	case types.RegVscapCorrectionScale:
		e.cfg.Set(types.KeyVscapCorrectionScale, data)
	case types.RegIinCorrectionScale:
		e.cfg.Set(types.KeyIinCorrectionScale, data)

	case types.RegInitiateShutdown:
		e.publishCommand(types.Event{Kind: types.EvShutdown})
	case types.RegInitiateStandbyShutdown:
		e.publishCommand(types.Event{Kind: types.EvStandbyShutdown})

	case types.RegDFUStart:
		if len(data) != 4 {
			return
		}
		size := binary.BigEndian.Uint32(data)
		go func() { _ = e.dfu.Start(size) }()
	case types.RegDFUBlock:
		frame := append([]byte(nil), data...)
		go func() { _ = e.dfu.Block(frame) }()
	case types.RegDFUCommit:
		go func() { _ = e.dfu.Commit() }()
	case types.RegDFUAbort:
		e.dfu.Abort()

	default:
		// unknown code: silently dropped.
	}
}

func putByte(out []byte, v byte) {
	if len(out) >= 1 {
		out[0] = v
	}
}

func putU16(out []byte, v uint16) {
	if len(out) >= 2 {
		binary.BigEndian.PutUint16(out, v)
	}
}

func putU32(out []byte, v uint32) {
	if len(out) >= 4 {
		binary.BigEndian.PutUint32(out, v)
	}
}
