package types

// RegCode is a bus command code — the first byte of every I²C secondary
// transaction (spec.md §6). Multi-byte payloads are big-endian.
type RegCode uint8

const (
	RegLegacyHWVersion RegCode = 0x01
	RegLegacyFWVersion RegCode = 0x02
	RegHWVersion       RegCode = 0x03
	RegFWVersion       RegCode = 0x04

	RegSBCPowerState RegCode = 0x10

	RegWatchdogTimeoutMS RegCode = 0x12
	RegPowerOnVscapCV    RegCode = 0x13
	RegPowerOffVscapCV   RegCode = 0x14
	RegStateCode         RegCode = 0x15
	RegWatchdogElapsed   RegCode = 0x16
	RegLEDBrightness     RegCode = 0x17
	RegAutoRestart       RegCode = 0x18
	RegSoloDepletingMS   RegCode = 0x19

	RegVinMV   RegCode = 0x20
	RegVscapMV RegCode = 0x21
	RegIinMA   RegCode = 0x22
	RegMcuTemp RegCode = 0x23
	RegPcbTemp RegCode = 0x24

	RegInitiateShutdown        RegCode = 0x30
	RegInitiateStandbyShutdown RegCode = 0x31

	RegDFUStart  RegCode = 0x40
	RegDFUStatus RegCode = 0x41
	RegDFUBlocksWritten RegCode = 0x42
	RegDFUBlock  RegCode = 0x43
	RegDFUCommit RegCode = 0x44
	RegDFUAbort  RegCode = 0x45

	RegVinCorrectionScale   RegCode = 0x50
	RegVscapCorrectionScale RegCode = 0x51
	RegIinCorrectionScale   RegCode = 0x52
)

// Product version constants. spec.md §9's Open Question notes that
// documentation disagrees on the legacy hardware-version constant: that
// disagreement is between the *legacy hardware* (0x01) and *legacy
// firmware* (0x02) registers reading the same byte pattern in different
// docs, not a single contested value — the register table in spec.md §6
// gives each its own literal constant, which is what is implemented here.
const (
	LegacyHWVersion byte = 0x00
	LegacyFWVersion byte = 0xFF
)

// HardwareVersion/FirmwareVersion are the 4-byte (0x03/0x04) versions;
// product builds override these via build tags in a real deployment. Kept as plain vars (not consts) so a board-specific init can
// set them without touching this file.
var (
	HardwareVersion uint32 = 0x00010000
	FirmwareVersion uint32 = 0x00010000
)
