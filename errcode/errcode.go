package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	HALNotReady       Code = "hal_not_ready"
	InvalidTopic      Code = "invalid_topic"

	UnknownBus Code = "unknown_bus"
	BusInUse   Code = "bus_in_use"
	UnknownPin Code = "unknown_pin"
	PinInUse   Code = "pin_in_use"
	Timeout    Code = "timeout"

	// DFU staging pipeline error kinds (spec.md §4.6 "Error(kind)"),
	// returned by services/dfu.Pipeline's exported methods. These mirror,
	// but are distinct from, types.DFUStatus: the Code is the Go-level
	// error a caller can inspect; DFUStatus is what the bus engine
	// latches into register 0x41 for the host to read back.
	DFUNoSession      Code = "dfu_no_session"
	DFUSizeExceeded   Code = "dfu_size_exceeded"
	DFUFrameShort     Code = "dfu_frame_short"
	DFULengthMismatch Code = "dfu_length_mismatch"
	DFUCRCMismatch    Code = "dfu_crc_mismatch"
	DFUOutOfRange     Code = "dfu_out_of_range"
	DFUIncomplete     Code = "dfu_incomplete"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
// Extend the heuristics per platform/driver.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	return Error
}
