package types

// Snapshot is the shared telemetry record published by the Input Sampler
// (spec.md §3 "Telemetry snapshot"). It is single-writer/many-reader: the
// sampler swaps a fresh value in, everyone else only ever reads a copy.
type Snapshot struct {
	VinMV      int32 `json:"vin_mV"`
	VscapMV    int32 `json:"vscap_mV"`
	IinMA      int32 `json:"iin_mA"`
	McuTempCC  int32 `json:"mcu_temp_cC"` // centi-°C
	PcbTempCC  int32 `json:"pcb_temp_cC"`
	CMOn       bool  `json:"cm_on"`
	PG5V       bool  `json:"pg_5v"`
	PwrBtn     bool  `json:"pwr_btn"`
	UserBtn    bool  `json:"user_btn"`
	TimestampMS int64 `json:"timestamp_ms"`
}

// TelemetryChanged is published when VIN or Vscap moves by more than
// the 500 mV hysteresis band spec.md §4.1 specifies, or a digital input
// crosses. It always carries the fresh snapshot so subscribers need no
// further read-back.
type TelemetryChanged struct {
	Snapshot Snapshot
}
