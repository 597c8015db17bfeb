package types

// ------------------------
// Battery (analog sense)
// ------------------------

// BatteryCalibration holds the deployment-calibrated ADC constants and the
// operating band used for the percentage map.
type BatteryCalibration struct {
	RawOffset  int     `json:"raw_offset"`
	Coef       float32 `json:"coef"`
	Offset     float32 `json:"offset"`
	EmptyVolts float32 `json:"empty_v"`
	FullVolts  float32 `json:"full_v"`
	MaxReads   int     `json:"max_reads"`
	Channel    int     `json:"channel"`
}

// BatteryReading lives for one boot cycle.
type BatteryReading struct {
	Raw      int     `json:"raw"`
	Volts    float32 `json:"volts"`
	Percent  uint8   `json:"pct"`              // 0..100
	Reported uint8   `json:"reported"`         // Percent*2, half-percent units
	Attempts int     `json:"attempts"`         // ADC reads performed
	Glitch   bool    `json:"glitch,omitempty"` // every read returned zero
}
