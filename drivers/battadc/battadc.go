// Package battadc samples the battery divider on an ADC channel and converts
// it to the half-percent scale of the Power Configuration cluster.
//
//	d := battadc.New(adc, battadc.DefaultConfig())
//	err := d.Update(drivers.Voltage)
//	uv := d.Voltage()
//
// A raw value of zero is treated as a conversion glitch and re-read, up to
// Config.MaxReads attempts. Out-of-band voltages are clamped, never rejected.
// Device also satisfies tinygo.org/x/drivers.Sensor for drivers.Voltage.
package battadc

import (
	"context"
	"errors"
	"sync"

	"tinygo.org/x/drivers"

	"smokenode/errcode"
	"smokenode/services/hal"
	"smokenode/types"
	"smokenode/x/mathx"
)

// Calibration of the deployed board.
const (
	DefaultRawOffset  = 2145
	DefaultCoef       = 0.0111
	DefaultOffset     = -0.0925
	DefaultEmptyVolts = 2.0
	DefaultFullVolts  = 3.0
	DefaultMaxReads   = 10
)

var ErrNoSample = errors.New("battadc: no sample yet")

// Config is the calibration block. Every field is used as given, zero
// included; start from DefaultConfig when only some fields are known.
type Config = types.BatteryCalibration

// DefaultConfig returns the calibration of the deployed board.
func DefaultConfig() Config {
	return Config{
		RawOffset:  DefaultRawOffset,
		Coef:       DefaultCoef,
		Offset:     DefaultOffset,
		EmptyVolts: DefaultEmptyVolts,
		FullVolts:  DefaultFullVolts,
		MaxReads:   DefaultMaxReads,
	}
}

// Device is one battery input. It is safe for concurrent use.
type Device struct {
	adc hal.AnalogInput
	cfg Config

	mu   sync.Mutex
	last types.BatteryReading
	have bool
}

var _ drivers.Sensor = (*Device)(nil)

// New returns a Device for cfg. A read cap below one means DefaultMaxReads.
func New(adc hal.AnalogInput, cfg Config) *Device {
	if cfg.MaxReads <= 0 {
		cfg.MaxReads = DefaultMaxReads
	}
	return &Device{adc: adc, cfg: cfg}
}

// Config returns the effective calibration.
func (d *Device) Config() Config { return d.cfg }

// Sample acquires the channel, reads until a non-zero value or the read cap,
// converts and releases the channel. ctx cancellation stops the retry loop
// early; the reading is still converted from the last raw value.
func (d *Device) Sample(ctx context.Context) (types.BatteryReading, error) {
	h, err := d.adc.Acquire(d.cfg.Channel)
	if err != nil {
		return types.BatteryReading{}, errcode.Wrap(errcode.ADCUnavailable, "battadc.sample", err)
	}
	defer h.Release()

	raw, n := 0, 0
	for n < d.cfg.MaxReads {
		raw = h.Read()
		n++
		if raw != 0 || ctx.Err() != nil {
			break
		}
	}

	r := Convert(raw, d.cfg)
	r.Attempts = n
	r.Glitch = raw == 0
	d.mu.Lock()
	d.last, d.have = r, true
	d.mu.Unlock()
	return r, nil
}

// Convert maps a raw sample to a reading under cfg.
func Convert(raw int, cfg Config) types.BatteryReading {
	volts := float32(raw-cfg.RawOffset)*cfg.Coef + cfg.Offset
	pct := mathx.MapClamped(volts, cfg.EmptyVolts, cfg.FullVolts, 0, 100)
	p := uint8(pct + 0.5)
	return types.BatteryReading{
		Raw:      raw,
		Volts:    volts,
		Percent:  p,
		Reported: p * 2,
	}
}

// Update implements drivers.Sensor. Only drivers.Voltage is measured.
func (d *Device) Update(which drivers.Measurement) error {
	if which&drivers.Voltage == 0 {
		return nil
	}
	_, err := d.Sample(context.Background())
	return err
}

// Voltage returns the last sampled battery voltage in microvolts.
func (d *Device) Voltage() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int32(d.last.Volts * 1e6)
}

// Last returns the most recent reading.
func (d *Device) Last() (types.BatteryReading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.have {
		return types.BatteryReading{}, ErrNoSample
	}
	return d.last, nil
}
