package battadc

import (
	"context"
	"errors"
	"testing"

	"tinygo.org/x/drivers"

	"smokenode/errcode"
	"smokenode/services/hal"
)

func TestRetriesZeroThenConverts(t *testing.T) {
	adc := &hal.SimADC{Samples: []int{0, 0, 0, 2379}}
	d := New(adc, DefaultConfig())

	r, err := d.Sample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Attempts != 4 || r.Raw != 2379 || r.Glitch {
		t.Fatalf("reading = %+v", r)
	}
	if r.Percent != 50 || r.Reported != 100 {
		t.Fatalf("percent=%d reported=%d", r.Percent, r.Reported)
	}
	if acq, rel, _ := adc.Counters(); acq != 1 || rel != 1 {
		t.Fatalf("acquire/release = %d/%d", acq, rel)
	}
}

func TestStopsAtReadCapAndReleases(t *testing.T) {
	adc := &hal.SimADC{Default: 0}
	d := New(adc, DefaultConfig())

	r, err := d.Sample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_, rel, reads := adc.Counters()
	if reads != DefaultMaxReads || r.Attempts != DefaultMaxReads {
		t.Fatalf("reads = %d attempts = %d", reads, r.Attempts)
	}
	if rel != 1 {
		t.Fatalf("handle released %d times", rel)
	}
	if !r.Glitch || r.Reported != 0 {
		t.Fatalf("reading = %+v", r)
	}
}

func TestAcquireFailure(t *testing.T) {
	adc := &hal.SimADC{Fail: errors.New("busy")}
	_, err := New(adc, DefaultConfig()).Sample(context.Background())
	if errcode.Of(err) != errcode.ADCUnavailable {
		t.Fatalf("err = %v", err)
	}
}

func TestRawOffsetGivesOffsetVolts(t *testing.T) {
	cfg := DefaultConfig()
	r := Convert(DefaultRawOffset, cfg)
	if r.Volts != cfg.Offset {
		t.Fatalf("volts = %v, want %v", r.Volts, cfg.Offset)
	}
	// Offset is below the empty bound: clamped to zero.
	if r.Percent != 0 || r.Reported != 0 {
		t.Fatalf("reading = %+v", r)
	}

	// With a band that contains the offset the linear map applies.
	cfg.EmptyVolts, cfg.FullVolts = -0.5, 0.5
	r = Convert(DefaultRawOffset, cfg)
	if r.Percent != 41 || r.Reported != 82 {
		t.Fatalf("reading = %+v", r)
	}
}

func TestPercentMonotonicAndClamped(t *testing.T) {
	cfg := DefaultConfig()
	prev := uint8(0)
	for raw := 0; raw <= 4095; raw++ {
		r := Convert(raw, cfg)
		if r.Percent > 100 {
			t.Fatalf("raw %d: percent %d > 100", raw, r.Percent)
		}
		if r.Percent < prev {
			t.Fatalf("raw %d: percent %d < %d", raw, r.Percent, prev)
		}
		if r.Reported != 2*r.Percent {
			t.Fatalf("raw %d: reported %d != 2*%d", raw, r.Reported, r.Percent)
		}
		prev = r.Percent
	}
	if prev != 100 {
		t.Fatalf("saturated percent = %d", prev)
	}
}

func TestSensorInterface(t *testing.T) {
	adc := &hal.SimADC{Default: 2379}
	d := New(adc, DefaultConfig())

	if _, err := d.Last(); err != ErrNoSample {
		t.Fatalf("Last before Update: %v", err)
	}
	if err := d.Update(drivers.Temperature); err != nil {
		t.Fatal(err)
	}
	if _, _, reads := adc.Counters(); reads != 0 {
		t.Fatal("non-voltage update touched the ADC")
	}
	if err := d.Update(drivers.Voltage); err != nil {
		t.Fatal(err)
	}
	uv := d.Voltage()
	if uv < 2_500_000 || uv > 2_510_000 {
		t.Fatalf("Voltage() = %d µV", uv)
	}
}

func TestZeroCalibrationIsKept(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RawOffset, cfg.Offset = 0, 0
	d := New(&hal.SimADC{Default: 270}, cfg)
	if c := d.Config(); c.RawOffset != 0 || c.Offset != 0 || c.Coef != DefaultCoef {
		t.Fatalf("calibration rewritten: %+v", c)
	}
	r, err := d.Sample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// 270 * 0.0111 = 2.997 V; the default offset would put it below empty.
	if r.Percent != 100 || r.Reported != 200 {
		t.Fatalf("reading = %+v", r)
	}
}

func TestZeroReadCapUsesDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxReads = 0
	if got := New(&hal.SimADC{}, cfg).Config().MaxReads; got != DefaultMaxReads {
		t.Fatalf("MaxReads = %d", got)
	}
}
