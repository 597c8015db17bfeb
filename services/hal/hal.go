// Package hal describes the hardware a smoke node runs on: the smoke input
// line, the battery ADC, the wake/sleep controller and the retention region.
// Boards (RP2 firmware, Raspberry Pi rig, host simulator) provide the
// implementations.
package hal

import (
	"context"
	"errors"
	"io"
	"time"

	"smokenode/services/hal/internal/halcore"
	"smokenode/types"
)

// GPIO types shared with the internal edge worker.
type (
	Pull   = halcore.Pull
	Edge   = halcore.Edge
	Pin    = halcore.GPIOPin
	IRQPin = halcore.IRQPin
)

const (
	PullNone = halcore.PullNone
	PullUp   = halcore.PullUp
	PullDown = halcore.PullDown

	EdgeNone    = halcore.EdgeNone
	EdgeRising  = halcore.EdgeRising
	EdgeFalling = halcore.EdgeFalling
	EdgeBoth    = halcore.EdgeBoth
)

// ADCHandle is an acquired analog channel. Release must be called exactly once.
type ADCHandle interface {
	Read() int
	Release()
}

// AnalogInput hands out ADC channels per sample batch.
type AnalogInput interface {
	Acquire(channel int) (ADCHandle, error)
}

// SleepController is the hardware wake/sleep block.
type SleepController interface {
	WakeCause() types.WakeCause
	ArmTimer(seconds uint32)
	// ArmPin enables wake on the pins in levelMask being high.
	ArmPin(pin int, levelMask uint64)
	// DeepSleep enters deep sleep. On real boards it does not return.
	DeepSleep()
}

// RetainedStore reads and writes the region that survives deep sleep.
// Load reports false when the region holds no valid data (power loss).
type RetainedStore interface {
	Load() (types.Retained, bool)
	Store(types.Retained) error
}

// UplinkDialer opens the serial link to a network co-processor.
type UplinkDialer func(ctx context.Context, cfg types.UARTConfig) (io.ReadWriteCloser, error)

// Board bundles one node's hardware.
type Board struct {
	Name   string
	Smoke  Pin
	ADC    AnalogInput
	Sleep  SleepController
	Store  RetainedStore
	Dial   UplinkDialer         // nil when the board has no co-processor link
	Uptime func() time.Duration // time since boot
}

var ErrNoUplink = errors.New("board has no uplink")

// Validate reports a missing mandatory component.
func (b *Board) Validate() error {
	switch {
	case b == nil:
		return errors.New("nil board")
	case b.Smoke == nil:
		return errors.New("board: missing smoke pin")
	case b.ADC == nil:
		return errors.New("board: missing adc")
	case b.Sleep == nil:
		return errors.New("board: missing sleep controller")
	case b.Store == nil:
		return errors.New("board: missing retained store")
	case b.Uptime == nil:
		return errors.New("board: missing uptime source")
	}
	return nil
}

// ArmPlan arms the wake sources for plan on sc.
func ArmPlan(sc SleepController, smokePin int, plan types.SleepPlan) {
	sc.ArmTimer(plan.Seconds)
	if plan.PinWake {
		sc.ArmPin(smokePin, uint64(1)<<uint(smokePin))
	}
}
