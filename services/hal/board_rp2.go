//go:build rp2040 || rp2350

package hal

import (
	"context"
	"device/rp"
	"io"
	"machine"
	"sync"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"smokenode/errcode"
	"smokenode/types"
)

// The RP2 has no ESP-style deep sleep with retained RTC memory. The watchdog
// scratch registers survive a watchdog reboot, so the retention word lives in
// SCRATCH0 and the wake cause of the next boot in SCRATCH1. Sleep is an idle
// wait followed by a watchdog reset.
const (
	causeTag  = 0x5E1F0000
	causeMask = 0xFFFF0000
)

var bootTime = time.Now()

// Default returns the board the firmware runs on, with the smoke line on
// smokePin (GP numbering).
func Default(smokePin int) (*Board, error) {
	if smokePin < 0 || smokePin > 28 {
		return nil, errcode.Wrap(errcode.PlatformInit, "board.default", errcode.UnknownPin)
	}
	pin := &rp2Pin{p: machine.Pin(smokePin), n: smokePin}
	if err := pin.ConfigureInput(PullDown); err != nil {
		return nil, errcode.Wrap(errcode.PlatformInit, "board.default", err)
	}
	machine.InitADC()
	return &Board{
		Name:   "rp2",
		Smoke:  pin,
		ADC:    &rp2ADC{},
		Sleep:  newRP2Sleep(pin),
		Store:  scratchStore{},
		Dial:   dialUART,
		Uptime: func() time.Duration { return time.Since(bootTime) },
	}, nil
}

// ---- GPIO ----

type rp2Pin struct {
	p machine.Pin
	n int
}

func (r *rp2Pin) ConfigureInput(pull Pull) error {
	var mode machine.PinMode
	switch pull {
	case PullUp:
		mode = machine.PinInputPullup
	case PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2Pin) Get() bool   { return r.p.Get() }
func (r *rp2Pin) Number() int { return r.n }

func (r *rp2Pin) SetIRQ(edge Edge, handler func()) error {
	return r.p.SetInterrupt(toPinChange(edge), func(machine.Pin) { handler() })
}

func (r *rp2Pin) ClearIRQ() error {
	var zero machine.PinChange
	return r.p.SetInterrupt(zero, nil)
}

func toPinChange(e Edge) machine.PinChange {
	switch e {
	case EdgeRising:
		return machine.PinRising
	case EdgeFalling:
		return machine.PinFalling
	case EdgeBoth:
		return machine.PinToggle
	default:
		var zero machine.PinChange
		return zero
	}
}

// ---- ADC ----

// Channels 0..3 are GP26..GP29.
type rp2ADC struct{ mu sync.Mutex }

type rp2ADCHandle struct {
	a    *rp2ADC
	adc  machine.ADC
	done bool
}

func (a *rp2ADC) Acquire(channel int) (ADCHandle, error) {
	if channel < 0 || channel > 3 {
		return nil, errcode.ADCUnavailable
	}
	a.mu.Lock()
	adc := machine.ADC{Pin: machine.Pin(26 + channel)}
	adc.Configure(machine.ADCConfig{})
	return &rp2ADCHandle{a: a, adc: adc}, nil
}

// Read returns a 12-bit sample; machine.ADC scales to 16 bits.
func (h *rp2ADCHandle) Read() int { return int(h.adc.Get() >> 4) }

func (h *rp2ADCHandle) Release() {
	if h.done {
		return
	}
	h.done = true
	h.a.mu.Unlock()
}

// ---- Retention ----

type scratchStore struct{}

func (scratchStore) Load() (types.Retained, bool) {
	return DecodeRetained(rp.WATCHDOG.SCRATCH0.Get())
}

func (scratchStore) Store(r types.Retained) error {
	w := EncodeRetained(r)
	rp.WATCHDOG.SCRATCH0.Set(w)
	if rp.WATCHDOG.SCRATCH0.Get() != w {
		return errcode.Wrap(errcode.Storage, "retained.store", errcode.Error)
	}
	return nil
}

// ---- Sleep ----

type rp2Sleep struct {
	pin     *rp2Pin
	cause   types.WakeCause
	seconds uint32
	pinWake bool
}

func newRP2Sleep(pin *rp2Pin) *rp2Sleep {
	s := &rp2Sleep{pin: pin, cause: types.WakeColdBoot}
	if v := rp.WATCHDOG.SCRATCH1.Get(); v&causeMask == causeTag {
		switch types.WakeCause(v &^ causeMask) {
		case types.WakeExternalPin:
			s.cause = types.WakeExternalPin
		case types.WakeTimer:
			s.cause = types.WakeTimer
		}
	}
	rp.WATCHDOG.SCRATCH1.Set(0)
	return s
}

func (s *rp2Sleep) WakeCause() types.WakeCause { return s.cause }
func (s *rp2Sleep) ArmTimer(seconds uint32)    { s.seconds = seconds }
func (s *rp2Sleep) ArmPin(_ int, _ uint64)     { s.pinWake = true }

// DeepSleep waits on the armed timer and the smoke-line interrupt with the
// scheduler idle, then resets through the watchdog with the wake cause
// recorded for the next boot.
func (s *rp2Sleep) DeepSleep() {
	edge := make(chan struct{}, 1)
	if s.pinWake {
		_ = s.pin.SetIRQ(EdgeRising, func() {
			select {
			case edge <- struct{}{}:
			default:
			}
		})
		if s.pin.Get() {
			edge <- struct{}{}
		}
	}
	var expired <-chan time.Time
	if s.seconds > 0 || !s.pinWake {
		t := time.NewTimer(time.Duration(s.seconds) * time.Second)
		defer t.Stop()
		expired = t.C
	}
	cause := types.WakeTimer
	select {
	case <-edge:
		cause = types.WakeExternalPin
	case <-expired:
	}
	_ = s.pin.ClearIRQ()
	reboot(cause)
}

func reboot(cause types.WakeCause) {
	rp.WATCHDOG.SCRATCH1.Set(causeTag | uint32(cause))
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
	}
}

// ---- Co-processor link ----

// uartLink unblocks a pending Read when closed.
type uartLink struct {
	u      *uartx.UART
	ctx    context.Context
	cancel context.CancelFunc
}

func (l *uartLink) Read(p []byte) (int, error) {
	n, err := l.u.RecvSomeContext(l.ctx, p)
	if err != nil && l.ctx.Err() != nil {
		return n, io.EOF
	}
	return n, err
}

func (l *uartLink) Write(p []byte) (int, error) { return l.u.Write(p) }

func (l *uartLink) Close() error {
	l.cancel()
	return nil
}

func dialUART(_ context.Context, cfg types.UARTConfig) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch cfg.ID {
	case "uart0":
		hw = uartx.UART0
	case "uart1":
		hw = uartx.UART1
	default:
		return nil, errcode.Wrap(errcode.InvalidParams, "uart.dial", ErrNoUplink)
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: cfg.Baud,
		TX:       machine.Pin(cfg.TxPin),
		RX:       machine.Pin(cfg.RxPin),
	}); err != nil {
		return nil, errcode.Wrap(errcode.LinkDown, "uart.dial", err)
	}
	if err := hw.SetFormat(8, 1, uartx.ParityNone); err != nil {
		return nil, errcode.Wrap(errcode.LinkDown, "uart.dial", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &uartLink{u: hw, ctx: ctx, cancel: cancel}, nil
}
