//go:build linux && !(rp2040 || rp2350)

package hal

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"

	"smokenode/errcode"
	"smokenode/types"
	"smokenode/x/strconvx"
)

// RPiConfig describes the Raspberry Pi bench rig: smoke line on a BCM pin,
// battery divider on an IIO ADC, retention in a state file.
type RPiConfig struct {
	SmokePin  int
	IIODevice string // e.g. /sys/bus/iio/devices/iio:device0
	StatePath string
	Debounce  time.Duration
	UARTPath  string // serial device to the co-processor, configured externally
}

// NewRPiBoard opens /dev/gpiomem and builds the rig. The rig never powers
// down: sleep is a LightSleeper bounded by ctx.
func NewRPiBoard(ctx context.Context, cfg RPiConfig) (*Board, error) {
	if err := rpio.Open(); err != nil {
		return nil, errcode.Wrap(errcode.PlatformInit, "rpi.open", err)
	}
	pin := &rpiPin{p: rpio.Pin(cfg.SmokePin), n: cfg.SmokePin}
	sleeper, err := NewLightSleeper(ctx, pin, cfg.Debounce)
	if err != nil {
		return nil, errcode.Wrap(errcode.PlatformInit, "rpi.sleep", err)
	}
	start := time.Now()
	b := &Board{
		Name:   "rpi",
		Smoke:  pin,
		ADC:    iioADC{dir: cfg.IIODevice},
		Sleep:  sleeper,
		Store:  FileStore{Path: cfg.StatePath},
		Uptime: func() time.Duration { return time.Since(start) },
	}
	if cfg.UARTPath != "" {
		path := cfg.UARTPath
		b.Dial = func(context.Context, types.UARTConfig) (io.ReadWriteCloser, error) {
			f, err := os.OpenFile(path, os.O_RDWR, 0)
			if err != nil {
				return nil, errcode.Wrap(errcode.LinkDown, "uart.dial", err)
			}
			return f, nil
		}
	}
	return b, nil
}

// ---- GPIO ----

// rpiPin polls the BCM edge-detect latch to emulate an interrupt.
type rpiPin struct {
	p rpio.Pin
	n int

	mu   sync.Mutex
	quit chan struct{}
}

func (r *rpiPin) ConfigureInput(pull Pull) error {
	r.p.Input()
	switch pull {
	case PullUp:
		r.p.PullUp()
	case PullDown:
		r.p.PullDown()
	default:
		r.p.PullOff()
	}
	return nil
}

func (r *rpiPin) Get() bool   { return r.p.Read() == rpio.High }
func (r *rpiPin) Number() int { return r.n }

func (r *rpiPin) SetIRQ(edge Edge, handler func()) error {
	var e rpio.Edge
	switch edge {
	case EdgeRising:
		e = rpio.RiseEdge
	case EdgeFalling:
		e = rpio.FallEdge
	case EdgeBoth:
		e = rpio.AnyEdge
	default:
		return r.ClearIRQ()
	}
	_ = r.ClearIRQ()
	r.p.Detect(e)

	quit := make(chan struct{})
	r.mu.Lock()
	r.quit = quit
	r.mu.Unlock()
	go func() {
		t := time.NewTicker(10 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				if r.p.EdgeDetected() {
					handler()
				}
			}
		}
	}()
	return nil
}

func (r *rpiPin) ClearIRQ() error {
	r.mu.Lock()
	if r.quit != nil {
		close(r.quit)
		r.quit = nil
	}
	r.mu.Unlock()
	r.p.Detect(rpio.NoEdge)
	return nil
}

// ---- ADC (Linux IIO) ----

type iioADC struct{ dir string }

type iioHandle struct {
	path string
}

func (a iioADC) Acquire(channel int) (ADCHandle, error) {
	p := a.dir + "/in_voltage" + strconvx.Itoa(channel) + "_raw"
	if _, err := os.Stat(p); err != nil {
		return nil, errcode.Wrap(errcode.ADCUnavailable, "iio.acquire", err)
	}
	return iioHandle{path: p}, nil
}

// Read returns 0 on any read or parse failure, which the sampler retries.
func (h iioHandle) Read() int {
	b, err := os.ReadFile(h.path)
	if err != nil {
		return 0
	}
	v, err := strconvx.Atoi(strings.TrimSpace(string(b)))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func (iioHandle) Release() {}
