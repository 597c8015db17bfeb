package hal

import (
	"context"
	"sync"
	"time"

	"smokenode/services/hal/internal/gpioirq"
	"smokenode/services/hal/internal/util"
	"smokenode/types"
)

// LightSleeper is the SleepController of an always-on node. DeepSleep blocks
// until the armed timer expires or, when pin wake is armed, the smoke line
// goes high, and records that as the cause of the next cycle.
type LightSleeper struct {
	ctx    context.Context
	pin    IRQPin
	worker *gpioirq.Worker
	stop   func()
	timer  *time.Timer

	mu      sync.Mutex
	cause   types.WakeCause
	seconds uint32
	pinWake bool
}

// NewLightSleeper arms a rising-edge watch on pin. The first cause reported
// is a cold boot. ctx bounds every wait; when it ends DeepSleep returns at
// once with a cold-boot cause.
func NewLightSleeper(ctx context.Context, pin IRQPin, debounce time.Duration) (*LightSleeper, error) {
	if err := pin.ConfigureInput(PullDown); err != nil {
		return nil, err
	}
	w := gpioirq.New(4, 4)
	w.Start(ctx)
	stop, err := w.Watch("smoke", pin, EdgeRising, debounce, false)
	if err != nil {
		return nil, err
	}
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &LightSleeper{ctx: ctx, pin: pin, worker: w, stop: stop, timer: t}, nil
}

func (l *LightSleeper) WakeCause() types.WakeCause {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cause
}

func (l *LightSleeper) ArmTimer(seconds uint32) {
	l.mu.Lock()
	l.seconds = seconds
	l.mu.Unlock()
}

func (l *LightSleeper) ArmPin(_ int, _ uint64) {
	l.mu.Lock()
	l.pinWake = true
	l.mu.Unlock()
}

func (l *LightSleeper) DeepSleep() {
	l.mu.Lock()
	secs, pinWake := l.seconds, l.pinWake
	l.seconds, l.pinWake = 0, false
	l.mu.Unlock()

	cause := l.wait(secs, pinWake)

	l.mu.Lock()
	l.cause = cause
	l.mu.Unlock()
}

func (l *LightSleeper) wait(secs uint32, pinWake bool) types.WakeCause {
	// Level-triggered like the hardware: a line already high wakes at once.
	if pinWake && l.pin.Get() {
		l.drain()
		return types.WakeExternalPin
	}
	l.drain()
	util.ResetTimer(l.timer, time.Duration(secs)*time.Second)
	defer l.timer.Stop()
	for {
		select {
		case <-l.ctx.Done():
			return types.WakeColdBoot
		case <-l.timer.C:
			return types.WakeTimer
		case ev := <-l.worker.Events():
			if pinWake && ev.Level == 1 {
				return types.WakeExternalPin
			}
		}
	}
}

// drain drops edges seen while the node was awake.
func (l *LightSleeper) drain() {
	for {
		select {
		case <-l.worker.Events():
		default:
			return
		}
	}
}

// Close disarms the pin interrupt.
func (l *LightSleeper) Close() {
	if l.stop != nil {
		l.stop()
	}
}
