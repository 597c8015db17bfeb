// Package mesh follows the network stack through commissioning. Signals from
// the stack drive a small state machine; failed steering is retried through a
// Scheduler after a fixed backoff.
package mesh

import (
	"sync"
	"time"

	"smokenode/types"
	"smokenode/x/logx"
)

// State of the network lifecycle.
type State uint8

const (
	Uncommissioned State = iota
	Initialising
	Steering
	Joined
	InitFailed
)

func (s State) String() string {
	switch s {
	case Initialising:
		return "initialising"
	case Steering:
		return "steering"
	case Joined:
		return "joined"
	case InitFailed:
		return "init_failed"
	default:
		return "uncommissioned"
	}
}

// Link maps the state onto the coarse link view published for diagnostics.
func (s State) Link() types.Link {
	switch s {
	case Joined:
		return types.LinkUp
	case Steering, Initialising:
		return types.LinkSteering
	case InitFailed:
		return types.LinkDegraded
	default:
		return types.LinkDown
	}
}

// Commissioner is the control side of the stack the lifecycle drives.
type Commissioner interface {
	StartCommissioning(mode types.CommissionMode) error
	Network() types.NetworkInfo
}

// Scheduler runs fn after d. The returned func cancels a pending call.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler schedules with time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Lifecycle is the commissioning state machine.
type Lifecycle struct {
	stack Commissioner
	sched Scheduler
	retry time.Duration
	log   logx.Logger

	// OnChange, if set, observes every transition.
	OnChange func(State)

	mu       sync.Mutex
	state    State
	retries  int
	pending  func()
	joined   chan struct{}
	failed   chan struct{}
	failOnce sync.Once
}

func NewLifecycle(stack Commissioner, sched Scheduler, retry time.Duration, log logx.Logger) *Lifecycle {
	if sched == nil {
		sched = TimerScheduler{}
	}
	return &Lifecycle{
		stack:  stack,
		sched:  sched,
		retry:  retry,
		log:    logx.Or(log),
		joined: make(chan struct{}),
		failed: make(chan struct{}),
	}
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Retries returns how many steering retries were scheduled.
func (l *Lifecycle) Retries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retries
}

// Joined is closed once the node is on the network.
func (l *Lifecycle) Joined() <-chan struct{} { return l.joined }

// Failed is closed when stack initialisation fails; the node should sleep
// for the retry interval and start over.
func (l *Lifecycle) Failed() <-chan struct{} { return l.failed }

// Handle advances the machine on one stack signal.
func (l *Lifecycle) Handle(sig types.NetSignal) {
	switch sig.Kind {
	case types.SignalSkipStartup:
		l.log.Info("stack initialised")
		l.set(Initialising)
		l.commission(types.CommissionInit)

	case types.SignalFirstStart, types.SignalReboot:
		if !sig.OK() {
			l.log.Warn("stack initialisation failed", "signal", sig.Kind, "status", sig.Status)
			l.set(InitFailed)
			l.failOnce.Do(func() { close(l.failed) })
			return
		}
		l.log.Info("start network steering", "signal", sig.Kind)
		l.set(Steering)
		l.commission(types.CommissionSteering)

	case types.SignalSteering:
		if sig.OK() {
			ni := l.stack.Network()
			l.log.Info("joined network", "ext_pan", ni.ExtPANID, "pan", ni.PANID, "channel", ni.Channel)
			if l.set(Joined) {
				close(l.joined)
			}
			return
		}
		l.log.Info("network steering was not successful", "status", sig.Status, "retry", l.retry)
		l.scheduleSteering()

	default:
		l.log.Debug("stack signal", "signal", sig.Kind, "status", sig.Status)
	}
}

// set records s and reports whether it changed the state.
func (l *Lifecycle) set(s State) bool {
	l.mu.Lock()
	changed := l.state != s
	l.state = s
	l.mu.Unlock()
	if changed && l.OnChange != nil {
		l.OnChange(s)
	}
	return changed
}

func (l *Lifecycle) commission(mode types.CommissionMode) {
	if err := l.stack.StartCommissioning(mode); err != nil {
		l.log.Error("commissioning request failed", "mode", mode, "err", err)
		if mode == types.CommissionSteering {
			l.scheduleSteering()
		}
	}
}

func (l *Lifecycle) scheduleSteering() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Joined {
		return
	}
	if l.pending != nil {
		l.pending()
	}
	l.retries++
	l.pending = l.sched.After(l.retry, func() {
		l.mu.Lock()
		l.pending = nil
		l.mu.Unlock()
		l.commission(types.CommissionSteering)
	})
}

// Stop cancels a pending steering retry.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		l.pending()
		l.pending = nil
	}
}
