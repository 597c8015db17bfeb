// Package watchdog bounds how long a node stays awake. If the boot sequence
// has not reached deep sleep within the budget, the watchdog takes the sleep
// gate with the short recheck plan.
package watchdog

import (
	"context"
	"sync"
	"time"

	"smokenode/bus"
	"smokenode/types"
	"smokenode/x/logx"
	"smokenode/x/timex"
)

var (
	topicConfigWatchdog = bus.T("config", "watchdog")
	topicFired          = bus.T("watchdog", "fired")
)

// DefaultBudget is the awake-time budget when none is configured.
const DefaultBudget = 5 * time.Second

// ---- Sleep gate ----

// Gate makes deep-sleep entry single-shot. The first Enter runs the sleep
// function; later calls return false without side effects.
type Gate struct {
	once  sync.Once
	sleep func(plan types.SleepPlan, forced bool)
	done  chan struct{}

	mu     sync.Mutex
	plan   types.SleepPlan
	forced bool
}

func NewGate(sleep func(plan types.SleepPlan, forced bool)) *Gate {
	return &Gate{sleep: sleep, done: make(chan struct{})}
}

func (g *Gate) Enter(plan types.SleepPlan, forced bool) bool {
	won := false
	g.once.Do(func() {
		won = true
		g.mu.Lock()
		g.plan, g.forced = plan, forced
		g.mu.Unlock()
		close(g.done)
		g.sleep(plan, forced)
	})
	return won
}

// Done is closed once a caller has taken the gate.
func (g *Gate) Done() <-chan struct{} { return g.done }

// Taken returns the plan the winner entered sleep with.
func (g *Gate) Taken() (plan types.SleepPlan, forced bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.plan, g.forced
}

// ---- Service ----

type Service struct {
	Budget time.Duration
	Plan   types.SleepPlan // forced plan: short interval, pin wake off
	Gate   *Gate
	Uptime func() time.Duration
	Log    logx.Logger

	mu sync.Mutex // guards Budget once started
}

// Remaining returns the budget left at this instant.
func (s *Service) Remaining() time.Duration {
	if s.Uptime == nil {
		return s.budget()
	}
	return s.budget() - s.Uptime()
}

// Deadline derives a context that ends when the budget runs out, so that
// bounded work in the boot sequence stops no later than the watchdog fires.
func (s *Service) Deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.Remaining())
}

func (s *Service) budget() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Budget <= 0 {
		return DefaultBudget
	}
	return s.Budget
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	log := logx.Or(s.Log)
	cfgSub := conn.Subscribe(topicConfigWatchdog)
	defer conn.Unsubscribe(cfgSub)

	t := time.NewTimer(s.Remaining())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Gate.Done():
			return
		case msg := <-cfgSub.Channel():
			wc, ok := msg.Payload.(types.WatchdogConfig)
			if !ok || wc.Disabled || wc.BudgetMS <= 0 {
				continue
			}
			s.mu.Lock()
			s.Budget = timex.Millis(wc.BudgetMS)
			s.mu.Unlock()
			rem := s.Remaining()
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(rem)
			log.Debug("budget updated", "budget_ms", wc.BudgetMS, "remaining", rem)
		case <-t.C:
			up := s.Uptime()
			log.Warn("awake budget exceeded, forcing sleep", "uptime", up, "seconds", s.Plan.Seconds)
			conn.Publish(conn.NewMessage(topicFired, types.NodeState{
				Plan:   s.Plan,
				Forced: true,
				TS:     timex.NowMs(),
			}, false))
			s.Gate.Enter(s.Plan, true)
			return
		}
	}
}

// Start the watchdog.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.Uptime == nil {
		start := time.Now()
		s.Uptime = func() time.Duration { return time.Since(start) }
	}
	go s.serviceLoop(ctx, conn)
	return nil
}
