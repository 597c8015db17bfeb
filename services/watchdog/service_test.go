package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"smokenode/bus"
	"smokenode/types"
)

type sleepRec struct {
	mu      sync.Mutex
	entries []types.SleepPlan
	forced  []bool
}

func (r *sleepRec) sleep(p types.SleepPlan, forced bool) {
	r.mu.Lock()
	r.entries = append(r.entries, p)
	r.forced = append(r.forced, forced)
	r.mu.Unlock()
}

func (r *sleepRec) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func sinceNow() func() time.Duration {
	start := time.Now()
	return func() time.Duration { return time.Since(start) }
}

var forcedPlan = types.SleepPlan{Seconds: 30}

func TestFiresPastBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(4)
	conn := b.NewConnection("test")
	fired := conn.Subscribe(topicFired)

	rec := &sleepRec{}
	gate := NewGate(rec.sleep)
	s := &Service{Budget: 30 * time.Millisecond, Plan: forcedPlan, Gate: gate, Uptime: sinceNow()}
	if err := s.Start(ctx, b.NewConnection("watchdog")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-gate.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("watchdog did not fire")
	}
	plan, forced := gate.Taken()
	if plan != forcedPlan || plan.PinWake || !forced {
		t.Fatalf("taken = %+v forced=%v", plan, forced)
	}

	select {
	case m := <-fired.Channel():
		ns, ok := m.Payload.(types.NodeState)
		if !ok || !ns.Forced || ns.Plan != forcedPlan {
			t.Fatalf("fired payload %#v", m.Payload)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no watchdog/fired message")
	}
}

func TestControllerWinsRace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(4)
	rec := &sleepRec{}
	gate := NewGate(rec.sleep)
	s := &Service{Budget: 40 * time.Millisecond, Plan: forcedPlan, Gate: gate, Uptime: sinceNow()}
	_ = s.Start(ctx, b.NewConnection("watchdog"))

	long := types.SleepPlan{Seconds: 21600, PinWake: true}
	if !gate.Enter(long, false) {
		t.Fatal("controller lost an uncontested gate")
	}
	time.Sleep(80 * time.Millisecond)

	if rec.count() != 1 {
		t.Fatalf("deep sleep entered %d times", rec.count())
	}
	if plan, forced := gate.Taken(); plan != long || forced {
		t.Fatalf("taken = %+v forced=%v", plan, forced)
	}
}

func TestGateSingleShot(t *testing.T) {
	rec := &sleepRec{}
	gate := NewGate(rec.sleep)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(forced bool) {
			defer wg.Done()
			if gate.Enter(forcedPlan, forced) {
				atomic.AddInt32(&wins, 1)
			}
		}(i%2 == 0)
	}
	wg.Wait()
	if wins != 1 || rec.count() != 1 {
		t.Fatalf("wins=%d entries=%d", wins, rec.count())
	}
}

func TestDeadlineMatchesBudget(t *testing.T) {
	s := &Service{Budget: 5 * time.Second, Uptime: func() time.Duration { return 2 * time.Second }}
	ctx, cancel := s.Deadline(context.Background())
	defer cancel()

	dl, ok := ctx.Deadline()
	if !ok {
		t.Fatal("no deadline")
	}
	if left := time.Until(dl); left > 3*time.Second || left < 2900*time.Millisecond {
		t.Fatalf("deadline in %v, want about 3s", left)
	}
}

func TestDefaultBudget(t *testing.T) {
	s := &Service{}
	if s.Remaining() != DefaultBudget {
		t.Fatalf("remaining = %v", s.Remaining())
	}
}

func TestConfigShortensBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(4)
	cfg := b.NewConnection("config")
	cfg.Publish(cfg.NewMessage(topicConfigWatchdog, types.WatchdogConfig{BudgetMS: 20}, true))

	gate := NewGate((&sleepRec{}).sleep)
	s := &Service{Budget: 10 * time.Second, Plan: forcedPlan, Gate: gate, Uptime: sinceNow()}
	_ = s.Start(ctx, b.NewConnection("watchdog"))

	select {
	case <-gate.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("configured budget not applied")
	}
}
