package mesh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smokenode/bus"
	"smokenode/errcode"
	"smokenode/types"
)

type fakeStack struct {
	mu       sync.Mutex
	modes    []types.CommissionMode
	failNext int
}

func (f *fakeStack) StartCommissioning(m types.CommissionMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, m)
	if f.failNext > 0 {
		f.failNext--
		return errors.New("busy")
	}
	return nil
}

func (f *fakeStack) Network() types.NetworkInfo { return types.NetworkInfo{PANID: 0x1A62} }

func (f *fakeStack) calls() []types.CommissionMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.CommissionMode(nil), f.modes...)
}

// fakeSched queues callbacks; the test fires them explicitly.
type fakeSched struct {
	delays []time.Duration
	fns    []func()
	cancel int
}

func (s *fakeSched) After(d time.Duration, fn func()) func() {
	s.delays = append(s.delays, d)
	s.fns = append(s.fns, fn)
	return func() { s.cancel++ }
}

func (s *fakeSched) fire() {
	fn := s.fns[0]
	s.fns = s.fns[1:]
	fn()
}

func TestHappyPath(t *testing.T) {
	st := &fakeStack{}
	var seen []State
	l := NewLifecycle(st, &fakeSched{}, time.Second, nil)
	l.OnChange = func(s State) { seen = append(seen, s) }

	l.Handle(types.NetSignal{Kind: types.SignalSkipStartup})
	l.Handle(types.NetSignal{Kind: types.SignalFirstStart})
	l.Handle(types.NetSignal{Kind: types.SignalSteering})

	select {
	case <-l.Joined():
	default:
		t.Fatal("not joined")
	}
	want := []State{Initialising, Steering, Joined}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v", seen)
		}
	}
	calls := st.calls()
	if len(calls) != 2 || calls[0] != types.CommissionInit || calls[1] != types.CommissionSteering {
		t.Fatalf("commissioning calls = %v", calls)
	}
}

func TestSteeringFailureRetriesAfterBackoff(t *testing.T) {
	st := &fakeStack{}
	sch := &fakeSched{}
	l := NewLifecycle(st, sch, 1000*time.Millisecond, nil)

	l.Handle(types.NetSignal{Kind: types.SignalReboot})
	for i := 0; i < 3; i++ {
		l.Handle(types.NetSignal{Kind: types.SignalSteering, Status: -1})
		if len(sch.fns) != 1 || sch.delays[i] != time.Second {
			t.Fatalf("attempt %d: pending=%d delays=%v", i, len(sch.fns), sch.delays)
		}
		sch.fire()
	}
	if l.State() != Steering || l.Retries() != 3 {
		t.Fatalf("state=%v retries=%d", l.State(), l.Retries())
	}
	// One initial steering request plus one per retry.
	if n := len(st.calls()); n != 4 {
		t.Fatalf("commissioning calls = %d", n)
	}
	l.Handle(types.NetSignal{Kind: types.SignalSteering})
	if l.State() != Joined {
		t.Fatalf("state = %v", l.State())
	}
}

func TestSteeringRequestErrorIsRescheduled(t *testing.T) {
	st := &fakeStack{failNext: 1}
	sch := &fakeSched{}
	l := NewLifecycle(st, sch, time.Second, nil)
	l.Handle(types.NetSignal{Kind: types.SignalFirstStart})
	if len(sch.fns) != 1 {
		t.Fatal("failed steering request not rescheduled")
	}
}

func TestInitFailure(t *testing.T) {
	l := NewLifecycle(&fakeStack{}, &fakeSched{}, time.Second, nil)
	l.Handle(types.NetSignal{Kind: types.SignalFirstStart, Status: 5})
	l.Handle(types.NetSignal{Kind: types.SignalReboot, Status: 5}) // second failure must not panic
	select {
	case <-l.Failed():
	default:
		t.Fatal("failure not signalled")
	}
	if l.State() != InitFailed || l.State().Link() != types.LinkDegraded {
		t.Fatalf("state = %v", l.State())
	}
}

func TestStopCancelsPendingRetry(t *testing.T) {
	sch := &fakeSched{}
	l := NewLifecycle(&fakeStack{}, sch, time.Second, nil)
	l.Handle(types.NetSignal{Kind: types.SignalSteering, Status: -1})
	l.Stop()
	if sch.cancel != 1 {
		t.Fatalf("cancel calls = %d", sch.cancel)
	}
}

func TestServiceJoinsOverLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(8)
	conn := b.NewConnection("mesh")
	state := conn.Subscribe(topicMeshState)

	svc := &Service{
		Stack:  NewLoopback(),
		Zigbee: types.ZigbeeConfig{Endpoint: 10, SteeringRetryMS: 1000},
	}
	if err := svc.Start(ctx, conn); err != nil {
		t.Fatal(err)
	}
	wctx, wcancel := context.WithTimeout(ctx, time.Second)
	defer wcancel()
	if err := svc.WaitJoined(wctx); err != nil {
		t.Fatalf("WaitJoined: %v", err)
	}

	var last StatePayload
	deadline := time.After(300 * time.Millisecond)
	for last.State != "joined" {
		select {
		case m := <-state.Channel():
			last = m.Payload.(StatePayload)
		case <-deadline:
			t.Fatalf("last state = %+v", last)
		}
	}
	if last.Link != types.LinkUp {
		t.Fatalf("link = %v", last.Link)
	}
}

type deafStack struct{ *Loopback }

func (deafStack) Start() error { return nil }

func TestWaitJoinedTimesOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := bus.NewBus(4)
	svc := &Service{Stack: deafStack{NewLoopback()}}
	if err := svc.Start(ctx, b.NewConnection("mesh")); err != nil {
		t.Fatal(err)
	}
	wctx, wcancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer wcancel()
	if err := svc.WaitJoined(wctx); errcode.Of(err) != errcode.NotJoined {
		t.Fatalf("err = %v", err)
	}
}
