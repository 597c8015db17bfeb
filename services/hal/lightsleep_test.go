package hal

import (
	"context"
	"testing"
	"time"

	"smokenode/types"
)

func sleepAsync(l *LightSleeper) <-chan types.WakeCause {
	done := make(chan types.WakeCause, 1)
	go func() {
		l.DeepSleep()
		done <- l.WakeCause()
	}()
	return done
}

func TestLightSleepWakesOnSmokeEdge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pin := NewSimPin(12)
	l, err := NewLightSleeper(ctx, pin, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if l.WakeCause() != types.WakeColdBoot {
		t.Fatal("first cause should be cold boot")
	}

	ArmPlan(l, 12, types.SleepPlan{Seconds: 3600, PinWake: true})
	done := sleepAsync(l)
	time.Sleep(20 * time.Millisecond)
	pin.Set(true)

	select {
	case c := <-done:
		if c != types.WakeExternalPin {
			t.Fatalf("cause = %v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no wake on smoke edge")
	}
}

func TestLightSleepLineAlreadyHigh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pin := NewSimPin(12)
	pin.Set(true)
	l, err := NewLightSleeper(ctx, pin, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ArmPlan(l, 12, types.SleepPlan{Seconds: 3600, PinWake: true})
	select {
	case c := <-sleepAsync(l):
		if c != types.WakeExternalPin {
			t.Fatalf("cause = %v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("level-high line did not wake")
	}
}

func TestLightSleepIgnoresEdgeWithoutPinWake(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pin := NewSimPin(12)
	l, err := NewLightSleeper(ctx, pin, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ArmPlan(l, 12, types.SleepPlan{Seconds: 1})
	done := sleepAsync(l)
	time.Sleep(20 * time.Millisecond)
	pin.Set(true)

	select {
	case c := <-done:
		if c != types.WakeTimer {
			t.Fatalf("cause = %v", c)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timer wake missing")
	}
}

func TestLightSleepContextEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pin := NewSimPin(12)
	l, err := NewLightSleeper(ctx, pin, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ArmPlan(l, 12, types.SleepPlan{Seconds: 3600, PinWake: true})
	done := sleepAsync(l)
	cancel()
	select {
	case c := <-done:
		if c != types.WakeColdBoot {
			t.Fatalf("cause = %v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("DeepSleep outlived its context")
	}
}
