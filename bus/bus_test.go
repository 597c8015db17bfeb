// bus/bus_test.go
package bus

import (
	"context"
	"sort"
	"testing"
	"time"
)

func TestPublishExactTopic(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T("report", "alarm"))
	conn.Publish(conn.NewMessage(T("report", "alarm"), "active", false))

	expectPayload(t, sub, "active")
}

func TestRetainedConfigDeliveredOnSubscribe(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(T("config", "sleep"), "short=30", true))
	sub := conn.Subscribe(T("config", "sleep"))

	expectPayload(t, sub, "short=30")
}

func TestSingleLevelWildcard(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	anyEp := c.Subscribe(T("report", "+", "ias_zone"))
	other := c.Subscribe(T("report", "+", "power"))

	c.Publish(b.NewMessage(T("report", 10, "ias_zone"), "z", false))
	expectPayload(t, anyEp, "z")
	expectNothing(t, other)

	c.Publish(b.NewMessage(T("report", 10), "short", false))
	expectNothing(t, anyEp)
}

func TestMultiLevelWildcardMatchesParent(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	all := c.Subscribe(T("report", "#"))

	c.Publish(b.NewMessage(T("report"), "p0", false))
	c.Publish(b.NewMessage(T("report", "alarm"), "p1", false))
	c.Publish(b.NewMessage(T("report", 10, "power", 33), "p2", false))

	assertSet(t, drain(t, all, 3), []string{"p0", "p1", "p2"})
}

func TestRetainedWildcardAndClear(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(T("config", "battery"), "b", true))
	c.Publish(b.NewMessage(T("config", "sleep"), "s", true))
	c.Publish(b.NewMessage(T("config", "watchdog"), "w", true))
	c.Publish(b.NewMessage(T("config", "sleep"), nil, true))

	sub := c.Subscribe(T("config", "+"))
	assertSet(t, drain(t, sub, 2), []string{"b", "w"})
}

func TestQueueDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	sub := c.Subscribe(T("x"))

	for _, p := range []string{"a", "b", "c"} {
		c.Publish(b.NewMessage(T("x"), p, false))
	}
	assertSet(t, drain(t, sub, 2), []string{"b", "c"})
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	sub := c.Subscribe(T("x"))
	c.Unsubscribe(sub)
	c.Unsubscribe(sub) // second call is a no-op

	if _, ok := <-sub.Channel(); ok {
		t.Fatal("expected closed channel")
	}
	// Publishing after unsubscribe must not panic.
	c.Publish(b.NewMessage(T("x"), "late", false))
}

func TestRequestWaitReply(t *testing.T) {
	b := NewBus(8)
	node := b.NewConnection("node")
	bridge := b.NewConnection("bridge")

	flush := bridge.Subscribe(T("bridge", "flush"))
	defer bridge.Unsubscribe(flush)

	go func() {
		if m, ok := <-flush.Channel(); ok {
			bridge.Reply(m, true, false)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req := node.NewMessage(T("bridge", "flush"), nil, false)
	reply, err := node.RequestWait(ctx, req)
	if err != nil {
		t.Fatalf("RequestWait: %v", err)
	}
	if v, ok := reply.Payload.(bool); !ok || !v {
		t.Fatalf("unexpected reply payload %#v", reply.Payload)
	}
	if len(req.ReplyTo) == 0 {
		t.Fatal("request lacks ReplyTo")
	}
}

func TestRequestWaitTimeout(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("node")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.RequestWait(ctx, c.NewMessage(T("nobody"), nil, false)); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestTopicPanicsOnSliceToken(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	_ = T([]byte{1})
}

func TestTopicString(t *testing.T) {
	if got := T("report", 10, "power").String(); got != "report/10/power" {
		t.Fatalf("String() = %q", got)
	}
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func expectPayload(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		if s, ok := got.Payload.(string); !ok || s != want {
			t.Fatalf("payload %#v, want %q", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(40 * time.Millisecond):
	}
}

func drain(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.After(300 * time.Millisecond)
	for len(out) < n {
		select {
		case m := <-sub.Channel():
			s, _ := m.Payload.(string)
			out = append(out, s)
		case <-deadline:
			t.Fatalf("drain: got %d of %d (%v)", len(out), n, out)
		}
	}
	return out
}

func assertSet(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
