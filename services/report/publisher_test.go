package report

import (
	"testing"
	"time"

	"smokenode/bus"
	"smokenode/types"
)

func TestPublishesUnderReportTree(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	all := conn.Subscribe(bus.T(Prefix, "#"))
	alarms := conn.Subscribe(bus.T(Prefix, "+", KindAlarm))

	p := NewPublisher(conn)
	val := []byte{150}
	p.ReportAttribute(10, types.ClusterPowerConfig, types.AttrBatteryPctRemaining, val)
	val[0] = 0 // caller reuse must not leak into the message
	p.SendAlarm(10, true)

	select {
	case m := <-alarms.Channel():
		r, ok := m.Payload.(types.AlarmReport)
		if !ok || !r.Active || r.Endpoint != 10 || r.ZoneStatus() != types.ZoneStatusAlarm1 {
			t.Fatalf("alarm payload %#v", m.Payload)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no alarm message")
	}

	first := <-all.Channel()
	if got := first.Topic.String(); got != "report/10/attr/1/33" {
		t.Fatalf("topic = %s", got)
	}
	a := first.Payload.(types.AttributeReport)
	if a.Value[0] != 150 {
		t.Fatalf("value = %v", a.Value)
	}
	if p.Sent() != 2 {
		t.Fatalf("sent = %d", p.Sent())
	}
}
