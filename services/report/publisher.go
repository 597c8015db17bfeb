// Package report turns controller reports into bus messages under
// "report/<endpoint>/...". The bridge forwards them to the uplink.
package report

import (
	"sync/atomic"

	"smokenode/bus"
	"smokenode/types"
)

// Topic tokens.
const (
	Prefix    = "report"
	KindAlarm = "ias_zone"
	KindAttr  = "attr"
)

// AlarmTopic is report/<ep>/ias_zone.
func AlarmTopic(ep uint8) bus.Topic { return bus.T(Prefix, int(ep), KindAlarm) }

// AttrTopic is report/<ep>/attr/<cluster>/<attr>.
func AttrTopic(ep uint8, cluster, attr uint16) bus.Topic {
	return bus.T(Prefix, int(ep), KindAttr, int(cluster), int(attr))
}

// Publisher implements the controller's Reporter on the bus.
type Publisher struct {
	conn *bus.Connection
	sent atomic.Int32
}

func NewPublisher(conn *bus.Connection) *Publisher { return &Publisher{conn: conn} }

func (p *Publisher) SendAlarm(ep uint8, active bool) {
	p.conn.Publish(p.conn.NewMessage(AlarmTopic(ep), types.AlarmReport{Endpoint: ep, Active: active}, false))
	p.sent.Add(1)
}

func (p *Publisher) ReportAttribute(ep uint8, cluster, attr uint16, value []byte) {
	v := append([]byte(nil), value...)
	a := types.AttributeReport{Endpoint: ep, Cluster: cluster, Attr: attr, Value: v}
	p.conn.Publish(p.conn.NewMessage(AttrTopic(ep, cluster, attr), a, false))
	p.sent.Add(1)
}

// Sent returns the number of reports published.
func (p *Publisher) Sent() int { return int(p.sent.Load()) }
