package bridge

import (
	"context"
	"encoding/hex"

	"smokenode/x/logx"
)

// Uplink carries reports off the node.
type Uplink interface {
	SendAlarm(ep uint8, active bool)
	ReportAttribute(ep uint8, cluster, attr uint16, value []byte)
	// Flush returns once everything sent so far has left the node or ctx ends.
	Flush(ctx context.Context) error
}

// linkWatcher is implemented by uplinks that can die underneath the bridge.
type linkWatcher interface {
	Done() <-chan struct{}
	Err() error
}

// LogUplink writes reports to a logger. Bench nodes without a radio use it.
type LogUplink struct {
	Log logx.Logger
}

func (u LogUplink) SendAlarm(ep uint8, active bool) {
	logx.Or(u.Log).Info("alarm", "ep", ep, "active", active)
}

func (u LogUplink) ReportAttribute(ep uint8, cluster, attr uint16, value []byte) {
	logx.Or(u.Log).Info("attribute", "ep", ep, "cluster", cluster, "attr", attr, "value", hex.EncodeToString(value))
}

func (LogUplink) Flush(context.Context) error { return nil }
