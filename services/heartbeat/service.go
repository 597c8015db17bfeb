// Package heartbeat publishes a liveness message for nodes that stay awake.
// Sleepy nodes never run it: their boot report is their heartbeat.
package heartbeat

import (
	"context"
	"time"

	"tinygo.org/x/drivers"

	"smokenode/bus"
	"smokenode/types"
	"smokenode/x/logx"
	"smokenode/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	TopicHeartbeat       = bus.T("node", "heartbeat")
)

const defaultInterval = 60 * time.Second

// Battery is sampled on every beat when set.
type Battery interface {
	drivers.Sensor
	Voltage() int32 // microvolts
}

type Service struct {
	Uptime  func() time.Duration
	Battery Battery
	Log     logx.Logger

	seq uint32
}

func (s *Service) beat(conn *bus.Connection) {
	s.seq++
	hb := types.Heartbeat{
		Seq:      s.seq,
		UptimeMS: s.Uptime().Milliseconds(),
		TS:       timex.NowMs(),
	}
	if s.Battery != nil {
		if err := s.Battery.Update(drivers.Voltage); err != nil {
			logx.Or(s.Log).Warn("battery sample failed", "err", err)
		} else {
			hb.BatteryMV = s.Battery.Voltage() / 1000
		}
	}
	conn.Publish(conn.NewMessage(TopicHeartbeat, hb, true))
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	log := logx.Or(s.Log)
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			log.Debug("heartbeat service stopping")
			return
		case <-tick.C:
			s.beat(conn)
		case msg := <-cfgSub.Channel():
			hc, ok := msg.Payload.(types.HeartbeatConfig)
			if !ok || hc.IntervalS == 0 {
				continue
			}
			tick.Reset(timex.Seconds(hc.IntervalS))
			log.Debug("heartbeat interval set", "seconds", hc.IntervalS)
		}
	}
}

// Start the heartbeat service. The first beat goes out immediately.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.Uptime == nil {
		start := time.Now()
		s.Uptime = func() time.Duration { return time.Since(start) }
	}
	s.beat(conn)
	go s.serviceLoop(ctx, conn)
	return nil
}
