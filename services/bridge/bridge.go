// Package bridge forwards report/# messages from the local bus to the uplink
// selected by config/bridge, and answers flush requests so the node knows
// when it may power down.
package bridge

import (
	"context"
	"sync"
	"time"

	"smokenode/bus"
	"smokenode/errcode"
	"smokenode/services/report"
	"smokenode/types"
	"smokenode/x/fmtx"
	"smokenode/x/logx"
	"smokenode/x/timex"
)

var (
	TopicConfig = bus.T("config", "bridge")
	TopicState  = bus.T("bridge", "state")
	TopicFlush  = bus.T("bridge", "flush")
)

var clock timex.Clock = timex.System{}

// maxPending bounds the reports held while no uplink is open.
const maxPending = 32

// FlushRequest is the payload of a bridge/flush request.
type FlushRequest struct {
	TimeoutMS int `json:"timeout_ms"`
}

// FlushResult is the reply to a bridge/flush request.
type FlushResult struct {
	Forwarded int    `json:"forwarded"`
	Dropped   int    `json:"dropped"`
	Err       string `json:"error,omitempty"`
}

// Start runs a bridge with the given ncp uplink until ctx ends.
func Start(ctx context.Context, conn *bus.Connection, ncp Uplink, log logx.Logger) {
	New(conn, ncp, log).Run(ctx)
}

// Service holds at most one open uplink. Reports that arrive while the link
// is down queue up to maxPending; older ones are dropped first.
type Service struct {
	conn  *bus.Connection
	ncp   Uplink
	log   logx.Logger
	links chan Uplink

	cfgSub   *bus.Subscription
	repSub   *bus.Subscription
	flushSub *bus.Subscription

	up    Uplink
	queue []*bus.Message
	fwd   int
	drop  int

	mu     sync.Mutex
	curRun context.CancelFunc
}

// New subscribes immediately, so reports published after New returns are
// never missed even if Run has not been scheduled yet.
func New(conn *bus.Connection, ncp Uplink, log logx.Logger) *Service {
	return &Service{
		conn:     conn,
		ncp:      ncp,
		log:      logx.Or(log),
		links:    make(chan Uplink, 1),
		cfgSub:   conn.Subscribe(TopicConfig),
		repSub:   conn.Subscribe(bus.T(report.Prefix, "#")),
		flushSub: conn.Subscribe(TopicFlush),
	}
}

func (s *Service) Run(ctx context.Context) {
	defer s.conn.Unsubscribe(s.cfgSub)
	defer s.conn.Unsubscribe(s.repSub)
	defer s.conn.Unsubscribe(s.flushSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-s.cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			s.applyConfig(ctx, msg)
		case up := <-s.links:
			s.setUplink(up)
		case msg := <-s.repSub.Channel():
			s.handleReport(msg)
		case req := <-s.flushSub.Channel():
			s.drainReports()
			s.handleFlush(ctx, req)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) applyConfig(ctx context.Context, msg *bus.Message) {
	cfg, ok := msg.Payload.(types.BridgeConfig)
	if !ok {
		s.publishState("error", "config_decode_failed", fmtx.Errorf("unexpected payload on %s", msg.Topic.String()))
		return
	}
	s.reconfigure(ctx, cfg)
}

func (s *Service) reconfigure(parent context.Context, cfg types.BridgeConfig) {
	tr, err := NewTransport(cfg, s.ncp, s.log)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	// Drop anything the previous link offered before it was cancelled.
	select {
	case <-s.links:
	default:
	}
	s.setUplink(nil)
	go s.runLink(ctx, tr)
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, tr Transport) {
	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		up, err := tr.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmtx.Errorf("%s: %v (retry in %s)", tr, err, delay))
			if !clock.Sleep(ctx, delay) {
				return
			}
			continue
		}

		if !s.offer(ctx, up) {
			return
		}
		s.publishState("up", "link_established", nil)

		w, ok := up.(linkWatcher)
		if !ok {
			// Nothing to watch; the uplink lives until reconfigured.
			<-ctx.Done()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-w.Done():
		}
		if !s.offer(ctx, nil) {
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", fmtx.Errorf("%v (retry in %s)", w.Err(), delay))
		if !clock.Sleep(ctx, delay) {
			return
		}
	}
}

// offer hands an uplink (or nil for "down") to the service loop.
func (s *Service) offer(ctx context.Context, up Uplink) bool {
	select {
	case s.links <- up:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Service) setUplink(up Uplink) {
	s.up = up
	if up == nil {
		return
	}
	q := s.queue
	s.queue = nil
	for _, m := range q {
		s.forward(m)
	}
}

// -----------------------------------------------------------------------------
// Reports
// -----------------------------------------------------------------------------

func (s *Service) handleReport(msg *bus.Message) {
	if s.up != nil {
		s.forward(msg)
		return
	}
	if len(s.queue) == maxPending {
		s.queue = s.queue[1:]
		s.drop++
	}
	s.queue = append(s.queue, msg)
}

func (s *Service) forward(msg *bus.Message) {
	switch p := msg.Payload.(type) {
	case types.AlarmReport:
		s.up.SendAlarm(p.Endpoint, p.Active)
	case types.AttributeReport:
		s.up.ReportAttribute(p.Endpoint, p.Cluster, p.Attr, p.Value)
	default:
		s.log.Warn("unknown report payload", "topic", msg.Topic.String())
		return
	}
	s.fwd++
}

// drainReports forwards whatever is already queued on the report
// subscription so that a flush covers every report published before it.
func (s *Service) drainReports() {
	for {
		select {
		case msg := <-s.repSub.Channel():
			s.handleReport(msg)
		default:
			return
		}
	}
}

func (s *Service) handleFlush(parent context.Context, req *bus.Message) {
	timeout := time.Second
	if fr, ok := req.Payload.(FlushRequest); ok && fr.TimeoutMS > 0 {
		timeout = timex.Millis(fr.TimeoutMS)
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	select {
	case msg, ok := <-s.cfgSub.Channel():
		if ok {
			s.applyConfig(parent, msg)
		}
	default:
	}

	var err error
	if s.up == nil {
		// Give a dialling link the flush window to come up.
		select {
		case up := <-s.links:
			s.setUplink(up)
		case <-ctx.Done():
		}
	}
	if s.up == nil {
		err = &errcode.E{C: errcode.LinkDown, Op: "bridge.flush", Msg: "no uplink"}
	} else {
		err = s.up.Flush(ctx)
	}

	res := FlushResult{Forwarded: s.fwd, Dropped: s.drop}
	if err != nil {
		res.Err = err.Error()
		s.log.Warn("flush incomplete", "err", err, "queued", len(s.queue))
	}
	s.conn.Reply(req, res, false)
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  timex.NowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}
