package mesh

import (
	"context"

	"smokenode/bus"
	"smokenode/errcode"
	"smokenode/types"
	"smokenode/x/conv"
	"smokenode/x/logx"
	"smokenode/x/timex"
)

var topicMeshState = bus.T("mesh", "state")

// Stack is a mesh network stack the node can register with and commission.
type Stack interface {
	Commissioner
	Register(ep uint8, mask uint32, id types.DeviceIdentity) error
	Start() error
	Signals() <-chan types.NetSignal
}

// StatePayload is published retained on "mesh/state".
type StatePayload struct {
	State   string            `json:"state"`
	Link    types.Link        `json:"link"`
	Retries int               `json:"retries"`
	Network types.NetworkInfo `json:"network"`
	TS      int64             `json:"ts_ms"`
}

type Service struct {
	Stack    Stack
	Sched    Scheduler
	Zigbee   types.ZigbeeConfig
	Identity types.DeviceIdentity
	Log      logx.Logger

	lc *Lifecycle
}

// Lifecycle is valid after Start.
func (s *Service) Lifecycle() *Lifecycle { return s.lc }

func (s *Service) serviceLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.lc.Stop()
			return
		case sig, ok := <-s.Stack.Signals():
			if !ok {
				return
			}
			s.lc.Handle(sig)
		}
	}
}

// Start registers the endpoint, starts the stack and follows its signals.
// A failure here is a stack initialisation failure.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	log := logx.Or(s.Log)
	s.lc = NewLifecycle(s.Stack, s.Sched, timex.Millis(s.Zigbee.SteeringRetryMS), log)
	s.lc.OnChange = func(st State) {
		p := StatePayload{
			State:   st.String(),
			Link:    st.Link(),
			Retries: s.lc.Retries(),
			TS:      timex.NowMs(),
		}
		if st == Joined {
			p.Network = s.Stack.Network()
		}
		conn.Publish(conn.NewMessage(topicMeshState, p, true))
	}

	if err := s.Stack.Register(s.Zigbee.Endpoint, s.Zigbee.ChannelMask, s.Identity); err != nil {
		return errcode.Wrap(errcode.StackInit, "mesh.register", err)
	}
	var hex [8]byte
	log.Debug("endpoint registered", "ep", s.Zigbee.Endpoint, "channels", "0x"+string(conv.U32Hex(hex[:], s.Zigbee.ChannelMask)))
	go s.serviceLoop(ctx)
	if err := s.Stack.Start(); err != nil {
		return errcode.Wrap(errcode.StackInit, "mesh.start", err)
	}
	return nil
}

// WaitJoined blocks until the node has joined, initialisation failed, or ctx
// ended.
func (s *Service) WaitJoined(ctx context.Context) error {
	select {
	case <-s.lc.Joined():
		return nil
	case <-s.lc.Failed():
		return &errcode.E{C: errcode.StackInit, Op: "mesh.join", Msg: "stack initialisation failed"}
	case <-ctx.Done():
		return errcode.Wrap(errcode.NotJoined, "mesh.join", ctx.Err())
	}
}
