package ncp

import (
	"context"
	"io"
	"sync"

	"smokenode/types"
	"smokenode/x/logx"
)

// Emulator plays the co-processor end of the link for the host simulator
// and tests. It walks the same signal sequence a real stack produces.
type Emulator struct {
	// Commissioned selects a Reboot signal instead of FirstStart.
	Commissioned bool
	// InitStatus is the status carried by FirstStart/Reboot.
	InitStatus int32
	// SteeringFailures is how many steering attempts fail before one joins.
	SteeringFailures int
	Network          types.NetworkInfo
	Log              logx.Logger

	rd *frameReader
	wr *frameWriter

	mu          sync.Mutex
	reg         registration
	commissions []types.CommissionMode
	alarms      []types.AlarmReport
	attrs       []types.AttributeReport
}

func NewEmulator(rw io.ReadWriter) *Emulator {
	return &Emulator{
		rd:      newFrameReader(rw),
		wr:      newFrameWriter(rw),
		Network: types.NetworkInfo{ExtPANID: 0x00124B0001A2B3C4, PANID: 0x1A62, Channel: 15},
	}
}

// Serve handles host frames until the link closes or ctx ends.
func (e *Emulator) Serve(ctx context.Context) error {
	log := logx.Or(e.Log)
	frames := make(chan Frame)
	errCh := make(chan error, 1)
	go func() {
		for {
			f, err := e.rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case f := <-frames:
			if f.Type == frameClose {
				return nil
			}
			if err := e.handle(f); err != nil {
				log.Warn("emulator: frame rejected", "type", f.Type, "err", err)
			}
		}
	}
}

func (e *Emulator) handle(f Frame) error {
	switch f.Type {
	case framePing:
		return e.wr.WriteFrame(Frame{Type: framePong, Payload: f.Payload})
	case frameRegister:
		r, err := decodeRegister(f.Payload)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.reg = r
		e.mu.Unlock()
	case frameStart:
		return e.signal(types.SignalSkipStartup, 0)
	case frameCommission:
		m, err := decodeMode(f.Payload)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.commissions = append(e.commissions, m)
		e.mu.Unlock()
		return e.commission(m)
	case frameZoneStatus:
		r, err := decodeZoneStatus(f.Payload)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.alarms = append(e.alarms, r)
		e.mu.Unlock()
	case frameAttr:
		a, err := decodeAttr(f.Payload)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.attrs = append(e.attrs, a)
		e.mu.Unlock()
	}
	return nil
}

func (e *Emulator) commission(m types.CommissionMode) error {
	switch m {
	case types.CommissionInit:
		kind := types.SignalFirstStart
		if e.Commissioned {
			kind = types.SignalReboot
		}
		return e.signal(kind, e.InitStatus)
	case types.CommissionSteering:
		e.mu.Lock()
		fail := e.SteeringFailures > 0
		if fail {
			e.SteeringFailures--
		}
		e.mu.Unlock()
		if fail {
			return e.signal(types.SignalSteering, -1)
		}
		if err := e.wr.WriteFrame(Frame{Type: frameNetwork, Payload: encodeNetwork(e.Network)}); err != nil {
			return err
		}
		return e.signal(types.SignalSteering, 0)
	}
	return nil
}

func (e *Emulator) signal(kind types.SignalKind, status int32) error {
	return e.wr.WriteFrame(Frame{Type: frameSignal, Payload: encodeSignal(types.NetSignal{Kind: kind, Status: status})})
}

// Registered returns what the host registered.
func (e *Emulator) Registered() (ep uint8, mask uint32, id types.DeviceIdentity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.Endpoint, e.reg.Mask, e.reg.Identity
}

func (e *Emulator) Commissions() []types.CommissionMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.CommissionMode(nil), e.commissions...)
}

func (e *Emulator) Alarms() []types.AlarmReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.AlarmReport(nil), e.alarms...)
}

func (e *Emulator) Attributes() []types.AttributeReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.AttributeReport(nil), e.attrs...)
}
