package mesh

import "smokenode/types"

// Loopback is a stack that commissions instantly. Nodes whose reports leave
// through MQTT or the log use it in place of a radio.
type Loopback struct {
	sigs chan types.NetSignal
}

func NewLoopback() *Loopback {
	return &Loopback{sigs: make(chan types.NetSignal, 4)}
}

func (l *Loopback) Register(uint8, uint32, types.DeviceIdentity) error { return nil }

func (l *Loopback) Start() error {
	l.sigs <- types.NetSignal{Kind: types.SignalSkipStartup}
	return nil
}

func (l *Loopback) StartCommissioning(mode types.CommissionMode) error {
	switch mode {
	case types.CommissionInit:
		l.sigs <- types.NetSignal{Kind: types.SignalFirstStart}
	case types.CommissionSteering:
		l.sigs <- types.NetSignal{Kind: types.SignalSteering}
	}
	return nil
}

func (l *Loopback) Signals() <-chan types.NetSignal { return l.sigs }

func (l *Loopback) Network() types.NetworkInfo { return types.NetworkInfo{} }
