package bridge

import (
	"context"

	"smokenode/errcode"
	"smokenode/types"
	"smokenode/x/logx"
)

// Transport is a pluggable uplink owner. Open may be called again after the
// uplink it returned has died.
type Transport interface {
	Open(ctx context.Context) (Uplink, error)
	String() string
}

// staticTransport hands out an uplink that something else keeps alive.
type staticTransport struct {
	name string
	up   Uplink
}

func (s staticTransport) Open(context.Context) (Uplink, error) {
	if w, ok := s.up.(linkWatcher); ok {
		select {
		case <-w.Done():
			return nil, &errcode.E{C: errcode.LinkDown, Op: "bridge.open", Msg: s.name + " link closed", Err: w.Err()}
		default:
		}
	}
	return s.up, nil
}

func (s staticTransport) String() string { return s.name }

// NewTransport builds the transport named by cfg. The ncp uplink is the
// client the mesh service already runs over the coprocessor link.
func NewTransport(cfg types.BridgeConfig, ncp Uplink, log logx.Logger) (Transport, error) {
	switch cfg.Transport {
	case "ncp":
		if ncp == nil {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "bridge.transport", Msg: "ncp transport without a coprocessor link"}
		}
		return staticTransport{name: "ncp", up: ncp}, nil
	case "mqtt":
		if cfg.MQTT == nil {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "bridge.transport", Msg: "mqtt transport requires mqtt config"}
		}
		return newMQTTTransport(*cfg.MQTT, log)
	case "log", "":
		return staticTransport{name: "log", up: LogUplink{Log: log}}, nil
	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "bridge.transport", Msg: "unknown transport " + cfg.Transport}
	}
}
