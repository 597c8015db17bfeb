//go:build rp2040 || rp2350

package bridge

import (
	"smokenode/errcode"
	"smokenode/types"
	"smokenode/x/logx"
)

func newMQTTTransport(types.MQTTConfig, logx.Logger) (Transport, error) {
	return nil, &errcode.E{C: errcode.Unsupported, Op: "bridge.mqtt", Msg: "no IP stack on this board"}
}
