//go:build !(rp2040 || rp2350)

package bridge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"smokenode/errcode"
	"smokenode/services/report"
	"smokenode/types"
	"smokenode/x/logx"
	"smokenode/x/strconvx"
	"smokenode/x/strx"
	"smokenode/x/timex"
)

type mqttTransport struct {
	cfg types.MQTTConfig
	log logx.Logger
}

func newMQTTTransport(cfg types.MQTTConfig, log logx.Logger) (Transport, error) {
	if cfg.Broker == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "bridge.mqtt", Msg: "broker required"}
	}
	if cfg.QoS > 2 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "bridge.mqtt", Msg: "qos out of range"}
	}
	cfg.Prefix = strx.Coalesce(cfg.Prefix, "smokenode")
	return &mqttTransport{cfg: cfg, log: logx.Or(log)}, nil
}

func (t *mqttTransport) String() string { return "mqtt" }

// Open connects a fresh client. Reconnection is left to the bridge's
// backoff loop, so paho's own auto-reconnect stays off.
func (t *mqttTransport) Open(ctx context.Context) (Uplink, error) {
	up := &MQTTUplink{Prefix: t.cfg.Prefix, QoS: t.cfg.QoS, done: make(chan struct{})}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.cfg.ClientID)
	opts.SetUsername(t.cfg.Username)
	opts.SetPassword(t.cfg.Password)
	opts.SetAutoReconnect(false)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.log.Warn("mqtt connection lost", "err", err)
		up.lost(err)
	})

	c := mqtt.NewClient(opts)
	if err := waitToken(ctx, c.Connect()); err != nil {
		return nil, errcode.Wrap(errcode.LinkDown, "bridge.mqtt.connect", err)
	}
	up.client = c
	return up, nil
}

// mqttPublisher is the part of mqtt.Client the uplink needs.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// MQTTUplink publishes reports as JSON under <prefix>/<ep>/...
type MQTTUplink struct {
	Prefix string
	QoS    byte

	client mqttPublisher

	mu      sync.Mutex
	pending []mqtt.Token
	err     error
	done    chan struct{}
	once    sync.Once
}

type alarmJSON struct {
	Endpoint   uint8  `json:"ep"`
	Active     bool   `json:"active"`
	ZoneStatus uint16 `json:"zone_status"`
	TS         int64  `json:"ts_ms"`
}

type attrJSON struct {
	Endpoint uint8  `json:"ep"`
	Cluster  uint16 `json:"cluster"`
	Attr     uint16 `json:"attr"`
	Value    string `json:"value"` // hex
	TS       int64  `json:"ts_ms"`
}

func (u *MQTTUplink) SendAlarm(ep uint8, active bool) {
	r := types.AlarmReport{Endpoint: ep, Active: active}
	p := alarmJSON{Endpoint: ep, Active: active, ZoneStatus: r.ZoneStatus(), TS: timex.NowMs()}
	u.publish(u.Prefix+"/"+strconvx.Itoa(int(ep))+"/"+report.KindAlarm, p)
}

func (u *MQTTUplink) ReportAttribute(ep uint8, cluster, attr uint16, value []byte) {
	topic := u.Prefix + "/" + strconvx.Itoa(int(ep)) + "/" + report.KindAttr + "/" +
		strconvx.Itoa(int(cluster)) + "/" + strconvx.Itoa(int(attr))
	p := attrJSON{Endpoint: ep, Cluster: cluster, Attr: attr, Value: hex.EncodeToString(value), TS: timex.NowMs()}
	u.publish(topic, p)
}

func (u *MQTTUplink) publish(topic string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	tok := u.client.Publish(topic, u.QoS, false, b)
	u.mu.Lock()
	u.pending = append(u.pending, tok)
	u.mu.Unlock()
}

// Flush waits for every publish token issued so far.
func (u *MQTTUplink) Flush(ctx context.Context) error {
	u.mu.Lock()
	toks := u.pending
	u.pending = nil
	u.mu.Unlock()
	for _, tok := range toks {
		if err := waitToken(ctx, tok); err != nil {
			return errcode.Wrap(errcode.Timeout, "bridge.mqtt.flush", err)
		}
	}
	return nil
}

func (u *MQTTUplink) Done() <-chan struct{} { return u.done }

func (u *MQTTUplink) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

func (u *MQTTUplink) lost(err error) {
	u.once.Do(func() {
		u.mu.Lock()
		u.err = err
		u.mu.Unlock()
		close(u.done)
	})
}

func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
