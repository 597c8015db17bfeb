// config/config_test.go
package config

import (
	"context"
	"testing"
	"time"

	"smokenode/bus"
	"smokenode/errcode"
	"smokenode/types"
)

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "test-node" {
			return nil, false
		}
		return []byte(`{
			"sleep": {"short_s": 15, "long_s": 600},
			"watchdog": {"budget_ms": 4000}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "test-node")
	cfg, err := svc.Start(ctx, conn)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if cfg.Sleep.ShortS != 15 || cfg.Sleep.LongS != 600 {
		t.Fatalf("sleep = %+v", cfg.Sleep)
	}
	// Unset fields inside a present section keep their defaults.
	if cfg.Sleep.RetryS != 10 || cfg.Sleep.FlushMS != 3000 {
		t.Fatalf("sleep defaults lost: %+v", cfg.Sleep)
	}

	// Subscribe afterwards; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.T(configPrefix, "#"))
	got := map[string]any{}
	deadline := time.After(600 * time.Millisecond)
	for len(got) < 10 {
		select {
		case m := <-sub.Channel():
			if m.Topic.Len() != 2 || m.Topic.At(0) != configPrefix {
				t.Fatalf("unexpected topic %v", m.Topic)
			}
			key, ok := m.Topic.At(1).(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", m.Topic.At(1))
			}
			got[key] = m.Payload
		case <-deadline:
			t.Fatalf("got %d retained sections: %v", len(got), got)
		}
	}

	wd, ok := got["watchdog"].(types.WatchdogConfig)
	if !ok || wd.BudgetMS != 4000 {
		t.Fatalf("watchdog payload = %#v", got["watchdog"])
	}
	if mode, ok := got["mode"].(string); !ok || mode != types.ModeSleepy {
		t.Fatalf("mode payload = %#v", got["mode"])
	}
	if id, ok := got["identity"].(types.DeviceIdentity); !ok || id.Manufacturer != "GammaTroniques" {
		t.Fatalf("identity payload = %#v", got["identity"])
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService()

	if _, err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "unknown-device")
	if _, err := svc.publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}

func TestEmbeddedConfigsDecode(t *testing.T) {
	for dev := range embeddedConfigs {
		cfg, err := Load(dev)
		if err != nil {
			t.Fatalf("%s: %v", dev, err)
		}
		if cfg.Identity.Model != "Smoke Detector" {
			t.Fatalf("%s: identity = %+v", dev, cfg.Identity)
		}
	}

	rp2, _ := Load("smoke-rp2")
	if rp2.Bridge.UART == nil || rp2.Bridge.UART.ID != "uart1" || rp2.Zigbee.ChannelMask != 0x07FFF800 {
		t.Fatalf("smoke-rp2 = %+v", rp2)
	}
	bench, _ := Load("smoke-bench")
	if bench.Mode != types.ModeAlwaysOn || bench.Battery.RawOffset != 2240 || bench.Battery.MaxReads != 10 {
		t.Fatalf("smoke-bench = %+v", bench)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"mode":      `{"mode": "party"}`,
		"band":      `{"battery": {"empty_v": 3.0, "full_v": 2.0}}`,
		"poll":      `{"debounce": {"poll_max": 0}}`,
		"reads":     `{"battery": {"max_reads": 0}}`,
		"refresh":   `{"sleep": {"battery_refresh": 200}}`,
		"ncp":       `{"bridge": {"transport": "ncp"}}`,
		"mqtt":      `{"bridge": {"transport": "mqtt", "mqtt": {"broker": ""}}}`,
		"transport": `{"bridge": {"transport": "carrier-pigeon"}}`,
		"json":      `{"sleep": `,
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); errcode.Of(err) != errcode.InvalidParams {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
}

func TestZeroRawOffsetDecoded(t *testing.T) {
	cfg, err := Decode([]byte(`{"battery": {"raw_offset": 0, "offset": 0}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Battery.RawOffset != 0 || cfg.Battery.Offset != 0 || cfg.Battery.Coef != 0.0111 {
		t.Fatalf("battery = %+v", cfg.Battery)
	}
}
