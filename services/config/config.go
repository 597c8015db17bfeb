package config

import (
	"context"
	"encoding/json"
	"errors"

	"smokenode/bus"
	"smokenode/drivers/battadc"
	"smokenode/errcode"
	"smokenode/types"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

// Defaults returns the configuration of the deployed smoke node.
func Defaults() types.NodeConfig {
	return types.NodeConfig{
		Mode:     types.ModeSleepy,
		SmokePin: 12,
		Battery:  battadc.DefaultConfig(),
		Sleep:    types.SleepConfig{ShortS: 30, LongS: 21600, RetryS: 10, FlushMS: 3000, BatteryRefresh: 4},
		Debounce: types.DebounceConfig{PollMax: 200, PollDelayMS: 10},
		Watchdog: types.WatchdogConfig{BudgetMS: 5000},
		Zigbee: types.ZigbeeConfig{
			Endpoint:        types.EndpointSmoke,
			SteeringRetryMS: 1000,
			ChannelMask:     0x07FFF800,
		},
		Bridge:    types.BridgeConfig{Transport: "log"},
		Heartbeat: types.HeartbeatConfig{IntervalS: 60},
		Identity: types.DeviceIdentity{
			Manufacturer: "GammaTroniques",
			Model:        "Smoke Detector",
			DateCode:     "20230524",
			AppVersion:   1,
			HWVersion:    2,
		},
	}
}

// Decode overlays raw JSON on the defaults and validates the result.
func Decode(raw []byte) (types.NodeConfig, error) {
	cfg := Defaults()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, errcode.Wrap(errcode.InvalidParams, "config.decode", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load resolves and decodes the embedded config for device.
func Load(device string) (types.NodeConfig, error) {
	if device == "" {
		return types.NodeConfig{}, errors.New("missing device ID")
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return types.NodeConfig{}, errors.New("no embedded config for device: " + device)
	}
	return Decode(raw)
}

// Validate rejects settings the node cannot run with.
func Validate(c types.NodeConfig) error {
	bad := func(msg string) error {
		return &errcode.E{C: errcode.InvalidParams, Op: "config.validate", Msg: msg}
	}
	switch {
	case c.Mode != types.ModeSleepy && c.Mode != types.ModeAlwaysOn:
		return bad("mode must be sleepy or always_on")
	case c.SmokePin < 0 || c.SmokePin > 63:
		return bad("smoke_pin out of range")
	case c.Sleep.ShortS == 0 || c.Sleep.LongS == 0:
		return bad("sleep intervals must be non-zero")
	case c.Sleep.BatteryRefresh > types.MaxQuiet+1:
		return bad("sleep.battery_refresh too large")
	case c.Debounce.PollMax <= 0:
		return bad("debounce.poll_max must be positive")
	case c.Debounce.PollDelayMS < 0 || c.Sleep.FlushMS < 0:
		return bad("negative delay")
	case c.Battery.FullVolts <= c.Battery.EmptyVolts:
		return bad("battery band is empty")
	case c.Battery.Coef == 0:
		return bad("battery.coef must be non-zero")
	case c.Battery.MaxReads <= 0:
		return bad("battery.max_reads must be positive")
	}
	switch c.Bridge.Transport {
	case "log":
	case "ncp":
		if c.Bridge.UART == nil {
			return bad("ncp transport requires bridge.uart")
		}
	case "mqtt":
		if c.Bridge.MQTT == nil || c.Bridge.MQTT.Broker == "" {
			return bad("mqtt transport requires bridge.mqtt.broker")
		}
	default:
		return bad("unknown bridge transport " + c.Bridge.Transport)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// Publish puts every section of cfg on "config/<key>" as a retained message.
func Publish(conn *bus.Connection, cfg types.NodeConfig) {
	sections := []struct {
		key string
		val any
	}{
		{"mode", cfg.Mode},
		{"smoke_pin", cfg.SmokePin},
		{"battery", cfg.Battery},
		{"sleep", cfg.Sleep},
		{"debounce", cfg.Debounce},
		{"watchdog", cfg.Watchdog},
		{"zigbee", cfg.Zigbee},
		{"bridge", cfg.Bridge},
		{"identity", cfg.Identity},
		{"heartbeat", cfg.Heartbeat},
	}
	for _, s := range sections {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, s.key), s.val, true))
	}
}

// publishConfig reads the device config from embedded data and publishes it as retained messages.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) (types.NodeConfig, error) {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	cfg, err := Load(device)
	if err != nil {
		return cfg, err
	}
	Publish(conn, cfg)
	return cfg, nil
}

// Start loads and publishes the config for the device named in ctx. Unlike
// long-running services it completes synchronously: everything else depends
// on the result.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) (types.NodeConfig, error) {
	return s.publishConfig(ctx, conn)
}
