package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device, overlaid on Defaults()
// -----------------------------------------------------------------------------

// Production node: RP2040 with the smoke line on GP12 and the battery divider
// on ADC0, reporting through a mesh co-processor on uart1.
const cfgSmokeRP2 = `{
  "mode": "sleepy",
  "smoke_pin": 12,
  "battery": {
    "raw_offset": 2145,
    "coef": 0.0111,
    "offset": -0.0925,
    "empty_v": 2.0,
    "full_v": 3.0,
    "max_reads": 10,
    "channel": 0
  },
  "sleep": { "short_s": 30, "long_s": 21600, "retry_s": 10, "flush_ms": 3000, "battery_refresh": 4 },
  "debounce": { "poll_max": 200, "poll_delay_ms": 10 },
  "watchdog": { "budget_ms": 5000 },
  "zigbee": { "endpoint": 10, "steering_retry_ms": 1000, "channel_mask": 134215680 },
  "bridge": {
    "transport": "ncp",
    "uart": { "id": "uart1", "baud": 115200, "tx_pin": 4, "rx_pin": 5 }
  }
}`

// Bench node: always on, earlier board revision calibration.
const cfgSmokeBench = `{
  "mode": "always_on",
  "smoke_pin": 8,
  "battery": { "raw_offset": 2240, "coef": 0.0104, "offset": 0.8259 },
  "sleep": { "short_s": 30, "long_s": 3600, "flush_ms": 200 },
  "watchdog": { "budget_ms": 5000, "disabled": true },
  "heartbeat": { "interval_s": 30 },
  "bridge": { "transport": "log" }
}`

// Host simulator: short intervals, reports to a local MQTT broker.
const cfgSmokeSim = `{
  "mode": "sleepy",
  "sleep": { "short_s": 2, "long_s": 6, "flush_ms": 50 },
  "debounce": { "poll_max": 20, "poll_delay_ms": 5 },
  "bridge": {
    "transport": "mqtt",
    "mqtt": { "broker": "tcp://127.0.0.1:1883", "client_id": "smoke-sim", "prefix": "smokenode", "qos": 1 }
  }
}`

var embeddedConfigs = map[string][]byte{
	"smoke-rp2":   []byte(cfgSmokeRP2),
	"smoke-bench": []byte(cfgSmokeBench),
	"smoke-sim":   []byte(cfgSmokeSim),
}
