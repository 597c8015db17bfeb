package types

// NodeConfig is the decoded per-device configuration published on "config/<key>".
type NodeConfig struct {
	Mode      string             `json:"mode"` // "sleepy" | "always_on"
	SmokePin  int                `json:"smoke_pin"`
	Battery   BatteryCalibration `json:"battery"`
	Sleep     SleepConfig        `json:"sleep"`
	Debounce  DebounceConfig     `json:"debounce"`
	Watchdog  WatchdogConfig     `json:"watchdog"`
	Zigbee    ZigbeeConfig       `json:"zigbee"`
	Bridge    BridgeConfig       `json:"bridge"`
	Identity  DeviceIdentity     `json:"identity"`
	Heartbeat HeartbeatConfig    `json:"heartbeat"`
}

const (
	ModeSleepy   = "sleepy"
	ModeAlwaysOn = "always_on"
)

type SleepConfig struct {
	ShortS  uint32 `json:"short_s"`  // smoke recheck window
	LongS   uint32 `json:"long_s"`   // battery update period
	RetryS  uint32 `json:"retry_s"`  // after a stack init failure
	FlushMS int    `json:"flush_ms"` // time given to outbound reports before sleep

	// BatteryRefresh reports an unchanged battery level on every Nth long
	// wake. Zero reports only changes.
	BatteryRefresh uint8 `json:"battery_refresh"`
}

type DebounceConfig struct {
	PollMax     int `json:"poll_max"`
	PollDelayMS int `json:"poll_delay_ms"`
}

type WatchdogConfig struct {
	BudgetMS int  `json:"budget_ms"`
	Disabled bool `json:"disabled,omitempty"`
}

type ZigbeeConfig struct {
	Endpoint        uint8  `json:"endpoint"`
	SteeringRetryMS int    `json:"steering_retry_ms"`
	ChannelMask     uint32 `json:"channel_mask"`
}

// HeartbeatConfig paces the liveness message of always-on nodes.
type HeartbeatConfig struct {
	IntervalS uint32 `json:"interval_s"`
}

// BridgeConfig selects the uplink transport for reports.
type BridgeConfig struct {
	Transport string      `json:"transport"` // "ncp" | "mqtt" | "log"
	UART      *UARTConfig `json:"uart,omitempty"`
	MQTT      *MQTTConfig `json:"mqtt,omitempty"`
}

type UARTConfig struct {
	ID    string `json:"id"` // "uart0" | "uart1"
	Baud  uint32 `json:"baud"`
	TxPin int    `json:"tx_pin"`
	RxPin int    `json:"rx_pin"`
}

type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Prefix   string `json:"prefix"`
	QoS      byte   `json:"qos"`
}
