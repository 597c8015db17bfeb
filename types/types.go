package types

// ---- Wake / sleep ----

// WakeCause is the hardware-reported reason the node resumed execution.
type WakeCause uint8

const (
	WakeColdBoot    WakeCause = iota // first boot, reset, brownout or anything unrecognised
	WakeExternalPin                  // smoke input edge
	WakeTimer                        // sleep timer expired
)

func (c WakeCause) String() string {
	switch c {
	case WakeExternalPin:
		return "external_pin"
	case WakeTimer:
		return "timer"
	default:
		return "cold_boot"
	}
}

// AlarmState is the only state carried across deep sleep.
type AlarmState struct {
	Active bool `json:"active"`
}

// SleepPlan is consumed by the sleep-arming call and then discarded.
type SleepPlan struct {
	Seconds uint32 `json:"seconds"`
	PinWake bool   `json:"pin_wake"`
}

// Retained is the state kept across deep sleep: the alarm flag, the last
// reported battery level in half-percent units and how many long wakes have
// passed without a battery report.
type Retained struct {
	AlarmActive bool
	LastBattery uint8
	Quiet       uint8 // at most MaxQuiet
}

// MaxQuiet is the largest Quiet count the retention region holds.
const MaxQuiet = 127

// DefaultRetained is what a node assumes after full power loss.
func DefaultRetained() Retained {
	return Retained{AlarmActive: false, LastBattery: 200}
}

// ---- Node state (retained on the bus) ----

// Link mirrors the network lifecycle for diagnostics.
type Link string

const (
	LinkDown     Link = "down"
	LinkSteering Link = "steering"
	LinkUp       Link = "up"
	LinkDegraded Link = "degraded"
)

// NodeState is published retained on "node/state" once per boot.
type NodeState struct {
	Boot    uint32    `json:"boot"`
	Cause   string    `json:"cause"`
	Alarm   bool      `json:"alarm"`
	Plan    SleepPlan `json:"plan"`
	Forced  bool      `json:"forced,omitempty"` // plan imposed by the sleep watchdog
	TS      int64     `json:"ts_ms"`
	Battery uint8     `json:"battery_half_pct"`
}

// Heartbeat is published on "node/heartbeat" by always-on nodes.
type Heartbeat struct {
	Seq       uint32 `json:"seq"`
	UptimeMS  int64  `json:"uptime_ms"`
	TS        int64  `json:"ts_ms"`
	BatteryMV int32  `json:"battery_mv,omitempty"`
}
