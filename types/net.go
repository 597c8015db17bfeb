package types

// SignalKind tags a network-stack lifecycle event.
type SignalKind uint8

const (
	SignalOther       SignalKind = iota
	SignalSkipStartup            // stack initialised, ready for commissioning
	SignalFirstStart             // BDB initialisation done on a factory-new device
	SignalReboot                 // BDB initialisation done on a commissioned device
	SignalSteering               // network steering finished
)

func (k SignalKind) String() string {
	switch k {
	case SignalSkipStartup:
		return "skip_startup"
	case SignalFirstStart:
		return "first_start"
	case SignalReboot:
		return "reboot"
	case SignalSteering:
		return "steering"
	default:
		return "other"
	}
}

// NetSignal is delivered by the stack on lifecycle events. Status is zero on
// success and the stack's error code otherwise.
type NetSignal struct {
	Kind   SignalKind `json:"kind"`
	Status int32      `json:"status"`
}

func (s NetSignal) OK() bool { return s.Status == 0 }

// CommissionMode selects a top-level commissioning step.
type CommissionMode uint8

const (
	CommissionInit     CommissionMode = 0x00
	CommissionSteering CommissionMode = 0x02
)

// NetworkInfo is reported once the node has joined.
type NetworkInfo struct {
	ExtPANID uint64 `json:"ext_pan_id"`
	PANID    uint16 `json:"pan_id"`
	Channel  uint8  `json:"channel"`
}
