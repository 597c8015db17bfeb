package types

// ZCL identifiers used by the smoke node.
const (
	EndpointSmoke uint8 = 10

	ClusterBasic       uint16 = 0x0000
	ClusterPowerConfig uint16 = 0x0001
	ClusterIASZone     uint16 = 0x0500

	AttrBatteryVoltage      uint16 = 0x0020
	AttrBatteryPctRemaining uint16 = 0x0021
	AttrIASZoneStatus       uint16 = 0x0002

	ZoneStatusAlarm1      uint16 = 1 << 0
	ZoneTypeFireSensor    uint16 = 0x0028
	ProfileHomeAutomation uint16 = 0x0104
	DeviceIASZone         uint16 = 0x0402
)

// AlarmReport is an IAS zone status change notification.
type AlarmReport struct {
	Endpoint uint8 `json:"ep"`
	Active   bool  `json:"active"`
}

// ZoneStatus returns the zone status bitmap carried by the notification.
func (r AlarmReport) ZoneStatus() uint16 {
	if r.Active {
		return ZoneStatusAlarm1
	}
	return 0
}

// AttributeReport pushes one attribute value.
type AttributeReport struct {
	Endpoint uint8  `json:"ep"`
	Cluster  uint16 `json:"cluster"`
	Attr     uint16 `json:"attr"`
	Value    []byte `json:"value"`
}

// DeviceIdentity is registered with the stack (Basic cluster).
type DeviceIdentity struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	DateCode     string `json:"date_code"`
	AppVersion   uint32 `json:"app_version"`
	HWVersion    uint32 `json:"hw_version"`
}
