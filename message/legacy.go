package message

// This file holds the message shapes that only ever exist below Current:
// they are produced by Upgrade and consumed by Downgrade (see translate.go)
// and never appear as the canonical, current-spec representation of a
// command.

// V0SingleMotorVibrateCmd is the v0 vibration command: Speed in [0.0,1.0],
// applied uniformly across every Vibrate feature on the device (§4.1,
// §8 scenario 3).
type V0SingleMotorVibrateCmd struct {
	base
	DeviceIndex uint32
	Speed       float64
}

func (*V0SingleMotorVibrateCmd) messageName() string { return "SingleMotorVibrateCmd" }

// V2VibrateSubcommand is one element of a v2 VibrateCmd.
type V2VibrateSubcommand struct {
	Index uint32
	Speed float64
}

// V2VibrateCmd is the v1-v3 multi-motor vibration command: one Speed per
// addressed feature index, still expressed as a [0.0,1.0] float.
type V2VibrateCmd struct {
	base
	DeviceIndex uint32
	Speeds      []V2VibrateSubcommand
}

func (*V2VibrateCmd) messageName() string { return "VibrateCmd" }

// V2BatteryLevelCmd requests a v2-style battery reading.
type V2BatteryLevelCmd struct {
	base
	DeviceIndex uint32
}

func (*V2BatteryLevelCmd) messageName() string { return "BatteryLevelCmd" }

// V2BatteryLevelReading answers a V2BatteryLevelCmd with a [0.0,1.0] level.
type V2BatteryLevelReading struct {
	base
	DeviceIndex  uint32
	BatteryLevel float64
}

func (*V2BatteryLevelReading) messageName() string { return "BatteryLevelReading" }

// V2RSSILevelCmd requests a v2-style RSSI reading.
type V2RSSILevelCmd struct {
	base
	DeviceIndex uint32
}

func (*V2RSSILevelCmd) messageName() string { return "RSSILevelCmd" }

// V2RSSILevelReading answers a V2RSSILevelCmd with a raw dBm value.
type V2RSSILevelReading struct {
	base
	DeviceIndex uint32
	RSSILevel   int32
}

func (*V2RSSILevelReading) messageName() string { return "RSSILevelReading" }

// V1DeviceListEntry is the v1/v0 device summary: just a name and index, no
// feature list (older clients learn capabilities from a fixed set of
// per-device-type commands instead of from feature maps).
type V1DeviceListEntry struct {
	DeviceName  string
	DeviceIndex uint32
}

// V1DeviceList is the v0/v1 device list shape.
type V1DeviceList struct {
	base
	Devices []V1DeviceListEntry
}

func (*V1DeviceList) messageName() string { return "DeviceList" }

// V1DeviceAdded is the v0/v1 single-device-added event, produced by
// Downgrade from a DeviceAdded event.
type V1DeviceAdded struct {
	base
	V1DeviceListEntry
}

func (*V1DeviceAdded) messageName() string { return "DeviceAdded" }
