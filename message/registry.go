package message

// Constructor returns a fresh, zero-valued instance of one message type.
type Constructor func() Message

// Registry maps a wire-level message name to the Go type that name decodes
// to for one SpecVersion. The same wire name can mean different shapes at
// different versions (DeviceList/DeviceAdded most notably), so there is one
// Registry per version rather than one global map.
type Registry map[string]Constructor

// currentRegistry holds every Current-spec message type.
func currentRegistry() Registry {
	return Registry{
		"Ok":                func() Message { return new(Ok) },
		"Error":             func() Message { return new(Error) },
		"RequestServerInfo": func() Message { return new(RequestServerInfo) },
		"ServerInfo":        func() Message { return new(ServerInfo) },
		"Ping":              func() Message { return new(Ping) },
		"StartScanning":     func() Message { return new(StartScanning) },
		"StopScanning":      func() Message { return new(StopScanning) },
		"ScanningFinished":  func() Message { return new(ScanningFinished) },
		"RequestDeviceList": func() Message { return new(RequestDeviceList) },
		"DeviceList":        func() Message { return new(DeviceList) },
		"DeviceAdded":       func() Message { return new(DeviceAdded) },
		"DeviceRemoved":     func() Message { return new(DeviceRemoved) },
		"OutputCmd":         func() Message { return new(OutputCmd) },
		"InputCmd":          func() Message { return new(InputCmd) },
		"StopDeviceCmd":     func() Message { return new(StopDeviceCmd) },
		"StopAllDevices":    func() Message { return new(StopAllDevices) },
		"InputReading":      func() Message { return new(InputReading) },
		"RawWriteCmd":       func() Message { return new(RawWriteCmd) },
		"RawReadCmd":        func() Message { return new(RawReadCmd) },
		"RawReading":        func() Message { return new(RawReading) },
	}
}

// legacyRegistry holds the message shapes that diverge at versions below
// Current, layered over a copy of the common ones (session/status/scanning
// messages are shape-stable across every version).
func legacyRegistry(v SpecVersion) Registry {
	r := Registry{
		"Ok":                func() Message { return new(Ok) },
		"Error":             func() Message { return new(Error) },
		"RequestServerInfo": func() Message { return new(RequestServerInfo) },
		"ServerInfo":        func() Message { return new(ServerInfo) },
		"Ping":              func() Message { return new(Ping) },
		"StartScanning":     func() Message { return new(StartScanning) },
		"StopScanning":      func() Message { return new(StopScanning) },
		"ScanningFinished":  func() Message { return new(ScanningFinished) },
		"RequestDeviceList": func() Message { return new(RequestDeviceList) },
		"StopDeviceCmd":     func() Message { return new(StopDeviceCmd) },
		"StopAllDevices":    func() Message { return new(StopAllDevices) },
	}

	switch v {
	case V0:
		r["SingleMotorVibrateCmd"] = func() Message { return new(V0SingleMotorVibrateCmd) }
		r["DeviceList"] = func() Message { return new(V1DeviceList) }
		r["DeviceAdded"] = func() Message { return new(V1DeviceAdded) }
		r["DeviceRemoved"] = func() Message { return new(DeviceRemoved) }
	case V1:
		r["VibrateCmd"] = func() Message { return new(V2VibrateCmd) }
		r["DeviceList"] = func() Message { return new(V1DeviceList) }
		r["DeviceAdded"] = func() Message { return new(V1DeviceAdded) }
		r["DeviceRemoved"] = func() Message { return new(DeviceRemoved) }
	case V2, V3:
		r["VibrateCmd"] = func() Message { return new(V2VibrateCmd) }
		r["BatteryLevelCmd"] = func() Message { return new(V2BatteryLevelCmd) }
		r["BatteryLevelReading"] = func() Message { return new(V2BatteryLevelReading) }
		r["RSSILevelCmd"] = func() Message { return new(V2RSSILevelCmd) }
		r["RSSILevelReading"] = func() Message { return new(V2RSSILevelReading) }
		r["DeviceList"] = func() Message { return new(DeviceList) }
		r["DeviceAdded"] = func() Message { return new(DeviceAdded) }
		r["DeviceRemoved"] = func() Message { return new(DeviceRemoved) }
		r["InputReading"] = func() Message { return new(InputReading) }
	}
	return r
}

// RegistryFor returns the decode registry for a given negotiated version.
func RegistryFor(v SpecVersion) Registry {
	if v == Current {
		return currentRegistry()
	}
	return legacyRegistry(v)
}
