package message

// OutputSubcommand is one element of an OutputCmd: a step value addressed at
// a single feature. Clockwise is only meaningful for OutputRotateWithDirection.
type OutputSubcommand struct {
	FeatureIndex uint32
	OutputType   OutputType
	StepValue    uint32
	// Clockwise is only read when OutputType == OutputRotateWithDirection.
	Clockwise *bool `json:",omitempty"`
	// DurationMs is only read when OutputType == OutputPositionWithDuration.
	DurationMs *uint32 `json:",omitempty"`
}

// OutputCmd carries one or more subcommands for a single device. Per §4.1,
// subcommands are sorted by FeatureIndex before dispatch so device writes
// are deterministic.
type OutputCmd struct {
	base
	DeviceIndex uint32
	Subcommands []OutputSubcommand
}

func (*OutputCmd) messageName() string { return "OutputCmd" }

// InputCmd issues a Read, Subscribe, or Unsubscribe against one feature's
// input. Read is a request/response; Subscribe/Unsubscribe just toggle
// whether InputReading events are later pushed for this feature.
type InputCmd struct {
	base
	DeviceIndex  uint32
	FeatureIndex uint32
	InputType    InputType
	Command      InputCommandType
}

func (*InputCmd) messageName() string { return "InputCmd" }

// StopDeviceCmd requests a single device stop all its outputs. A device
// with zero features accepts this as a no-op (§8 boundary).
type StopDeviceCmd struct {
	base
	DeviceIndex uint32
}

func (*StopDeviceCmd) messageName() string { return "StopDeviceCmd" }

// StopAllDevices requests every connected device stop all its outputs. Also
// issued internally by the session on ping-watchdog expiry.
type StopAllDevices struct{ base }

func (*StopAllDevices) messageName() string { return "StopAllDevices" }

// InputReading is a sensor result: either the response to an InputCmd{Read}
// request, or a server event (Id=0) pushed from an active Subscribe.
type InputReading struct {
	base
	DeviceIndex  uint32
	FeatureIndex uint32
	InputType    InputType
	Data         []int32
}

func (*InputReading) messageName() string { return "InputReading" }

// RawWriteCmd writes directly to a named endpoint, bypassing feature
// translation. The session has no handler for it: in the Connected state it
// is answered with an UnexpectedMessageType error whatever
// allow_raw_messages says.
type RawWriteCmd struct {
	base
	DeviceIndex     uint32
	Endpoint        string
	Data            []byte
	WriteWithResponse bool
}

func (*RawWriteCmd) messageName() string { return "RawWriteCmd" }

// RawReadCmd reads directly from a named endpoint, bypassing feature
// translation; the session answers it the same way as RawWriteCmd.
type RawReadCmd struct {
	base
	DeviceIndex uint32
	Endpoint    string
	ExpectedLength uint32
	TimeoutMs      uint32
}

func (*RawReadCmd) messageName() string { return "RawReadCmd" }

// RawReading answers a RawReadCmd.
type RawReading struct {
	base
	DeviceIndex uint32
	Endpoint    string
	Data        []byte
}

func (*RawReading) messageName() string { return "RawReading" }
