package message

import (
	"github.com/google/uuid"
	"github.com/xmidt-org/teleop/internal/teleoperr"
)

// FeatureType enumerates the kinds of actuator/sensor a DeviceFeature can be.
type FeatureType string

const (
	Vibrate              FeatureType = "Vibrate"
	Rotate               FeatureType = "Rotate"
	Oscillate            FeatureType = "Oscillate"
	Constrict            FeatureType = "Constrict"
	Position             FeatureType = "Position"
	PositionWithDuration FeatureType = "PositionWithDuration"
	Battery              FeatureType = "Battery"
	RSSI                 FeatureType = "RSSI"
	Button               FeatureType = "Button"
	Pressure             FeatureType = "Pressure"
	Raw                  FeatureType = "Raw"
)

// OutputType enumerates the writable sub-commands a feature's OutputMap can
// declare. Most feature types have exactly one matching OutputType, but a
// single feature can expose more than one (e.g. Rotate + RotateWithDirection).
type OutputType string

const (
	OutputVibrate              OutputType = "Vibrate"
	OutputRotate               OutputType = "Rotate"
	OutputRotateWithDirection  OutputType = "RotateWithDirection"
	OutputOscillate            OutputType = "Oscillate"
	OutputConstrict            OutputType = "Constrict"
	OutputSpray                OutputType = "Spray"
	OutputPosition             OutputType = "Position"
	OutputPositionWithDuration OutputType = "PositionWithDuration"
	OutputRaw                  OutputType = "Raw"
)

// InputType enumerates the readable/subscribable sub-commands an InputMap
// can declare.
type InputType string

const (
	InputBattery InputType = "Battery"
	InputRSSI    InputType = "RSSI"
	InputButton  InputType = "Button"
	InputPressure InputType = "Pressure"
	InputRaw     InputType = "Raw"
)

// InputCommandType is one of the operations a client may issue against an
// InputMap entry.
type InputCommandType string

const (
	Read        InputCommandType = "Read"
	Subscribe   InputCommandType = "Subscribe"
	Unsubscribe InputCommandType = "Unsubscribe"
)

// StepRange is an inclusive [Start,End] bound on the integer step domain of
// an output. Both StepRange and StepLimit (see OutputFeature) must be
// non-empty, and StepLimit must nest inside StepRange (§3 invariant).
type StepRange [2]uint32

func (r StepRange) Start() uint32 { return r[0] }
func (r StepRange) End() uint32   { return r[1] }
func (r StepRange) empty() bool   { return r[0] > r[1] }

// OutputFeature is one entry of a DeviceFeature's output map.
type OutputFeature struct {
	StepRange StepRange
	StepLimit StepRange
}

// Validate enforces step_range.start <= step_limit.start <= step_limit.end <= step_range.end,
// and that both ranges are non-empty.
func (o OutputFeature) Validate() error {
	if o.StepRange.empty() || o.StepLimit.empty() {
		return teleoperr.New(teleoperr.Device, teleoperr.DeviceStepRangeError, "step range or step limit is empty")
	}
	if !(o.StepRange.Start() <= o.StepLimit.Start() &&
		o.StepLimit.Start() <= o.StepLimit.End() &&
		o.StepLimit.End() <= o.StepRange.End()) {
		return teleoperr.New(teleoperr.Device, teleoperr.DeviceStepRangeError, "step limit is not nested inside step range")
	}
	return nil
}

// InputFeature is one entry of a DeviceFeature's input map.
type InputFeature struct {
	// ValueRange holds one [min,max] pair per reported dimension (most
	// sensors report one dimension; multi-axis sensors report more).
	ValueRange []StepRangeSigned
	Commands   map[InputCommandType]struct{}
}

// StepRangeSigned is the signed equivalent of StepRange, used for sensor
// value ranges which may be negative (e.g. RSSI in dBm).
type StepRangeSigned [2]int32

// HasCommand reports whether cmd is declared for this input.
func (in InputFeature) HasCommand(cmd InputCommandType) bool {
	_, ok := in.Commands[cmd]
	return ok
}

// DeviceFeature is one controllable axis or sensor on a device. FeatureIndex
// is its stable position in the device's feature list; UUID persists across
// reconnections once allocated (see deviceconfig).
type DeviceFeature struct {
	FeatureIndex    uint32
	Description     string
	FeatureType     FeatureType
	Output          map[OutputType]OutputFeature `json:",omitempty"`
	Input           map[InputType]InputFeature   `json:",omitempty"`
	UUID            uuid.UUID
	// AltProtocolIndex is an optional numeric hint a handler may use to pick
	// among subcommand encodings for this feature (§9 open question). Only
	// handlers that opt in ever read it.
	AltProtocolIndex *int `json:",omitempty"`
}

// IsWritable reports whether the feature declares any output.
func (f DeviceFeature) IsWritable() bool { return len(f.Output) > 0 }

// Validate runs OutputFeature.Validate over every declared output.
func (f DeviceFeature) Validate() error {
	for _, o := range f.Output {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	return nil
}
