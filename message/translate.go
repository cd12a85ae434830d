package message

import (
	"sort"

	"github.com/xmidt-org/teleop/internal/teleoperr"
)

// FeatureLookup resolves a device's current feature list, as the manager
// sees it right now. Upgrades that need device knowledge (expanding a v0
// SingleMotorVibrateCmd across every Vibrate feature, for instance) call
// this rather than carrying their own copy of the feature list.
type FeatureLookup func(deviceIndex uint32) ([]DeviceFeature, bool)

// Upgrade is total: every accepted vN input either yields a Current message
// or a typed *teleoperr.Err (never a panic, never a silently-dropped
// message). from is the version the message was decoded at.
func Upgrade(msg Message, from SpecVersion, features FeatureLookup) (Message, error) {
	if from == Current {
		return msg, nil
	}

	switch m := msg.(type) {
	// Shape-stable across every version: nothing to do.
	case *RequestServerInfo, *Ping, *StartScanning, *StopScanning, *ScanningFinished,
		*RequestDeviceList, *StopDeviceCmd, *StopAllDevices, *Ok, *Error:
		return msg, nil

	case *V0SingleMotorVibrateCmd:
		feats, ok := features(m.DeviceIndex)
		if !ok {
			return nil, teleoperr.New(teleoperr.Device, teleoperr.DeviceFeatureMismatch, "unknown device index")
		}
		var subs []OutputSubcommand
		for _, f := range feats {
			if f.FeatureType != Vibrate {
				continue
			}
			limit, ok := f.Output[OutputVibrate]
			if !ok {
				continue
			}
			subs = append(subs, OutputSubcommand{
				FeatureIndex: f.FeatureIndex,
				OutputType:   OutputVibrate,
				StepValue:    PercentToStep(m.Speed, limit.StepLimit),
			})
		}
		if len(subs) == 0 {
			return nil, teleoperr.New(teleoperr.Device, teleoperr.DeviceFeatureMismatch, "device has no Vibrate feature")
		}
		sortSubcommands(subs)
		return &OutputCmd{base: base{Id: m.Id}, DeviceIndex: m.DeviceIndex, Subcommands: subs}, nil

	case *V2VibrateCmd:
		feats, ok := features(m.DeviceIndex)
		if !ok {
			return nil, teleoperr.New(teleoperr.Device, teleoperr.DeviceFeatureMismatch, "unknown device index")
		}
		subs := make([]OutputSubcommand, 0, len(m.Speeds))
		for _, s := range m.Speeds {
			f, err := findVibrateFeature(feats, s.Index)
			if err != nil {
				return nil, err
			}
			limit := f.Output[OutputVibrate]
			subs = append(subs, OutputSubcommand{
				FeatureIndex: f.FeatureIndex,
				OutputType:   OutputVibrate,
				StepValue:    PercentToStep(s.Speed, limit.StepLimit),
			})
		}
		sortSubcommands(subs)
		return &OutputCmd{base: base{Id: m.Id}, DeviceIndex: m.DeviceIndex, Subcommands: subs}, nil

	case *V2BatteryLevelCmd:
		return &InputCmd{base: base{Id: m.Id}, DeviceIndex: m.DeviceIndex, InputType: InputBattery, Command: Read}, nil

	case *V2RSSILevelCmd:
		return &InputCmd{base: base{Id: m.Id}, DeviceIndex: m.DeviceIndex, InputType: InputRSSI, Command: Read}, nil

	default:
		return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageConversionError, "no upgrade path for this message type")
	}
}

func findVibrateFeature(feats []DeviceFeature, index uint32) (DeviceFeature, error) {
	for _, f := range feats {
		if f.FeatureIndex == index && f.FeatureType == Vibrate {
			if _, ok := f.Output[OutputVibrate]; ok {
				return f, nil
			}
		}
	}
	return DeviceFeature{}, teleoperr.NewFeatureIndexError(len(feats), int(index))
}

func sortSubcommands(subs []OutputSubcommand) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].FeatureIndex < subs[j].FeatureIndex })
}

// Downgrade is total under the §4.1 condition: when a response's shape
// depends on what was requested, original carries that request. If msg has
// no representation at version to, Downgrade returns a *teleoperr.Err; the
// caller (session) turns that into a client Error message bearing the
// request's id when msg is a response, and logs and drops msg when it is a
// server event (id 0).
func Downgrade(msg Message, to SpecVersion, original Message) (Message, error) {
	if to == Current {
		return msg, nil
	}

	switch m := msg.(type) {
	case *Ok, *Error, *ServerInfo, *Ping, *ScanningFinished:
		return msg, nil

	case *DeviceList:
		if to >= V2 {
			return msg, nil
		}
		entries := make([]V1DeviceListEntry, len(m.Devices))
		for i, d := range m.Devices {
			entries[i] = V1DeviceListEntry{DeviceName: d.DeviceName, DeviceIndex: d.DeviceIndex}
		}
		return &V1DeviceList{base: base{Id: m.Id}, Devices: entries}, nil

	case *DeviceAdded:
		if to >= V2 {
			return msg, nil
		}
		return &V1DeviceAdded{base: base{Id: m.Id}, V1DeviceListEntry: V1DeviceListEntry{
			DeviceName: m.DeviceName, DeviceIndex: m.DeviceIndex,
		}}, nil

	case *DeviceRemoved:
		return msg, nil

	case *InputReading:
		switch orig := original.(type) {
		case *V2BatteryLevelCmd:
			var level float64
			if len(m.Data) > 0 {
				level = float64(m.Data[0]) / 100.0
			}
			return &V2BatteryLevelReading{base: base{Id: m.Id}, DeviceIndex: orig.DeviceIndex, BatteryLevel: level}, nil
		case *V2RSSILevelCmd:
			var rssi int32
			if len(m.Data) > 0 {
				rssi = m.Data[0]
			}
			return &V2RSSILevelReading{base: base{Id: m.Id}, DeviceIndex: orig.DeviceIndex, RSSILevel: rssi}, nil
		default:
			if to >= V2 {
				return msg, nil
			}
			return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageConversionError, "InputReading has no representation below v2 without a recognized original request")
		}

	case *OutputCmd:
		// OutputCmd is client->server only; the server never emits one as an
		// event, so there is nothing to downgrade here.
		return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageConversionError, "OutputCmd is client->server only; servers never downgrade it")

	default:
		return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageConversionError, "no downgrade path for this message type")
	}
}
