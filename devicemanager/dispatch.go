package devicemanager

import (
	"context"

	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/internal/teleoperr"
	"github.com/xmidt-org/teleop/message"
	"github.com/xmidt-org/teleop/protocol"
)

// runCommands executes cmds against hw in order, per §4.6 ("returns
// Vec<HardwareCommand> ... to be executed in order").
func runCommands(ctx context.Context, hw *hardware.Hardware, cmds []protocol.HardwareCommand) error {
	for _, cmd := range cmds {
		switch {
		case cmd.Subscribe:
			if err := hw.Subscribe(ctx, cmd.Endpoint); err != nil {
				return err
			}
		case cmd.Unsubscribe:
			if err := hw.Unsubscribe(ctx, cmd.Endpoint); err != nil {
				return err
			}
		default:
			if err := hw.WriteValue(ctx, cmd.Endpoint, cmd.Data, cmd.WithResponse); err != nil {
				return err
			}
		}
	}
	return nil
}

func featureByIndex(features []message.DeviceFeature, index uint32) (message.DeviceFeature, error) {
	for _, f := range features {
		if f.FeatureIndex == index {
			return f, nil
		}
	}
	return message.DeviceFeature{}, teleoperr.NewFeatureIndexError(len(features), int(index))
}

// DispatchOutput translates and executes one OutputSubcommand against the
// device at deviceIndex, synchronized through its command gate.
func (m *Manager) DispatchOutput(ctx context.Context, deviceIndex uint32, sub message.OutputSubcommand) error {
	hw, handler, features, ok := m.Device(deviceIndex)
	if !ok {
		return teleoperr.New(teleoperr.Device, teleoperr.DeviceNotConnected, "no device at this index")
	}
	feature, err := featureByIndex(features, sub.FeatureIndex)
	if err != nil {
		return err
	}
	featureID := feature.UUID.String()

	result := make(chan error, 1)
	err = m.Submit(deviceIndex, func() {
		cmds, err := dispatchOutputType(ctx, handler, sub, featureID)
		if err != nil {
			result <- err
			return
		}
		if err := runCommands(ctx, hw, cmds); err != nil {
			result <- err
			return
		}
		m.mu.Lock()
		d := m.devices[deviceIndex]
		m.mu.Unlock()
		if d != nil && len(cmds) > 0 {
			d.recordLastCommand(cmds)
		}
		result <- nil
	})
	if err != nil {
		return err
	}
	return <-result
}

func dispatchOutputType(ctx context.Context, handler protocol.Handler, sub message.OutputSubcommand, featureID string) ([]protocol.HardwareCommand, error) {
	switch sub.OutputType {
	case message.OutputVibrate:
		return handler.HandleOutputVibrateCmd(ctx, sub.FeatureIndex, featureID, sub.StepValue)
	case message.OutputRotate:
		return handler.HandleOutputRotateCmd(ctx, sub.FeatureIndex, featureID, sub.StepValue)
	case message.OutputRotateWithDirection:
		clockwise := sub.Clockwise != nil && *sub.Clockwise
		return handler.HandleOutputRotateWithDirectionCmd(ctx, sub.FeatureIndex, featureID, sub.StepValue, clockwise)
	case message.OutputOscillate:
		return handler.HandleOutputOscillateCmd(ctx, sub.FeatureIndex, featureID, sub.StepValue)
	case message.OutputConstrict:
		return handler.HandleOutputConstrictCmd(ctx, sub.FeatureIndex, featureID, sub.StepValue)
	case message.OutputSpray:
		return handler.HandleOutputSprayCmd(ctx, sub.FeatureIndex, featureID, sub.StepValue)
	case message.OutputPosition:
		return handler.HandleOutputPositionCmd(ctx, sub.FeatureIndex, featureID, sub.StepValue)
	case message.OutputPositionWithDuration:
		durationMs := uint32(0)
		if sub.DurationMs != nil {
			durationMs = *sub.DurationMs
		}
		return handler.HandlePositionWithDurationCmd(ctx, sub.FeatureIndex, featureID, sub.StepValue, durationMs)
	default:
		return nil, teleoperr.New(teleoperr.Message, teleoperr.UnexpectedMessageType, "unknown output type")
	}
}

// DispatchInput issues InputCmd's Read/Subscribe/Unsubscribe against the
// device at deviceIndex.
func (m *Manager) DispatchInput(ctx context.Context, deviceIndex uint32, cmd message.InputCmd) (*message.InputReading, error) {
	hw, handler, features, ok := m.Device(deviceIndex)
	if !ok {
		return nil, teleoperr.New(teleoperr.Device, teleoperr.DeviceNotConnected, "no device at this index")
	}
	feature, err := featureByIndex(features, cmd.FeatureIndex)
	if err != nil {
		return nil, err
	}
	featureID := feature.UUID.String()

	type outcome struct {
		reading *message.InputReading
		err     error
	}
	result := make(chan outcome, 1)
	err = m.Submit(deviceIndex, func() {
		switch cmd.Command {
		case message.Read:
			reading, err := handler.HandleInputReadCmd(ctx, cmd.FeatureIndex, featureID, cmd.InputType)
			if err != nil {
				result <- outcome{err: err}
				return
			}
			result <- outcome{reading: &reading}
		case message.Subscribe:
			cmds, err := handler.HandleInputSubscribeCmd(ctx, cmd.FeatureIndex, featureID, cmd.InputType)
			if err != nil {
				result <- outcome{err: err}
				return
			}
			result <- outcome{err: runCommands(ctx, hw, cmds)}
		case message.Unsubscribe:
			cmds, err := handler.HandleInputUnsubscribeCmd(ctx, cmd.FeatureIndex, featureID, cmd.InputType)
			if err != nil {
				result <- outcome{err: err}
				return
			}
			result <- outcome{err: runCommands(ctx, hw, cmds)}
		default:
			result <- outcome{err: teleoperr.New(teleoperr.Message, teleoperr.UnexpectedMessageType, "unknown input command")}
		}
	})
	if err != nil {
		return nil, err
	}
	out := <-result
	return out.reading, out.err
}

// DispatchStopDevice issues value=0 through DispatchOutput for every output
// type of every feature of deviceIndex, stopping at the first error; it
// does not consult the handler's CommandManager stop set.
func (m *Manager) DispatchStopDevice(ctx context.Context, deviceIndex uint32) error {
	_, _, features, ok := m.Device(deviceIndex)
	if !ok {
		return teleoperr.New(teleoperr.Device, teleoperr.DeviceNotConnected, "no device at this index")
	}
	for _, f := range features {
		for outputType := range f.Output {
			err := m.DispatchOutput(ctx, deviceIndex, message.OutputSubcommand{
				FeatureIndex: f.FeatureIndex,
				OutputType:   outputType,
				StepValue:    0,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
