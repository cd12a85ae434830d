// Package protocol encapsulates per-device-family translation from
// semantic commands to raw hardware writes, grounded on
// original_source/buttplug/src/device/protocol's ButtplugProtocol /
// ButtplugProtocolCommandHandler traits (see kiiroo_v21_initialized.rs and
// patoo.rs).
package protocol

import (
	"context"

	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/internal/teleoperr"
	"github.com/xmidt-org/teleop/message"
)

// HardwareCommand is one action a Handler wants executed against the
// device's Hardware, in order.
type HardwareCommand struct {
	Endpoint     hardware.Endpoint
	Data         []byte
	WithResponse bool
	// Subscribe/Unsubscribe, when set, take precedence over Data — a
	// handler asking to subscribe doesn't also write.
	Subscribe   bool
	Unsubscribe bool
}

// KeepaliveStrategy names how the device manager should keep a device's
// last command alive between client traffic.
type KeepaliveStrategy int

const (
	// KeepaliveNone means the handler needs no keep-alive traffic.
	KeepaliveNone KeepaliveStrategy = iota
	// KeepaliveRepeatLastPacket re-sends whatever HardwareCommands were
	// last issued for a real command.
	KeepaliveRepeatLastPacket
	// KeepaliveRepeatFixedPacket names a protocol-specific fixed ping packet
	// strategy. Handler has no method that supplies such a packet, and the
	// device manager's keep-alive sends nothing for this strategy.
	KeepaliveRepeatFixedPacket
)

// notSupported is returned by every Handler default method; a concrete
// handler overrides only the operations its device family understands.
func notSupported(op string) error {
	return teleoperr.New(teleoperr.Device, teleoperr.MessageNotSupported, op+" not supported by this protocol")
}

// Handler is the per-device-family translation contract. Base embeds a
// zero-value Handler so concrete protocols only implement the operations
// they need; every other method inherits Base's MessageNotSupported
// default.
type Handler interface {
	HandleOutputVibrateCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error)
	HandleOutputRotateCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error)
	HandleOutputRotateWithDirectionCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32, clockwise bool) ([]HardwareCommand, error)
	HandleOutputOscillateCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error)
	HandleOutputConstrictCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error)
	HandleOutputSprayCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error)
	HandleOutputPositionCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error)
	HandlePositionWithDurationCmd(ctx context.Context, featureIndex uint32, featureID string, positionStep uint32, durationMs uint32) ([]HardwareCommand, error)
	HandleInputReadCmd(ctx context.Context, featureIndex uint32, featureID string, inputType message.InputType) (message.InputReading, error)
	HandleInputSubscribeCmd(ctx context.Context, featureIndex uint32, featureID string, inputType message.InputType) ([]HardwareCommand, error)
	HandleInputUnsubscribeCmd(ctx context.Context, featureIndex uint32, featureID string, inputType message.InputType) ([]HardwareCommand, error)
	KeepaliveStrategy() KeepaliveStrategy
}

// Base implements Handler with every operation returning
// MessageNotSupported; embed it in a concrete protocol and override only
// what's needed.
type Base struct{}

func (Base) HandleOutputVibrateCmd(context.Context, uint32, string, uint32) ([]HardwareCommand, error) {
	return nil, notSupported("handle_output_vibrate_cmd")
}

func (Base) HandleOutputRotateCmd(context.Context, uint32, string, uint32) ([]HardwareCommand, error) {
	return nil, notSupported("handle_output_rotate_cmd")
}

func (Base) HandleOutputRotateWithDirectionCmd(context.Context, uint32, string, uint32, bool) ([]HardwareCommand, error) {
	return nil, notSupported("handle_output_rotate_with_direction_cmd")
}

func (Base) HandleOutputOscillateCmd(context.Context, uint32, string, uint32) ([]HardwareCommand, error) {
	return nil, notSupported("handle_output_oscillate_cmd")
}

func (Base) HandleOutputConstrictCmd(context.Context, uint32, string, uint32) ([]HardwareCommand, error) {
	return nil, notSupported("handle_output_constrict_cmd")
}

func (Base) HandleOutputSprayCmd(context.Context, uint32, string, uint32) ([]HardwareCommand, error) {
	return nil, notSupported("handle_output_spray_cmd")
}

func (Base) HandleOutputPositionCmd(context.Context, uint32, string, uint32) ([]HardwareCommand, error) {
	return nil, notSupported("handle_output_position_cmd")
}

func (Base) HandlePositionWithDurationCmd(context.Context, uint32, string, uint32, uint32) ([]HardwareCommand, error) {
	return nil, notSupported("handle_position_with_duration_cmd")
}

func (Base) HandleInputReadCmd(context.Context, uint32, string, message.InputType) (message.InputReading, error) {
	return message.InputReading{}, notSupported("handle_input_read_cmd")
}

func (Base) HandleInputSubscribeCmd(context.Context, uint32, string, message.InputType) ([]HardwareCommand, error) {
	return nil, notSupported("handle_input_subscribe_cmd")
}

func (Base) HandleInputUnsubscribeCmd(context.Context, uint32, string, message.InputType) ([]HardwareCommand, error) {
	return nil, notSupported("handle_input_unsubscribe_cmd")
}

func (Base) KeepaliveStrategy() KeepaliveStrategy { return KeepaliveNone }
