package protocol

import (
	"context"

	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/internal/teleoperr"
	"github.com/xmidt-org/teleop/message"
)

// GenericFactory builds a GenericHandler for device families that take a
// single raw step-value byte per writable feature with no handshake,
// grounded on patoo.rs's single-write-per-vibrate shape (without its
// two-motor mode-byte quirk, which no protocol in this package implements).
type GenericFactory struct {
	ProtocolName string
	Endpoint     hardware.Endpoint
}

func (f GenericFactory) Name() string { return f.ProtocolName }

func (f GenericFactory) Identify(ctx context.Context, hw *hardware.Hardware) (Identifier, error) {
	return Identifier{Protocol: f.ProtocolName}, nil
}

func (f GenericFactory) Initialize(ctx context.Context, hw *hardware.Hardware, features []message.DeviceFeature) (Handler, error) {
	return &GenericHandler{endpoint: f.Endpoint, manager: NewCommandManager(features)}, nil
}

// GenericHandler writes one byte per vibrate/rotate/oscillate/constrict
// command directly to a single endpoint, suppressing redundant writes via
// its CommandManager.
type GenericHandler struct {
	Base
	endpoint hardware.Endpoint
	manager  *CommandManager
}

func (h *GenericHandler) HandleOutputVibrateCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error) {
	return h.writeScalar(featureIndex, message.OutputVibrate, stepValue)
}

func (h *GenericHandler) HandleOutputRotateCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error) {
	return h.writeScalar(featureIndex, message.OutputRotate, stepValue)
}

func (h *GenericHandler) HandleOutputOscillateCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error) {
	return h.writeScalar(featureIndex, message.OutputOscillate, stepValue)
}

func (h *GenericHandler) HandleOutputConstrictCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error) {
	return h.writeScalar(featureIndex, message.OutputConstrict, stepValue)
}

func (h *GenericHandler) writeScalar(featureIndex uint32, outputType message.OutputType, stepValue uint32) ([]HardwareCommand, error) {
	if stepValue > 255 {
		return nil, teleoperr.New(teleoperr.Device, teleoperr.DeviceStepRangeError, "step value does not fit in a single byte")
	}
	if !h.manager.Update(featureIndex, outputType, stepValue, false) {
		return nil, nil
	}
	return []HardwareCommand{{Endpoint: h.endpoint, Data: []byte{byte(stepValue)}, WithResponse: false}}, nil
}
