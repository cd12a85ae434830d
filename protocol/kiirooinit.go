package protocol

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/message"
)

// KiirooInitFactory is grounded directly on
// device/protocol/kiiroo_v21_initialized.rs's KiirooV21Initialized: a
// two-step magic-write handshake at connect time (100ms apart), then a
// two-byte vibrate write and a four-byte position+speed stroke write.
type KiirooInitFactory struct{}

func (KiirooInitFactory) Name() string { return "kiiroo-v21-initialized" }

func (KiirooInitFactory) Identify(ctx context.Context, hw *hardware.Hardware) (Identifier, error) {
	return Identifier{Protocol: "kiiroo-v21-initialized"}, nil
}

func (KiirooInitFactory) Initialize(ctx context.Context, hw *hardware.Hardware, features []message.DeviceFeature) (Handler, error) {
	err := RunMagicWrites(ctx, hw, []MagicWrite{
		{Endpoint: hardware.EndpointTx, Data: []byte{0x03, 0x00, 0x64, 0x19}, WithResponse: true, DelayAfter: 100 * time.Millisecond},
		{Endpoint: hardware.EndpointTx, Data: []byte{0x03, 0x00, 0x64, 0x00}, WithResponse: true},
	})
	if err != nil {
		return nil, err
	}
	return &KiirooInitHandler{manager: NewCommandManager(features)}, nil
}

// KiirooInitHandler translates VibrateCmd into a two-byte {0x01, step}
// write and the position+duration stroke command into a four-byte write.
type KiirooInitHandler struct {
	Base
	manager          *CommandManager
	previousPosition atomic.Uint32
}

func (h *KiirooInitHandler) HandleOutputVibrateCmd(ctx context.Context, featureIndex uint32, featureID string, stepValue uint32) ([]HardwareCommand, error) {
	if !h.manager.Update(featureIndex, message.OutputVibrate, stepValue, false) {
		return nil, nil
	}
	return []HardwareCommand{{Endpoint: hardware.EndpointTx, Data: []byte{0x01, byte(stepValue)}, WithResponse: false}}, nil
}

func (h *KiirooInitHandler) HandlePositionWithDurationCmd(ctx context.Context, featureIndex uint32, featureID string, positionStep uint32, durationMs uint32) ([]HardwareCommand, error) {
	prev := h.previousPosition.Load()
	var distance float64
	if positionStep > prev {
		distance = float64(positionStep-prev) / 99.0
	} else {
		distance = float64(prev-positionStep) / 99.0
	}
	speed := CalculateSpeed(distance, time.Duration(durationMs)*time.Millisecond)
	h.previousPosition.Store(positionStep)
	return []HardwareCommand{{
		Endpoint:     hardware.EndpointTx,
		Data:         []byte{0x03, 0x00, byte(speed * 99), byte(positionStep)},
		WithResponse: false,
	}}, nil
}
