package protocol

import (
	"context"
	"crypto/aes"
	"strconv"
	"time"

	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/internal/teleoperr"
)

// MagicWrite is one step of an initialization handshake: a fixed payload
// written to endpoint, followed by a delay before the next step runs.
type MagicWrite struct {
	Endpoint     hardware.Endpoint
	Data         []byte
	WithResponse bool
	DelayAfter   time.Duration
}

// RunMagicWrites executes steps in order against hw, sleeping DelayAfter
// between them, grounded on KiirooV21Initialized::try_create's two
// sequential writes separated by a 100ms Delay.
func RunMagicWrites(ctx context.Context, hw *hardware.Hardware, steps []MagicWrite) error {
	for i, step := range steps {
		if err := hw.WriteValue(ctx, step.Endpoint, step.Data, step.WithResponse); err != nil {
			return teleoperr.New(teleoperr.Device, teleoperr.DeviceConnectionError, "magic write step "+strconv.Itoa(i)+" failed: "+err.Error())
		}
		if step.DelayAfter > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step.DelayAfter):
			}
		}
	}
	return nil
}

// fixedECBKey is the shared fixed key several toy vendors use for the
// AES-ECB-wrapped challenge/response exchanged during connection setup.
// It is not a secret in any meaningful sense — it ships in every vendor
// app/firmware blob — but it lives here as a named constant rather than
// inline so it has exactly one definition.
var fixedECBKey = []byte("champmarketin1cb")

// DecryptECB decrypts data (which must be a multiple of the AES block
// size) using the fixed ECB key vendors such as Kiiroo embed in their
// handshake.
func DecryptECB(data []byte) ([]byte, error) {
	return cryptECB(data, fixedECBKey, false)
}

// EncryptECB encrypts data the same way.
func EncryptECB(data []byte) ([]byte, error) {
	return cryptECB(data, fixedECBKey, true)
}

func cryptECB(data, key []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(data)%bs != 0 {
		return nil, teleoperr.New(teleoperr.Device, teleoperr.DeviceConnectionError, "ECB payload is not a multiple of the block size")
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		if encrypt {
			block.Encrypt(out[i:i+bs], data[i:i+bs])
		} else {
			block.Decrypt(out[i:i+bs], data[i:i+bs])
		}
	}
	return out, nil
}

