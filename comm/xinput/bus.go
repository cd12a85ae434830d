package xinput

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/simulatedsimian/joystick"
	"github.com/xmidt-org/teleop/hardware"
)

// bus polls one opened joystick's axis/button state; the underlying
// library exposes no force-feedback write path, so Write on "rumble" is
// unsupported and only "axes" is readable/subscribable.
type bus struct {
	js joystick.Joystick

	mu   sync.Mutex
	sub  chan []byte
	done chan struct{}
}

func (b *bus) Write(ctx context.Context, busID string, data []byte, withResponse bool) error {
	return hardware.ErrUnsupported
}

func (b *bus) Read(ctx context.Context, busID string, length int) ([]byte, error) {
	state, err := b.js.Read()
	if err != nil {
		return nil, err
	}
	return encodeState(state), nil
}

func (b *bus) Subscribe(ctx context.Context, busID string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return b.sub, nil
	}
	b.sub = make(chan []byte, 8)
	go b.pollLoop()
	return b.sub, nil
}

func (b *bus) pollLoop() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			state, err := b.js.Read()
			if err != nil {
				continue
			}
			b.mu.Lock()
			sub := b.sub
			b.mu.Unlock()
			if sub == nil {
				return
			}
			select {
			case sub <- encodeState(state):
			default:
			}
		}
	}
}

func encodeState(state joystick.State) []byte {
	buf := make([]byte, 4+4*len(state.AxisData))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(state.Buttons))
	for i, axis := range state.AxisData {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], uint32(int32(axis)))
	}
	return buf
}

func (b *bus) Unsubscribe(ctx context.Context, busID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		close(b.sub)
		b.sub = nil
	}
	return nil
}

func (b *bus) Close() error {
	close(b.done)
	b.mu.Lock()
	if b.sub != nil {
		close(b.sub)
		b.sub = nil
	}
	b.mu.Unlock()
	return nil
}
