package hid

import (
	"context"
	"sync"

	hidapi "github.com/sstallion/go-hid"
	"github.com/xmidt-org/teleop/hardware"
)

// bus wraps one already-opened HID device handle; "report" is the only
// busID a HID device exposes, since reads/writes always address the
// current report.
type bus struct {
	dev *hidapi.Device

	mu      sync.Mutex
	sub     chan []byte
	closing bool
}

func (b *bus) Write(ctx context.Context, busID string, data []byte, withResponse bool) error {
	_, err := b.dev.Write(data)
	return err
}

func (b *bus) Read(ctx context.Context, busID string, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := b.dev.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (b *bus) Subscribe(ctx context.Context, busID string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return b.sub, nil
	}
	b.sub = make(chan []byte, 8)
	go b.readLoop()
	return b.sub, nil
}

func (b *bus) readLoop() {
	buf := make([]byte, 64)
	for {
		n, err := b.dev.Read(buf)
		b.mu.Lock()
		closing := b.closing
		sub := b.sub
		b.mu.Unlock()
		if closing || sub == nil {
			return
		}
		if err != nil {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case sub <- data:
		default:
		}
	}
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
	b.mu.Lock()
	b.closing = true
	if b.sub != nil {
		close(b.sub)
		b.sub = nil
	}
	b.mu.Unlock()
	return b.dev.Close()
}

var _ hardware.Bus = (*bus)(nil)
