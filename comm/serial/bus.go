package serial

import (
	"context"
	"sync"

	goserial "go.bug.st/serial"
)

// bus wraps one already-opened serial port; "line" is the only busID, since
// a serial port has a single byte stream.
type bus struct {
	port goserial.Port

	mu      sync.Mutex
	sub     chan []byte
	closing bool
}

func (b *bus) Write(ctx context.Context, busID string, data []byte, withResponse bool) error {
	_, err := b.port.Write(data)
	return err
}

func (b *bus) Read(ctx context.Context, busID string, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := b.port.Read(buf)
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
	buf := make([]byte, 256)
	for {
		n, err := b.port.Read(buf)
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
	return b.port.Close()
}
