package wsdevice

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// bus is a hardware.Bus backed by one already-upgraded websocket
// connection. It frames every write as a single binary message and
// delivers inbound messages via a background pump feeding per-busID
// subscriptions; since a websocket device has exactly one logical channel,
// every inbound message goes to every subscription whatever its busID.
type bus struct {
	conn *websocket.Conn

	mu   sync.Mutex
	subs map[string]chan []byte
	done chan struct{}
}

func newBus(conn *websocket.Conn) *bus {
	b := &bus{conn: conn, subs: make(map[string]chan []byte), done: make(chan struct{})}
	go b.readLoop()
	return b
}

func (b *bus) readLoop() {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			for _, ch := range b.subs {
				close(ch)
			}
			b.subs = nil
			b.mu.Unlock()
			return
		}
		b.mu.Lock()
		for _, ch := range b.subs {
			select {
			case ch <- data:
			default:
			}
		}
		b.mu.Unlock()
	}
}

func (b *bus) Write(ctx context.Context, busID string, data []byte, withResponse bool) error {
	return b.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (b *bus) Read(ctx context.Context, busID string, length int) ([]byte, error) {
	_, data, err := b.conn.ReadMessage()
	return data, err
}

func (b *bus) Subscribe(ctx context.Context, busID string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[busID]; ok {
		return ch, nil
	}
	ch := make(chan []byte, 8)
	b.subs[busID] = ch
	return ch, nil
}

func (b *bus) Unsubscribe(ctx context.Context, busID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[busID]; ok {
		close(ch)
		delete(b.subs, busID)
	}
	return nil
}

func (b *bus) Close() error {
	close(b.done)
	return b.conn.Close()
}
