package transport

import (
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketTransport is a ByteTransport dialing a remote websocket server.
// Its read/write pump shape mirrors the teacher's device.manager read/write
// pumps: one goroutine owns the connection's read half, writes from every
// caller are serialized by writeMu, and a sync.Once guards the shared
// teardown.
type WebsocketTransport struct {
	url    string
	dialer *websocket.Dialer

	conn      *websocket.Conn
	writeMu   sync.Mutex
	writeOnce sync.Once
	shutdown  chan struct{}
}

// NewWebsocketTransport builds a transport dialing rawURL (ws:// or wss://).
func NewWebsocketTransport(rawURL string) (*WebsocketTransport, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, err
	}
	return &WebsocketTransport{
		url:      rawURL,
		dialer:   websocket.DefaultDialer,
		shutdown: make(chan struct{}),
	}, nil
}

// NewAcceptedWebsocketTransport wraps a connection the server's HTTP handler
// already upgraded, for the session's accept-side use of this same
// read/write-pump shape (Connect skips dialing when conn is already set).
func NewAcceptedWebsocketTransport(conn *websocket.Conn) *WebsocketTransport {
	return &WebsocketTransport{conn: conn, shutdown: make(chan struct{})}
}

func (t *WebsocketTransport) Connect() (<-chan Frame, error) {
	if t.conn == nil {
		conn, _, err := t.dialer.Dial(t.url, nil)
		if err != nil {
			return nil, err
		}
		t.conn = conn
	}

	frames := make(chan Frame, 16)
	closeOnce := new(sync.Once)

	go t.readPump(frames, closeOnce)

	frames <- Frame{Kind: KindConnected}
	return frames, nil
}

func (t *WebsocketTransport) readPump(frames chan<- Frame, closeOnce *sync.Once) {
	defer close(frames)
	defer closeOnce.Do(func() { t.conn.Close() })

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.shutdown:
				return
			default:
				frames <- Frame{Kind: KindClose, Reason: err.Error()}
				return
			}
		}
		if messageType != websocket.TextMessage {
			frames <- Frame{Kind: KindError, Description: "binary frame rejected by JSON serializer"}
			continue
		}
		frames <- Frame{Kind: KindMessage, Data: data}
	}
}

func (t *WebsocketTransport) Send(data []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebsocketTransport) Disconnect() error {
	var err error
	t.writeOnce.Do(func() {
		close(t.shutdown)
		if t.conn != nil {
			err = t.conn.Close()
		}
	})
	return err
}
