// Package transport implements the reusable remote connector of §4.3: a
// byte-level ByteTransport (out of scope per spec §1 beyond its interface
// contract — websocket, IPC pipes, in-memory) wrapped by a message-level
// RemoteConnector that owns a Serializer and a message Sorter.
package transport

import "fmt"

// FrameKind tags the variant of an inbound transport event.
type FrameKind int

const (
	KindMessage FrameKind = iota
	KindConnected
	KindError
	KindClose
)

// Frame is what a ByteTransport's event stream publishes.
type Frame struct {
	Kind        FrameKind
	Data        []byte
	Description string
	Reason      string
}

func (f Frame) String() string {
	switch f.Kind {
	case KindMessage:
		return fmt.Sprintf("Message(%d bytes)", len(f.Data))
	case KindConnected:
		return "Connected"
	case KindError:
		return "Error(" + f.Description + ")"
	case KindClose:
		return "Close(" + f.Reason + ")"
	default:
		return "Unknown"
	}
}

// ByteTransport is a bidirectional byte stream (§6 "Transport surface").
// Concrete adapters (websocket, IPC) are out of scope beyond this contract;
// transport/websocket.go is the one concrete implementation this repo
// ships, used both by the remote connector and by server.Server.
type ByteTransport interface {
	// Connect dials/accepts the stream and starts its owning I/O task. The
	// returned channel is closed once the task exits.
	Connect() (<-chan Frame, error)

	// Send writes one text frame. Binary frames are never produced by this
	// repo's serializer, so implementations may reject them.
	Send(data []byte) error

	// Disconnect signals the I/O task to close the writer half, drain the
	// reader until EOF/error, and stop. Idempotent.
	Disconnect() error
}

// ErrNotConnected is returned to every pending waker when Disconnect is
// called or the underlying transport dies.
var ErrNotConnected = fmt.Errorf("transport: not connected")
