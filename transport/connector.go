package transport

import (
	"fmt"

	"github.com/xmidt-org/teleop/message"
	"github.com/xmidt-org/teleop/serializer"
)

// EventKind tags a RemoteConnector event-stream entry.
type EventKind int

const (
	EventMessages EventKind = iota
	EventConnected
	EventError
	EventClose
)

// Event is what RemoteConnector's event stream publishes: either a batch of
// unsolicited messages (id==0 or an id the sorter didn't recognize), or a
// lifecycle notification.
type Event struct {
	Kind        EventKind
	Messages    []message.Message
	Description string
	Reason      string
}

// RemoteConnector is the message-level connector of §4.3: one ByteTransport
// plus a Serializer plus a Sorter. Unknown non-zero ids are logged and
// dropped, per spec.
type RemoteConnector struct {
	transport  ByteTransport
	serializer *serializer.Serializer
	sorter     *Sorter
	events     chan Event
	log        func(msg string, kv ...interface{})
}

// NewRemoteConnector builds a RemoteConnector. log may be nil.
func NewRemoteConnector(t ByteTransport, s *serializer.Serializer, log func(string, ...interface{})) *RemoteConnector {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	return &RemoteConnector{
		transport:  t,
		serializer: s,
		sorter:     NewSorter(),
		events:     make(chan Event, 16),
		log:        log,
	}
}

// Connect starts the underlying transport and the frame-routing loop.
func (c *RemoteConnector) Connect() (<-chan Event, error) {
	frames, err := c.transport.Connect()
	if err != nil {
		return nil, err
	}
	go c.pump(frames)
	return c.events, nil
}

func (c *RemoteConnector) pump(frames <-chan Frame) {
	defer close(c.events)
	defer c.sorter.FailAll()
	for f := range frames {
		switch f.Kind {
		case KindConnected:
			c.events <- Event{Kind: EventConnected}
		case KindError:
			c.events <- Event{Kind: EventError, Description: f.Description}
		case KindClose:
			c.sorter.FailAll()
			c.events <- Event{Kind: EventClose, Reason: f.Reason}
			return
		case KindMessage:
			c.routeFrame(f.Data)
		}
	}
}

func (c *RemoteConnector) routeFrame(data []byte) {
	msgs, err := c.serializer.Deserialize(data)
	if err != nil {
		c.log("discarding malformed inbound frame", "error", err)
		return
	}

	var unclaimed []message.Message
	for _, m := range msgs {
		if c.sorter.Dispatch(m.MsgID(), data) {
			// Claimed by a pending Send; the waiter gets the raw frame and
			// re-parses it, since a frame can only ever contain the one
			// message a request/response round-trip produces.
			continue
		}
		if m.MsgID() != 0 {
			c.log("dropping message with unknown non-zero id", "id", m.MsgID())
			continue
		}
		unclaimed = append(unclaimed, m)
	}
	if len(unclaimed) > 0 {
		c.events <- Event{Kind: EventMessages, Messages: unclaimed}
	}
}

// Send serializes msg, assigns it a fresh non-zero id, writes it, and
// blocks until the matching response arrives (or the connector
// disconnects).
func (c *RemoteConnector) Send(msg message.Message) (message.Message, error) {
	id, waiter := c.sorter.Register()
	msg.SetMsgID(id)

	data, err := c.serializer.Serialize([]message.Message{msg})
	if err != nil {
		c.sorter.Cancel(id)
		return nil, err
	}
	if err := c.transport.Send(data); err != nil {
		c.sorter.Cancel(id)
		return nil, err
	}

	payload, ok := <-waiter
	if !ok || payload == nil {
		return nil, ErrNotConnected
	}
	version, _ := c.serializer.Version()
	resp, err := message.DecodeEnvelope(payload, message.RegistryFor(version))
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("transport: empty response frame")
	}
	return resp[0], nil
}

// Notify serializes msg at the negotiated version and writes it directly,
// with no sorter id allocated and no wait for a reply — used both for
// server-originated events (id left at 0) and for answering a request whose
// id the caller already copied onto msg.
func (c *RemoteConnector) Notify(msg message.Message) error {
	data, err := c.serializer.Serialize([]message.Message{msg})
	if err != nil {
		return err
	}
	return c.transport.Send(data)
}

// Version reports the session's negotiated spec version, once the first
// inbound frame has been processed.
func (c *RemoteConnector) Version() (message.SpecVersion, bool) {
	return c.serializer.Version()
}

// Disconnect tears down the underlying transport.
func (c *RemoteConnector) Disconnect() error {
	return c.transport.Disconnect()
}
