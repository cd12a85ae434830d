package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xmidt-org/wrp-go/v3"

	"github.com/xmidt-org/teleop/internal/teleoperr"
)

// EventKind tags a Hardware event-stream entry.
type EventKind int

const (
	Notification EventKind = iota
	Disconnected
)

// Event is broadcast to every subscriber of Hardware.Events(); closing the
// broadcast implies disconnect, per §4.7. A Notification event's payload is
// carried as a wrp.Message (Source=device address, Destination=endpoint,
// Payload=raw bytes, Type=SimpleEvent), the same envelope the rest of the
// stack uses to move bytes between a hardware task and its manager.
type Event struct {
	Kind    EventKind
	Message wrp.Message
	Address string
}

// NotificationEndpoint recovers the Endpoint a Notification event fired on
// from its wrp.Message envelope.
func (ev Event) NotificationEndpoint() Endpoint { return Endpoint(ev.Message.Destination) }

// NotificationData recovers a Notification event's raw payload.
func (ev Event) NotificationData() []byte { return ev.Message.Payload }

type opKind int

const (
	opWrite opKind = iota
	opRead
	opSubscribe
	opUnsubscribe
)

type op struct {
	kind     opKind
	endpoint Endpoint
	data     []byte
	withResp bool
	length   int
	timeout  time.Duration
	reply    chan opResult
}

type opResult struct {
	data []byte
	err  error
}

// Hardware is a connected physical device, exclusively owned by the device
// manager after connection. It is the only thing that touches its Bus; all
// operations are serialized through a command channel to one I/O task
// (§4.7's invariant, §5's ordering guarantee for per-device gate + hardware
// task combined).
type Hardware struct {
	name      string
	address   string
	endpoints EndpointMap
	bus       Bus

	ops      chan op
	events   chan Event
	done     chan struct{}
	closed   chan struct{}
	closeErr error

	mu        sync.RWMutex
	connected bool
	subs      map[Endpoint]struct{}
}

// New constructs Hardware over bus and starts its owning I/O task.
func New(name, address string, endpoints EndpointMap, bus Bus) *Hardware {
	h := &Hardware{
		name:      name,
		address:   address,
		endpoints: endpoints,
		bus:       bus,
		ops:       make(chan op),
		events:    make(chan Event, 16),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
		connected: true,
		subs:      make(map[Endpoint]struct{}),
	}
	go h.run()
	return h
}

func (h *Hardware) Name() string    { return h.name }
func (h *Hardware) Address() string { return h.address }

func (h *Hardware) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// Events returns the broadcast channel of Notification/Disconnected events.
// It is closed when the hardware's I/O task exits.
func (h *Hardware) Events() <-chan Event { return h.events }

func (h *Hardware) resolve(e Endpoint) (string, error) {
	id, ok := h.endpoints[e]
	if !ok {
		return "", teleoperr.New(teleoperr.Device, teleoperr.InvalidEndpoint, fmt.Sprintf("device has no endpoint %q", e))
	}
	return id, nil
}

// WriteValue is fire-and-forget when !writeWithResponse; otherwise it
// blocks until the bus confirms delivery.
func (h *Hardware) WriteValue(ctx context.Context, endpoint Endpoint, data []byte, writeWithResponse bool) error {
	if _, err := h.resolve(endpoint); err != nil {
		return err
	}
	_, err := h.call(ctx, op{kind: opWrite, endpoint: endpoint, data: data, withResp: writeWithResponse})
	return err
}

// ReadValue reads up to length bytes from endpoint with a deadline.
func (h *Hardware) ReadValue(ctx context.Context, endpoint Endpoint, length int, timeout time.Duration) ([]byte, error) {
	if _, err := h.resolve(endpoint); err != nil {
		return nil, err
	}
	return h.call(ctx, op{kind: opRead, endpoint: endpoint, length: length, timeout: timeout})
}

// Subscribe enables notification delivery for endpoint; idempotent.
func (h *Hardware) Subscribe(ctx context.Context, endpoint Endpoint) error {
	if _, err := h.resolve(endpoint); err != nil {
		return err
	}
	_, err := h.call(ctx, op{kind: opSubscribe, endpoint: endpoint})
	return err
}

// Unsubscribe disables notification delivery for endpoint.
func (h *Hardware) Unsubscribe(ctx context.Context, endpoint Endpoint) error {
	if _, err := h.resolve(endpoint); err != nil {
		return err
	}
	_, err := h.call(ctx, op{kind: opUnsubscribe, endpoint: endpoint})
	return err
}

func (h *Hardware) call(ctx context.Context, o op) ([]byte, error) {
	o.reply = make(chan opResult, 1)
	select {
	case h.ops <- o:
	case <-h.closed:
		return nil, teleoperr.New(teleoperr.Device, teleoperr.DeviceNotConnected, "hardware task has exited")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-o.reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect tears down the bus and stops the I/O task. Safe to call more
// than once.
func (h *Hardware) Disconnect() error {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	<-h.closed
	return h.closeErr
}

func (h *Hardware) run() {
	subChans := make(map[Endpoint]<-chan []byte)
	defer func() {
		h.mu.Lock()
		h.connected = false
		h.mu.Unlock()
		h.closeErr = h.bus.Close()
		h.events <- Event{Kind: Disconnected, Address: h.address}
		close(h.events)
		close(h.closed)
	}()

	// fan-in goroutine placeholder: subscriptions are drained inline below
	// via a select over a dynamically sized set, implemented with a single
	// merge channel fed by per-subscription goroutines.
	merged := make(chan Event, 16)
	subDone := make(chan struct{})
	defer close(subDone)

	startSub := func(e Endpoint, ch <-chan []byte) {
		go func() {
			for {
				select {
				case data, ok := <-ch:
					if !ok {
						return
					}
					msg := wrp.Message{
						Type:        wrp.SimpleEventMessageType,
						Source:      h.address,
						Destination: string(e),
						Payload:     data,
					}
					select {
					case merged <- Event{Kind: Notification, Message: msg, Address: h.address}:
					case <-subDone:
						return
					}
				case <-subDone:
					return
				}
			}
		}()
	}

	for {
		select {
		case <-h.done:
			for e := range h.subs {
				h.bus.Unsubscribe(context.Background(), string(h.endpoints[e]))
			}
			return

		case ev := <-merged:
			select {
			case h.events <- ev:
			case <-h.done:
				return
			}

		case o := <-h.ops:
			h.handle(o, subChans, startSub)
		}
	}
}

func (h *Hardware) handle(o op, subChans map[Endpoint]<-chan []byte, startSub func(Endpoint, <-chan []byte)) {
	busID := string(h.endpoints[o.endpoint])
	ctx := context.Background()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	switch o.kind {
	case opWrite:
		err := h.bus.Write(ctx, busID, o.data, o.withResp)
		o.reply <- opResult{err: wrapBusErr(err)}

	case opRead:
		timeout := o.timeout
		if timeout <= 0 {
			timeout = DefaultReadTimeout
		}
		rctx, cancel := context.WithTimeout(context.Background(), timeout)
		data, err := h.bus.Read(rctx, busID, o.length)
		cancel()
		o.reply <- opResult{data: data, err: wrapBusErr(err)}

	case opSubscribe:
		if _, ok := h.subs[o.endpoint]; ok {
			o.reply <- opResult{}
			return
		}
		ch, err := h.bus.Subscribe(ctx, busID)
		if err != nil {
			o.reply <- opResult{err: wrapBusErr(err)}
			return
		}
		h.subs[o.endpoint] = struct{}{}
		subChans[o.endpoint] = ch
		startSub(o.endpoint, ch)
		o.reply <- opResult{}

	case opUnsubscribe:
		if _, ok := h.subs[o.endpoint]; !ok {
			o.reply <- opResult{}
			return
		}
		delete(h.subs, o.endpoint)
		delete(subChans, o.endpoint)
		o.reply <- opResult{err: wrapBusErr(h.bus.Unsubscribe(ctx, busID))}
	}
}

func wrapBusErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*teleoperr.Err); ok {
		return err
	}
	return teleoperr.New(teleoperr.Device, teleoperr.DeviceCommunicationError, err.Error())
}
