// Package session implements the per-connection message-routing state
// machine of spec §4.4: handshake negotiation, message-id discipline, the
// ping watchdog, and dispatch of device commands/events between one
// transport.RemoteConnector and the shared devicemanager.Manager.
package session

import (
	"context"
	"sync"
	"time"

	kitlog "github.com/go-kit/kit/log"

	"github.com/xmidt-org/teleop/devicemanager"
	"github.com/xmidt-org/teleop/internal/teleoperr"
	"github.com/xmidt-org/teleop/internal/xlog"
	"github.com/xmidt-org/teleop/message"
	"github.com/xmidt-org/teleop/transport"
)

// State is one of the four session lifecycle states of §4.4.
type State int

const (
	AwaitingHandshake State = iota
	Connected
	Draining
	Closed
)

// Config is the server-wide policy a Session enforces.
type Config struct {
	ServerName string
	// MaxPingMs is the watchdog period advertised in ServerInfo; 0 disables
	// the watchdog entirely.
	MaxPingMs uint32
}

// Session owns one client connection end to end: its RemoteConnector, its
// negotiated state, and the devices it has been told about.
type Session struct {
	conn      *transport.RemoteConnector
	devices   *devicemanager.Manager
	endpoints commandEndpoints
	cfg       Config
	log       kitlog.Logger

	mu         sync.Mutex
	state      State
	clientName string
	known      map[uint32]struct{}

	pingMu    sync.Mutex
	pingTimer *time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// New builds a Session in AwaitingHandshake over conn, dispatching device
// commands against devices.
func New(conn *transport.RemoteConnector, devices *devicemanager.Manager, cfg Config, log kitlog.Logger) *Session {
	if log == nil {
		log = xlog.New()
	}
	return &Session{
		conn:      conn,
		devices:   devices,
		endpoints: newCommandEndpoints(devices),
		cfg:       cfg,
		log:       log,
		state:     AwaitingHandshake,
		known:     make(map[uint32]struct{}),
		done:      make(chan struct{}),
	}
}

// Run drives the session until the transport closes or Close is called. It
// blocks until the session is fully torn down.
func (s *Session) Run() error {
	events, err := s.conn.Connect()
	if err != nil {
		return err
	}

	deviceEvents, cancel := s.devices.Subscribe()
	defer cancel()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				s.teardown()
				return nil
			}
			s.handleTransportEvent(ev)
			if s.currentState() == Closed {
				return nil
			}
		case dev, ok := <-deviceEvents:
			if !ok {
				continue
			}
			s.handleDeviceEvent(dev)
		case <-s.done:
			return nil
		}
	}
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventMessages:
		for _, m := range ev.Messages {
			s.handleMessage(m)
		}
	case transport.EventError:
		xlog.Error(s.log).Log(xlog.MessageKey(), "transport error", "description", ev.Description)
	case transport.EventClose:
		s.teardown()
	}
}

func (s *Session) handleMessage(m message.Message) {
	if m.MsgID() == 0 {
		s.reply(0, teleoperr.New(teleoperr.Message, teleoperr.ValidationError, "client message id must be > 0"))
		return
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	// original is the message exactly as the client sent it (pre-upgrade),
	// kept around for the rare Downgrade that depends on what was asked
	// (InputReading's shape below v2 depends on which Battery/RSSI command
	// produced it).
	original := m
	if state != AwaitingHandshake {
		version, _ := s.conn.Version()
		upgraded, err := message.Upgrade(m, version, s.featureLookup)
		if err != nil {
			s.reply(m.MsgID(), err)
			return
		}
		m = upgraded
	}

	switch state {
	case AwaitingHandshake:
		s.handleHandshake(m)
	case Connected:
		s.handleConnected(original, m)
	case Draining:
		s.handleDraining(m)
	}
}

// featureLookup adapts the device manager for message.Upgrade's use.
func (s *Session) featureLookup(deviceIndex uint32) ([]message.DeviceFeature, bool) {
	_, _, features, ok := s.devices.Device(deviceIndex)
	return features, ok
}

func (s *Session) handleHandshake(m message.Message) {
	rsi, ok := m.(*message.RequestServerInfo)
	if !ok {
		s.reply(m.MsgID(), teleoperr.New(teleoperr.Handshake, teleoperr.RequestServerInfoExpected,
			"first client message must be RequestServerInfo"))
		return
	}
	if !message.Supported(rsi.MessageVersion) {
		s.reply(m.MsgID(), teleoperr.New(teleoperr.Handshake, teleoperr.MessageSpecVersionMismatch,
			"requested spec version is newer than this server supports"))
		s.teardown()
		return
	}

	s.mu.Lock()
	s.state = Connected
	s.clientName = rsi.ClientName
	s.mu.Unlock()

	if s.cfg.MaxPingMs > 0 {
		s.resetWatchdog()
	}

	s.reply(m.MsgID(), &message.ServerInfo{
		MessageVersion: rsi.MessageVersion,
		MaxPingTime:    s.cfg.MaxPingMs,
		ServerName:     s.cfg.ServerName,
	})
}

func (s *Session) handleConnected(original, m message.Message) {
	switch msg := m.(type) {
	case *message.RequestServerInfo:
		s.reply(m.MsgID(), teleoperr.New(teleoperr.Handshake, teleoperr.HandshakeAlreadyHappened,
			"handshake already completed for this session"))

	case *message.Ping:
		if s.cfg.MaxPingMs > 0 {
			s.resetWatchdog()
		}
		s.reply(m.MsgID(), message.NewOk(m.MsgID()))

	case *message.StartScanning:
		if _, err := s.endpoints.startScanning(context.Background(), nil); err != nil {
			s.reply(m.MsgID(), err)
			return
		}
		s.reply(m.MsgID(), message.NewOk(m.MsgID()))

	case *message.StopScanning:
		if _, err := s.endpoints.stopScanning(context.Background(), nil); err != nil {
			s.reply(m.MsgID(), err)
			return
		}
		s.reply(m.MsgID(), message.NewOk(m.MsgID()))

	case *message.RequestDeviceList:
		resp, err := s.endpoints.deviceList(context.Background(), nil)
		if err != nil {
			s.reply(m.MsgID(), err)
			return
		}
		s.reply(m.MsgID(), &message.DeviceList{Devices: resp.([]message.DeviceListEntry)})

	case *message.OutputCmd:
		s.handleOutputCmd(msg)

	case *message.InputCmd:
		s.handleInputCmd(original, msg)

	case *message.StopDeviceCmd:
		if _, err := s.endpoints.stopDevice(context.Background(), deviceIndexRequest{deviceIndex: msg.DeviceIndex}); err != nil {
			s.reply(m.MsgID(), err)
			return
		}
		s.reply(m.MsgID(), message.NewOk(m.MsgID()))

	case *message.StopAllDevices:
		s.stopAllDevices()
		s.reply(m.MsgID(), message.NewOk(m.MsgID()))

	default:
		s.reply(m.MsgID(), teleoperr.New(teleoperr.Message, teleoperr.UnexpectedMessageType,
			"message type not valid in this state"))
	}
}

func (s *Session) handleDraining(m message.Message) {
	switch m.(type) {
	case *message.OutputCmd, *message.InputCmd, *message.StopDeviceCmd, *message.StopAllDevices,
		*message.StartScanning, *message.StopScanning:
		s.reply(m.MsgID(), teleoperr.New(teleoperr.Ping, teleoperr.PingTimeout,
			"session is draining after a ping timeout"))
	default:
		s.reply(m.MsgID(), teleoperr.New(teleoperr.Ping, teleoperr.PingTimeout,
			"session is draining after a ping timeout"))
	}
}

func (s *Session) handleOutputCmd(msg *message.OutputCmd) {
	req := outputRequest{deviceIndex: msg.DeviceIndex, subcommands: msg.Subcommands}
	if _, err := s.endpoints.output(context.Background(), req); err != nil {
		s.reply(msg.MsgID(), err)
		return
	}
	s.reply(msg.MsgID(), message.NewOk(msg.MsgID()))
}

func (s *Session) handleInputCmd(original message.Message, msg *message.InputCmd) {
	resp, err := s.endpoints.input(context.Background(), inputRequest{deviceIndex: msg.DeviceIndex, cmd: *msg})
	if err != nil {
		s.reply(msg.MsgID(), err)
		return
	}
	reading, _ := resp.(*message.InputReading)
	if reading == nil {
		s.reply(msg.MsgID(), message.NewOk(msg.MsgID()))
		return
	}
	reading.SetMsgID(msg.MsgID())
	s.replyWithOriginal(msg.MsgID(), reading, original)
}

func (s *Session) stopAllDevices() {
	_, _ = s.endpoints.stopAll(context.Background(), nil)
}

// handleDeviceEvent translates one devicemanager.Event into the matching
// server-originated wire message (id=0) and forwards it, tracking which
// device indices this client has been told about.
func (s *Session) handleDeviceEvent(ev devicemanager.Event) {
	if s.currentState() == Closed {
		return
	}
	switch ev.Kind {
	case devicemanager.EventDeviceAdded:
		s.mu.Lock()
		s.known[ev.Added.DeviceIndex] = struct{}{}
		s.mu.Unlock()
		s.notify(&message.DeviceAdded{DeviceListEntry: ev.Added})

	case devicemanager.EventDeviceRemoved:
		s.mu.Lock()
		delete(s.known, ev.Removed)
		s.mu.Unlock()
		s.notify(&message.DeviceRemoved{DeviceIndex: ev.Removed})

	case devicemanager.EventInputReading:
		s.notify(&ev.Reading)

	case devicemanager.EventScanningFinished:
		s.notify(&message.ScanningFinished{})
	}
}

// reply sends a response bearing id (echoing the triggering request), or
// wraps err as an Error message if non-nil.
func (s *Session) reply(id uint32, payload interface{}) {
	s.replyWithOriginal(id, payload, nil)
}

// replyWithOriginal is reply, additionally carrying the pre-upgrade request
// message that produced payload, for the Downgrade paths whose wire shape
// depends on what was asked (InputReading below v2).
func (s *Session) replyWithOriginal(id uint32, payload interface{}, original message.Message) {
	var msg message.Message
	switch p := payload.(type) {
	case error:
		msg = message.NewError(id, p)
	case message.Message:
		p.SetMsgID(id)
		msg = p
	default:
		return
	}
	s.send(msg, original)
}

// notify sends a server-originated event with id=0.
func (s *Session) notify(msg message.Message) {
	msg.SetMsgID(message.EventID)
	s.send(msg, nil)
}

// send downgrades msg to the session's negotiated spec version and writes
// it. A response with no representation at that version is replaced by an
// Error message carrying the request's id; a server event (id 0) with no
// representation (an unsolicited InputReading for a v0/v1 client, say) is
// logged and dropped rather than sent malformed.
func (s *Session) send(msg message.Message, original message.Message) {
	version, _ := s.conn.Version()
	out, err := message.Downgrade(msg, version, original)
	if err != nil {
		if msg.MsgID() == message.EventID {
			xlog.Error(s.log).Log(xlog.MessageKey(), "message has no representation at negotiated version", xlog.ErrorKey(), err)
			return
		}
		out = message.NewError(msg.MsgID(), err)
	}
	if err := s.conn.Notify(out); err != nil {
		xlog.Error(s.log).Log(xlog.MessageKey(), "failed to write message", xlog.ErrorKey(), err)
	}
}

func (s *Session) resetWatchdog() {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()
	if s.pingTimer != nil {
		s.pingTimer.Stop()
	}
	s.pingTimer = time.AfterFunc(time.Duration(s.cfg.MaxPingMs)*time.Millisecond, s.onWatchdogExpired)
}

// onWatchdogExpired implements §4.4's watchdog-expiry transition: emit one
// Error(Ping) event, stop every device, move to Draining, then close.
func (s *Session) onWatchdogExpired() {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return
	}
	s.state = Draining
	s.mu.Unlock()

	s.notify(message.NewError(message.EventID, teleoperr.New(teleoperr.Ping, teleoperr.PingTimeout, "ping watchdog expired")))
	s.stopAllDevices()
	s.teardown()
}

// teardown moves the session to Closed and disconnects its transport,
// exactly once.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()

		s.pingMu.Lock()
		if s.pingTimer != nil {
			s.pingTimer.Stop()
		}
		s.pingMu.Unlock()

		_ = s.conn.Disconnect()
		close(s.done)
	})
}

// Close tears down the session from outside (e.g. server shutdown).
func (s *Session) Close() { s.teardown() }
