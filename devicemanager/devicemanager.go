// Package devicemanager implements the discovery pipeline and per-device
// command gate of the device manager (spec §4.5): matching a freshly
// discovered Hardware against a protocol, identifying it, applying
// allow/deny policy, allocating an index, and installing a protocol.Handler
// behind a single-writer queue.
package devicemanager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/deviceconfig"
	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/internal/teleoperr"
	"github.com/xmidt-org/teleop/internal/xlog"
	"github.com/xmidt-org/teleop/message"
	"github.com/xmidt-org/teleop/protocol"

	kitlog "github.com/go-kit/kit/log"
)

// EventKind tags a Manager-level event pushed to the session layer.
type EventKind int

const (
	EventDeviceAdded EventKind = iota
	EventDeviceRemoved
	EventInputReading
	EventScanningFinished
)

// Event is one entry of the device manager's broadcast stream; every
// Subscribe caller gets every event, and the session layer turns each into
// the matching wire message.
type Event struct {
	Kind    EventKind
	Added   message.DeviceListEntry
	Removed uint32
	Reading message.InputReading
}

// device is one adopted device: its live Hardware, the protocol.Handler
// translating for it, its feature list, and the single-writer gate
// serializing commands against it.
type device struct {
	index      uint32
	identifier deviceconfig.UserDeviceIdentifier
	hw         *hardware.Hardware
	handler    protocol.Handler
	features   []message.DeviceFeature
	name       string

	mu       sync.Mutex
	commands chan func()
	done     chan struct{}

	keepaliveMu   sync.Mutex
	keepaliveLast []protocol.HardwareCommand
	keepaliveStop chan struct{}
}

// Manager owns every adopted device and the discovery pipeline that feeds
// it, fed by one or more comm.Manager instances through a comm.Aggregator.
type Manager struct {
	config     *deviceconfig.Manager
	protocols  *protocol.Registry
	aggregator *comm.Aggregator
	log        kitlog.Logger

	mu      sync.Mutex
	devices map[uint32]*device
	byIdent map[deviceconfig.UserDeviceIdentifier]uint32

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New builds a Manager wiring config and protocols together; callers add
// comm.Manager instances to aggregator before calling StartScanning.
func New(config *deviceconfig.Manager, protocols *protocol.Registry, aggregator *comm.Aggregator, log kitlog.Logger) *Manager {
	if log == nil {
		log = xlog.New()
	}
	m := &Manager{
		config:     config,
		protocols:  protocols,
		aggregator: aggregator,
		log:        log,
		devices:    make(map[uint32]*device),
		byIdent:    make(map[deviceconfig.UserDeviceIdentifier]uint32),
		subs:       make(map[chan Event]struct{}),
	}
	go m.drainDiscovery()
	return m
}

// Subscribe registers a new receiver of every subsequent DeviceAdded/
// DeviceRemoved/InputReading/ScanningFinished event, matching §4's
// broadcast-channel fan-out: every connected session (and any other
// listener, such as a webhook notifier) gets its own independent copy of
// the stream rather than competing for one shared channel. The returned
// cancel func must be called when the subscriber is done; a slow
// subscriber drops events rather than backpressuring discovery.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) broadcast(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- ev:
		default:
			xlog.Debug(m.log).Log(xlog.MessageKey(), "dropping event for slow subscriber", "kind", ev.Kind)
		}
	}
}

// StartScanning begins discovery on every registered comm.Manager.
func (m *Manager) StartScanning(ctx context.Context) error { return m.aggregator.StartScanning(ctx) }

// StopScanning halts discovery on every registered comm.Manager.
func (m *Manager) StopScanning(ctx context.Context) error { return m.aggregator.StopScanning(ctx) }

// RequestDeviceList snapshots every currently adopted device as a
// DeviceListEntry, in index order.
func (m *Manager) RequestDeviceList() []message.DeviceListEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]message.DeviceListEntry, 0, len(m.devices))
	for _, d := range m.devices {
		entries = append(entries, d.entry())
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DeviceIndex < entries[j].DeviceIndex })
	return entries
}

func (d *device) entry() message.DeviceListEntry {
	return message.DeviceListEntry{
		DeviceName:        d.name,
		DeviceIndex:       d.index,
		DeviceDisplayName: d.name,
		DeviceFeatures:    d.features,
	}
}

func (m *Manager) drainDiscovery() {
	found := m.aggregator.Found()
	finished := m.aggregator.Finished()
	for {
		select {
		case df, ok := <-found:
			if !ok {
				return
			}
			m.adopt(df)
		case <-finished:
			m.broadcast(Event{Kind: EventScanningFinished})
		}
	}
}

// adopt runs the discovery pipeline of §4.5 steps 2-5 for one DeviceFound.
func (m *Manager) adopt(df comm.DeviceFound) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	protocolName, ok := m.config.MatchProtocol(df.Connector.Specifier())
	if !ok {
		xlog.Debug(m.log).Log(xlog.MessageKey(), "no protocol matched discovered device", "address", df.Address)
		return
	}
	factory, ok := m.protocols.Lookup(protocolName)
	if !ok {
		xlog.Error(m.log).Log(xlog.MessageKey(), "protocol matched but not registered", "protocol", protocolName)
		return
	}

	hw, err := df.Connector.Connect(ctx)
	if err != nil {
		xlog.Error(m.log).Log(xlog.MessageKey(), "hardware connect failed", xlog.ErrorKey(), err)
		return
	}

	ident, err := factory.Identify(ctx, hw)
	if err != nil {
		xlog.Error(m.log).Log(xlog.MessageKey(), "protocol identify failed", xlog.ErrorKey(), err)
		_ = hw.Disconnect()
		return
	}

	userIdent := deviceconfig.UserDeviceIdentifier{Protocol: ident.Protocol, Identifier: ident.Identifier, Address: df.Address}

	if !m.config.AddressAllowed(df.Address) {
		xlog.Info(m.log).Log(xlog.MessageKey(), "device denied by configuration", "address", df.Address)
		_ = hw.Disconnect()
		return
	}

	def, ok := m.config.DeviceDefinitionFor(userIdent)
	if !ok {
		xlog.Debug(m.log).Log(xlog.MessageKey(), "no device definition for identified device", "protocol", ident.Protocol)
		_ = hw.Disconnect()
		return
	}

	handler, err := factory.Initialize(ctx, hw, def.Features)
	if err != nil {
		xlog.Error(m.log).Log(xlog.MessageKey(), "protocol initialize failed", xlog.ErrorKey(), err)
		_ = hw.Disconnect()
		return
	}

	m.mu.Lock()
	if existingIdx, ok := m.byIdent[userIdent]; ok {
		if existing, ok := m.devices[existingIdx]; ok {
			m.mu.Unlock()
			m.spliceReconnect(existing, hw, handler, def)
			return
		}
	}
	m.mu.Unlock()

	d := &device{
		index:      def.Index,
		identifier: userIdent,
		hw:         hw,
		handler:    handler,
		features:   def.Features,
		name:       df.Name,
		commands:   make(chan func(), 16),
		done:       make(chan struct{}),
	}
	m.mu.Lock()
	m.devices[d.index] = d
	m.byIdent[userIdent] = d.index
	m.mu.Unlock()

	go d.runCommandLoop()
	go m.watchDisconnect(d, hw)
	m.maybeStartKeepalive(d)

	m.broadcast(Event{Kind: EventDeviceAdded, Added: d.entry()})
}

// spliceReconnect replaces an existing device's Hardware/Handler in place
// without changing its index, per §4.5 step 4's "treat as reconnection"
// rule.
func (m *Manager) spliceReconnect(d *device, hw *hardware.Hardware, handler protocol.Handler, def deviceconfig.DeviceDefinition) {
	old := d.hw
	d.mu.Lock()
	d.hw = hw
	d.handler = handler
	d.features = def.Features
	d.mu.Unlock()
	_ = old.Disconnect()
	go m.watchDisconnect(d, hw)
	m.maybeStartKeepalive(d)
}

// watchDisconnect drains hw's event stream for as long as hw remains d's
// live Hardware. A splice-reconnect starts a fresh watcher over the new
// Hardware and lets this one's Disconnected event (fired by the old
// Hardware's own teardown) find d.hw already pointing elsewhere, so it
// exits quietly instead of removing the just-spliced device.
func (m *Manager) watchDisconnect(d *device, hw *hardware.Hardware) {
	for ev := range hw.Events() {
		switch ev.Kind {
		case hardware.Disconnected:
			d.mu.Lock()
			current := d.hw
			d.mu.Unlock()
			if current == hw {
				m.removeDevice(d.index)
			}
			return
		case hardware.Notification:
			m.publishReading(d, ev)
		}
	}
}

// publishReading maps a Notification event back to the InputReading it
// corresponds to by matching the notifying endpoint against the device's
// declared features, and forwards it as an EventInputReading.
func (m *Manager) publishReading(d *device, ev hardware.Event) {
	endpoint := ev.NotificationEndpoint()
	payload := ev.NotificationData()
	for _, candidate := range inputCandidatesForEndpoint(endpoint) {
		for _, f := range d.features {
			if _, ok := f.Input[candidate]; !ok {
				continue
			}
			data := make([]int32, len(payload))
			for i, b := range payload {
				data[i] = int32(b)
			}
			m.broadcast(Event{Kind: EventInputReading, Reading: message.InputReading{
				DeviceIndex:  d.index,
				FeatureIndex: f.FeatureIndex,
				InputType:    candidate,
				Data:         data,
			}})
			return
		}
	}
}

// inputCandidatesForEndpoint lists, in priority order, the InputTypes a
// notification on e could plausibly represent. Endpoint names only
// distinguish the bus channel, not the feature semantics, so a device
// config declaring more than one Input type over the same endpoint is
// disambiguated by whichever candidate the device actually declares first.
func inputCandidatesForEndpoint(e hardware.Endpoint) []message.InputType {
	switch e {
	case hardware.EndpointBattery:
		return []message.InputType{message.InputBattery}
	case hardware.EndpointRSSI:
		return []message.InputType{message.InputRSSI}
	case hardware.EndpointRx:
		return []message.InputType{message.InputButton, message.InputPressure, message.InputRaw}
	default:
		return nil
	}
}

func (m *Manager) removeDevice(index uint32) {
	m.mu.Lock()
	d, ok := m.devices[index]
	if ok {
		delete(m.devices, index)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	close(d.done)
	d.stopKeepalive()
	m.broadcast(Event{Kind: EventDeviceRemoved, Removed: index})
}

// Submit enqueues fn on device index's single-writer command gate, the
// per-device serialization point of §4.5.
func (m *Manager) Submit(index uint32, fn func()) error {
	m.mu.Lock()
	d, ok := m.devices[index]
	m.mu.Unlock()
	if !ok {
		return teleoperr.New(teleoperr.Device, teleoperr.DeviceNotConnected, "no device at this index")
	}
	select {
	case d.commands <- fn:
		return nil
	case <-d.done:
		return teleoperr.New(teleoperr.Device, teleoperr.DeviceNotConnected, "device removed")
	}
}

// Device returns the adopted device at index, for handlers that need
// direct access to its Hardware/Handler (e.g. session dispatch).
func (m *Manager) Device(index uint32) (*hardware.Hardware, protocol.Handler, []message.DeviceFeature, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[index]
	if !ok {
		return nil, nil, nil, false
	}
	return d.hw, d.handler, d.features, true
}

func (d *device) runCommandLoop() {
	for {
		select {
		case fn := <-d.commands:
			fn()
		case <-d.done:
			return
		}
	}
}
