// Package ble implements the BluetoothLE CommunicationManager over BlueZ's
// D-Bus API, grounded on other_examples' pible bluetooth/continuous.go
// (adapter discovery filter, StartDiscovery/StopDiscovery, GetManagedObjects
// advertisement snapshotting).
package ble

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/hardware"
)

const (
	bluezService    = "org.bluez"
	adapter1Iface   = "org.bluez.Adapter1"
	device1Iface    = "org.bluez.Device1"
	objectMgrIface  = "org.freedesktop.DBus.ObjectManager"
	discoverTimeout = 10 * time.Second
)

// Manager drives discovery on one BlueZ adapter and matches advertisements
// against a fixed set of known BLESpecifiers.
type Manager struct {
	AdapterID  string
	Specifiers []comm.BLESpecifier

	mu         sync.Mutex
	scanning   bool
	cancel     context.CancelFunc
	seen       map[string]struct{}
	connDialer func() (*dbus.Conn, error)

	events chan comm.Event
}

// New builds a Manager for the named adapter (e.g. "hci0").
func New(adapterID string, specifiers []comm.BLESpecifier) *Manager {
	return &Manager{
		AdapterID:  adapterID,
		Specifiers: specifiers,
		seen:       make(map[string]struct{}),
		connDialer: dbus.SystemBus,
		events:     make(chan comm.Event, 8),
	}
}

func (m *Manager) Name() string  { return "ble/" + m.AdapterID }
func (m *Manager) CanScan() bool { return true }

func (m *Manager) adapterPath() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + m.AdapterID)
}

func (m *Manager) StartScanning(ctx context.Context) error {
	m.mu.Lock()
	if m.scanning {
		m.mu.Unlock()
		return nil
	}
	scanCtx, cancel := context.WithCancel(context.Background())
	m.scanning = true
	m.cancel = cancel
	m.mu.Unlock()

	conn, err := m.connDialer()
	if err != nil {
		m.mu.Lock()
		m.scanning = false
		m.mu.Unlock()
		return err
	}

	go m.scanLoop(scanCtx, conn)
	return nil
}

func (m *Manager) scanLoop(ctx context.Context, conn *dbus.Conn) {
	defer conn.Close()
	adapterObj := conn.Object(bluezService, m.adapterPath())

	_ = adapterObj.CallWithContext(ctx, adapter1Iface+".SetDiscoveryFilter", 0, map[string]dbus.Variant{
		"Transport": dbus.MakeVariant("le"),
	}).Err

	startedByUs := adapterObj.CallWithContext(ctx, adapter1Iface+".StartDiscovery", 0).Err == nil
	if startedByUs {
		defer func() { _ = adapterObj.Call(adapter1Iface+".StopDiscovery", 0).Err }()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.events <- comm.Event{Kind: comm.EventScanningFinished}
			return
		case <-ticker.C:
			m.poll(ctx, conn)
		}
	}
}

func (m *Manager) poll(ctx context.Context, conn *dbus.Conn) {
	root := conn.Object(bluezService, dbus.ObjectPath("/"))
	call := root.CallWithContext(ctx, objectMgrIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return
	}
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := call.Store(&managed); err != nil {
		return
	}

	devPrefix := string(m.adapterPath()) + "/dev_"
	for path, ifaces := range managed {
		p := string(path)
		if !strings.HasPrefix(p, devPrefix) {
			continue
		}
		dev1, ok := ifaces[device1Iface]
		if !ok {
			continue
		}

		m.mu.Lock()
		if _, ok := m.seen[p]; ok {
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		name, _ := dev1["Name"]
		address, _ := dev1["Address"]
		uuidsVariant, hasUUIDs := dev1["UUIDs"]

		var names, uuids []string
		if nm, ok := name.Value().(string); ok {
			names = []string{nm}
		}
		if hasUUIDs {
			if u, ok := uuidsVariant.Value().([]string); ok {
				uuids = u
			}
		}

		candidate := comm.BLESpecifier{Names: names, AdvertisedServices: uuids}
		var matched *comm.BLESpecifier
		for i := range m.Specifiers {
			if m.Specifiers[i].Match(candidate) {
				matched = &m.Specifiers[i]
				break
			}
		}
		if matched == nil {
			continue
		}

		m.mu.Lock()
		m.seen[p] = struct{}{}
		m.mu.Unlock()

		addr, _ := address.Value().(string)
		devName, _ := name.Value().(string)
		m.events <- comm.Event{
			Kind: comm.EventDeviceFound,
			Found: comm.DeviceFound{
				Name:    devName,
				Address: addr,
				Connector: connector{
					spec:       *matched,
					devicePath: path,
				},
			},
		}
	}
}

func (m *Manager) StopScanning(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.scanning = false
	m.mu.Unlock()
	return nil
}

func (m *Manager) ScanningStatus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanning
}

func (m *Manager) Events() <-chan comm.Event { return m.events }

// connector dials the GATT connection for one discovered peripheral once
// the device manager decides to adopt it.
type connector struct {
	spec       comm.BLESpecifier
	devicePath dbus.ObjectPath
}

func (c connector) Specifier() comm.Specifier { return c.spec }

func (c connector) Connect(ctx context.Context) (*hardware.Hardware, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	devObj := conn.Object(bluezService, c.devicePath)
	if err := devObj.CallWithContext(ctx, device1Iface+".Connect", 0).Err; err != nil {
		conn.Close()
		return nil, err
	}

	deadline := time.Now().Add(discoverTimeout)
	for !servicesResolved(ctx, conn, c.devicePath) {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	endpoints := make(hardware.EndpointMap, len(c.spec.Services))
	charUUIDs := make(map[hardware.Endpoint]string, len(c.spec.Services))
	for svc, eps := range c.spec.Services {
		for ep, charUUID := range eps {
			endpoints[hardware.Endpoint(ep)] = charUUID
			charUUIDs[hardware.Endpoint(ep)] = svc
		}
	}

	b := &bus{conn: conn, devicePath: c.devicePath, subs: make(map[string]chan []byte)}
	name, _ := devicePropertyString(ctx, conn, c.devicePath, "Name")
	return hardware.New(name, string(c.devicePath), endpoints, b), nil
}

func servicesResolved(ctx context.Context, conn *dbus.Conn, devPath dbus.ObjectPath) bool {
	v, err := devicePropertyBool(ctx, conn, devPath, "ServicesResolved")
	return err == nil && v
}
