// Package hid implements the USB HID CommunicationManager over
// sstallion/go-hid, matching attached devices against a fixed VID/PID
// allowlist the way BLE discovery matches advertisements.
package hid

import (
	"context"
	"fmt"
	"sync"
	"time"

	hidapi "github.com/sstallion/go-hid"
	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/hardware"
)

// Manager enumerates USB HID devices on a timer while scanning.
type Manager struct {
	Specifiers []comm.HIDSpecifier
	Poll       time.Duration

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	seen     map[string]struct{}

	events chan comm.Event
}

// New builds a Manager matching only the given specifiers.
func New(specifiers []comm.HIDSpecifier) *Manager {
	return &Manager{
		Specifiers: specifiers,
		Poll:       2 * time.Second,
		seen:       make(map[string]struct{}),
		events:     make(chan comm.Event, 8),
	}
}

func (m *Manager) Name() string  { return "hid" }
func (m *Manager) CanScan() bool { return true }

func (m *Manager) StartScanning(ctx context.Context) error {
	m.mu.Lock()
	if m.scanning {
		m.mu.Unlock()
		return nil
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	m.scanning = true
	m.cancel = cancel
	m.mu.Unlock()

	go m.pollLoop(pollCtx)
	return nil
}

func (m *Manager) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.events <- comm.Event{Kind: comm.EventScanningFinished}
			return
		case <-ticker.C:
			m.enumerate()
		}
	}
}

func (m *Manager) enumerate() {
	_ = hidapi.Enumerate(hidapi.VendorIDAny, hidapi.ProductIDAny, func(info *hidapi.DeviceInfo) error {
		key := fmt.Sprintf("%04x:%04x:%s", info.VendorID, info.ProductID, info.Path)
		m.mu.Lock()
		if _, ok := m.seen[key]; ok {
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		candidate := comm.HIDSpecifier{VID: info.VendorID, PID: info.ProductID}
		var matched bool
		for _, s := range m.Specifiers {
			if s.Match(candidate) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}

		m.mu.Lock()
		m.seen[key] = struct{}{}
		m.mu.Unlock()

		m.events <- comm.Event{
			Kind: comm.EventDeviceFound,
			Found: comm.DeviceFound{
				Name:      info.ProductStr,
				Address:   info.Path,
				Connector: connector{spec: candidate, path: info.Path},
			},
		}
		return nil
	})
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

type connector struct {
	spec comm.HIDSpecifier
	path string
}

func (c connector) Specifier() comm.Specifier { return c.spec }

func (c connector) Connect(ctx context.Context) (*hardware.Hardware, error) {
	dev, err := hidapi.OpenPath(c.path)
	if err != nil {
		return nil, err
	}
	b := &bus{dev: dev}
	return hardware.New(fmt.Sprintf("hid:%04x:%04x", c.spec.VID, c.spec.PID), c.path, hardware.EndpointMap{
		hardware.EndpointTx: "report",
		hardware.EndpointRx: "report",
	}, b), nil
}
