// Package serial implements the serial-port CommunicationManager over
// go.bug.st/serial, matching attached ports against a fixed allowlist.
package serial

import (
	"context"
	"sync"
	"time"

	goserial "go.bug.st/serial"
	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/hardware"
)

// Manager enumerates serial ports on a timer while scanning.
type Manager struct {
	Specifiers []comm.SerialSpecifier
	Poll       time.Duration

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	seen     map[string]struct{}

	events chan comm.Event
}

// New builds a Manager matching only the given specifiers.
func New(specifiers []comm.SerialSpecifier) *Manager {
	return &Manager{
		Specifiers: specifiers,
		Poll:       2 * time.Second,
		seen:       make(map[string]struct{}),
		events:     make(chan comm.Event, 8),
	}
}

func (m *Manager) Name() string  { return "serial" }
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
	ports, err := goserial.GetPortsList()
	if err != nil {
		return
	}
	for _, port := range ports {
		m.mu.Lock()
		if _, ok := m.seen[port]; ok {
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		var matched *comm.SerialSpecifier
		for i := range m.Specifiers {
			if m.Specifiers[i].Port == port || m.Specifiers[i].Port == "" {
				matched = &m.Specifiers[i]
				break
			}
		}
		if matched == nil {
			continue
		}

		m.mu.Lock()
		m.seen[port] = struct{}{}
		m.mu.Unlock()

		spec := comm.SerialSpecifier{Port: port, Baud: matched.Baud}
		m.events <- comm.Event{
			Kind: comm.EventDeviceFound,
			Found: comm.DeviceFound{
				Name:      port,
				Address:   port,
				Connector: connector{spec: spec},
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

type connector struct {
	spec comm.SerialSpecifier
}

func (c connector) Specifier() comm.Specifier { return c.spec }

func (c connector) Connect(ctx context.Context) (*hardware.Hardware, error) {
	baud := c.spec.Baud
	if baud <= 0 {
		baud = 115200
	}
	port, err := goserial.Open(c.spec.Port, &goserial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	b := &bus{port: port}
	return hardware.New(c.spec.Port, c.spec.Port, hardware.EndpointMap{
		hardware.EndpointTx: "line",
		hardware.EndpointRx: "line",
	}, b), nil
}
