// Package xinput implements the XInput gamepad CommunicationManager over
// simulatedsimian/joystick, surfacing a gamepad's analog axes as input
// features. Its bus rejects every write, so rumble motors are not driven.
package xinput

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/simulatedsimian/joystick"
	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/hardware"
)

// Manager polls the OS joystick device list while scanning.
type Manager struct {
	Poll time.Duration

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	seen     map[int]struct{}

	events chan comm.Event
}

// New builds a Manager. Any attached XInput-class device is matched;
// Specifier() is always comm.XInputSpecifier{}, as there is only one family.
func New() *Manager {
	return &Manager{
		Poll:   2 * time.Second,
		seen:   make(map[int]struct{}),
		events: make(chan comm.Event, 8),
	}
}

func (m *Manager) Name() string  { return "xinput" }
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
			m.probe()
		}
	}
}

const maxJoystickIndex = 8

func (m *Manager) probe() {
	for id := 0; id < maxJoystickIndex; id++ {
		m.mu.Lock()
		_, already := m.seen[id]
		m.mu.Unlock()
		if already {
			continue
		}

		js, err := joystick.Open(id)
		if err != nil {
			continue
		}
		name := js.Name()
		js.Close()

		m.mu.Lock()
		m.seen[id] = struct{}{}
		m.mu.Unlock()

		m.events <- comm.Event{
			Kind: comm.EventDeviceFound,
			Found: comm.DeviceFound{
				Name:      name,
				Address:   fmt.Sprintf("js%d", id),
				Connector: connector{id: id},
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
	id int
}

func (c connector) Specifier() comm.Specifier { return comm.XInputSpecifier{} }

func (c connector) Connect(ctx context.Context) (*hardware.Hardware, error) {
	js, err := joystick.Open(c.id)
	if err != nil {
		return nil, err
	}
	b := &bus{js: js, done: make(chan struct{})}
	return hardware.New(js.Name(), fmt.Sprintf("js%d", c.id), hardware.EndpointMap{
		hardware.EndpointTx: "rumble",
		hardware.EndpointRx: "axes",
	}, b), nil
}
