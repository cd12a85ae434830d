// Package wsdevice implements the websocket-attached device
// CommunicationManager: an HTTP server that accepts inbound websocket
// connections from devices (not clients) and treats each connection as a
// newly discovered Hardware, mirroring the read/write-pump shape the
// teacher's vendored device/manager.go uses for client connections.
package wsdevice

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/hardware"
)

// Manager accepts websocket-attached devices on one HTTP listener.
type Manager struct {
	names    []string
	upgrader websocket.Upgrader

	mu       sync.Mutex
	scanning bool
	server   *http.Server

	events chan comm.Event
}

// New builds a Manager that will listen on addr ("host:port") for devices.
// Every upgraded connection is announced as a device named by its
// X-Teleop-Device-Name header ("websocket-device" when absent); names is
// stored but not used to filter connections.
func New(addr string, names []string) *Manager {
	m := &Manager{
		names:  names,
		events: make(chan comm.Event, 8),
	}
	r := mux.NewRouter()
	r.HandleFunc("/teleop/device", m.handleUpgrade)
	m.server = &http.Server{Addr: addr, Handler: r}
	return m
}

func (m *Manager) Name() string { return "websocket" }

func (m *Manager) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	scanning := m.scanning
	m.mu.Unlock()
	if !scanning {
		http.Error(w, "not scanning", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	name := r.Header.Get("X-Teleop-Device-Name")
	if name == "" {
		name = "websocket-device"
	}
	address := r.RemoteAddr

	bus := newBus(conn)
	hw := hardware.New(name, address, hardware.EndpointMap{
		hardware.EndpointTx: "tx",
		hardware.EndpointRx: "rx",
	}, bus)

	m.events <- comm.Event{
		Kind: comm.EventDeviceFound,
		Found: comm.DeviceFound{
			Name:    name,
			Address: address,
			Connector: staticConnector{
				spec: comm.WebsocketSpecifier{Names: []string{name}},
				hw:   hw,
			},
		},
	}
}

// staticConnector adapts an already-connected hardware.Hardware (the
// websocket upgrade already happened) to the comm.HardwareConnector shape
// the device manager expects.
type staticConnector struct {
	spec comm.Specifier
	hw   *hardware.Hardware
}

func (c staticConnector) Specifier() comm.Specifier { return c.spec }
func (c staticConnector) Connect(context.Context) (*hardware.Hardware, error) {
	return c.hw, nil
}

func (m *Manager) StartScanning(ctx context.Context) error {
	m.mu.Lock()
	already := m.scanning
	m.scanning = true
	m.mu.Unlock()
	if already {
		return nil
	}
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.events <- comm.Event{Kind: comm.EventScanningFinished}
		}
	}()
	return nil
}

func (m *Manager) StopScanning(ctx context.Context) error {
	m.mu.Lock()
	m.scanning = false
	m.mu.Unlock()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := m.server.Shutdown(shutdownCtx)
	m.events <- comm.Event{Kind: comm.EventScanningFinished}
	return err
}

func (m *Manager) CanScan() bool { return true }

func (m *Manager) ScanningStatus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanning
}

func (m *Manager) Events() <-chan comm.Event { return m.events }
