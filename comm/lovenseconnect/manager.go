// Package lovenseconnect implements the CommunicationManager for devices
// surfaced by a locally running Lovense Connect app, grounded on
// original_source's lovense_connect_service_comm_manager.rs: the app
// exposes an HTTP service on localhost that answers a toy list, and each
// toy is itself addressed over further localhost HTTP calls.
package lovenseconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/xmidt-org/teleop/comm"
	"github.com/xmidt-org/teleop/internal/xhttp"
)

// DefaultBaseURL is the well-known local address the Lovense Connect app
// listens on.
const DefaultBaseURL = "http://127.0.0.1:30010"

type toy struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Manager polls DefaultBaseURL (or BaseURL) for the current toy list while
// scanning is active.
type Manager struct {
	BaseURL string
	Poll    time.Duration
	do      xhttp.Transactor

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	seen     map[string]struct{}

	events chan comm.Event
}

// New builds a Manager polling every poll interval (defaults to 1s).
func New(baseURL string, poll time.Duration) *Manager {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if poll <= 0 {
		poll = time.Second
	}
	c := &http.Client{Timeout: 2 * time.Second}
	return &Manager{
		BaseURL: baseURL,
		Poll:    poll,
		do:      xhttp.RetryTransactor(xhttp.RetryOptions{Retries: 1}, c.Do),
		seen:    make(map[string]struct{}),
		events:  make(chan comm.Event, 8),
	}
}

func (m *Manager) Name() string  { return "lovense-connect" }
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

func (m *Manager) StopScanning(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.scanning = false
	m.mu.Unlock()
	m.events <- comm.Event{Kind: comm.EventScanningFinished}
	return nil
}

func (m *Manager) ScanningStatus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanning
}

func (m *Manager) Events() <-chan comm.Event { return m.events }

func (m *Manager) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			toys, err := m.fetchToys(ctx)
			if err != nil {
				continue
			}
			m.mu.Lock()
			for _, t := range toys {
				if _, ok := m.seen[t.ID]; ok {
					continue
				}
				m.seen[t.ID] = struct{}{}
				m.mu.Unlock()
				m.events <- comm.Event{
					Kind: comm.EventDeviceFound,
					Found: comm.DeviceFound{
						Name:    t.Name,
						Address: t.ID,
						Connector: connector{
							baseURL: m.BaseURL,
							do:      m.do,
							toyID:   t.ID,
							name:    t.Name,
						},
					},
				}
				m.mu.Lock()
			}
			m.mu.Unlock()
		}
	}
}

func (m *Manager) fetchToys(ctx context.Context) ([]toy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BaseURL+"/GetToys", nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lovense connect service returned %d", resp.StatusCode)
	}
	var out map[string]toy
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	toys := make([]toy, 0, len(out))
	for _, t := range out {
		toys = append(toys, t)
	}
	return toys, nil
}
