package comm

import (
	"context"
	"sync"

	"github.com/xmidt-org/teleop/internal/teleoperr"
)

// Aggregator multiplexes any number of Managers for the device manager
// (§4.5): it fans out StartScanning/StopScanning, merges DeviceFound
// events, and emits one ScanningFinished only once every manager capable of
// scanning has reported finished since the last StartScanning.
type Aggregator struct {
	mu       sync.Mutex
	managers []Manager
	outstanding map[string]struct{}
	scanning    bool

	found  chan DeviceFound
	finish chan struct{}
}

// NewAggregator builds an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		outstanding: make(map[string]struct{}),
		found:       make(chan DeviceFound, 32),
		finish:      make(chan struct{}, 1),
	}
}

// Found returns the merged DeviceFound stream.
func (a *Aggregator) Found() <-chan DeviceFound { return a.found }

// Finished returns a channel that receives a value once every scanning
// manager has finished since the last StartScanning.
func (a *Aggregator) Finished() <-chan struct{} { return a.finish }

// Add registers a Manager and starts draining its event stream.
func (a *Aggregator) Add(m Manager) {
	a.mu.Lock()
	a.managers = append(a.managers, m)
	a.mu.Unlock()
	go a.drain(m)
}

func (a *Aggregator) drain(m Manager) {
	for ev := range m.Events() {
		switch ev.Kind {
		case EventDeviceFound:
			a.found <- ev.Found
		case EventScanningFinished:
			a.mu.Lock()
			delete(a.outstanding, m.Name())
			done := len(a.outstanding) == 0 && a.scanning
			if done {
				a.scanning = false
			}
			a.mu.Unlock()
			if done {
				select {
				case a.finish <- struct{}{}:
				default:
				}
			}
		}
	}
}

// StartScanning starts every capable manager. Starting while already
// scanning is idempotent.
func (a *Aggregator) StartScanning(ctx context.Context) error {
	a.mu.Lock()
	capable := make([]Manager, 0, len(a.managers))
	for _, m := range a.managers {
		if m.CanScan() {
			capable = append(capable, m)
		}
	}
	if len(capable) == 0 {
		a.mu.Unlock()
		return teleoperr.New(teleoperr.Unknown, teleoperr.NoDeviceCommManagers, "no registered CommunicationManager can scan")
	}
	a.outstanding = make(map[string]struct{}, len(capable))
	for _, m := range capable {
		a.outstanding[m.Name()] = struct{}{}
	}
	a.scanning = true
	a.mu.Unlock()

	for _, m := range capable {
		if err := m.StartScanning(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopScanning stops every manager.
func (a *Aggregator) StopScanning(ctx context.Context) error {
	a.mu.Lock()
	managers := append([]Manager(nil), a.managers...)
	a.mu.Unlock()
	for _, m := range managers {
		if err := m.StopScanning(ctx); err != nil {
			return err
		}
	}
	return nil
}
