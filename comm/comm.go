// Package comm defines the CommunicationManager contract of §6 and the
// aggregator that multiplexes any number of them for the device manager.
package comm

import (
	"context"

	"github.com/xmidt-org/teleop/hardware"
	"github.com/xmidt-org/teleop/message"
)

// Specifier is the discovery-time matcher of §3. Two specifiers are equal
// if their intrinsic identification criteria intersect; Match implements
// that relation for the specifier on the left.
type Specifier interface {
	// Match reports whether other identifies overlapping hardware (e.g.
	// name overlap, optionally wildcarded by a trailing "*").
	Match(other Specifier) bool
}

// BLESpecifier matches BluetoothLE advertisements by name and/or service.
type BLESpecifier struct {
	Names               []string
	AdvertisedServices  []string
	Services            map[string]map[string]string // service -> endpoint -> characteristic UUID
}

func (s BLESpecifier) Match(other Specifier) bool {
	o, ok := other.(BLESpecifier)
	if !ok {
		return false
	}
	if namesIntersect(s.Names, o.Names) {
		return true
	}
	return stringsIntersect(s.AdvertisedServices, o.AdvertisedServices)
}

// HIDSpecifier matches a USB HID vendor/product id pair.
type HIDSpecifier struct{ VID, PID uint16 }

func (s HIDSpecifier) Match(other Specifier) bool {
	o, ok := other.(HIDSpecifier)
	return ok && s.VID == o.VID && s.PID == o.PID
}

// USBSpecifier matches a raw USB vendor/product id pair.
type USBSpecifier struct{ VID, PID uint16 }

func (s USBSpecifier) Match(other Specifier) bool {
	o, ok := other.(USBSpecifier)
	return ok && s.VID == o.VID && s.PID == o.PID
}

// SerialSpecifier matches a serial port by name; Baud is not compared.
type SerialSpecifier struct {
	Port string
	Baud int
}

func (s SerialSpecifier) Match(other Specifier) bool {
	o, ok := other.(SerialSpecifier)
	return ok && s.Port == o.Port
}

// XInputSpecifier matches any attached XInput-class gamepad.
type XInputSpecifier struct{}

func (XInputSpecifier) Match(other Specifier) bool {
	_, ok := other.(XInputSpecifier)
	return ok
}

// LovenseConnectSpecifier matches devices surfaced by a local Lovense
// Connect app instance.
type LovenseConnectSpecifier struct{}

func (LovenseConnectSpecifier) Match(other Specifier) bool {
	_, ok := other.(LovenseConnectSpecifier)
	return ok
}

// WebsocketSpecifier matches a websocket-attached device announcing one of
// Names over its handshake headers.
type WebsocketSpecifier struct{ Names []string }

func (s WebsocketSpecifier) Match(other Specifier) bool {
	o, ok := other.(WebsocketSpecifier)
	return ok && namesIntersect(s.Names, o.Names)
}

func stringsIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func namesIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if wildcardMatch(x, y) || wildcardMatch(y, x) {
				return true
			}
		}
	}
	return false
}

// wildcardMatch reports whether candidate matches pattern, where pattern
// may end in "*" to mean "starts with".
func wildcardMatch(pattern, candidate string) bool {
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(candidate) >= len(prefix) && candidate[:len(prefix)] == prefix
	}
	return pattern == candidate
}

// HardwareConnector is handed to the device manager by a DeviceFound event;
// Connect finishes bringing the hardware up (bus dial/handshake) and
// returns the live hardware.Hardware; Specifier reports the connector's
// intrinsic specifier.
type HardwareConnector interface {
	Specifier() Specifier
	Connect(ctx context.Context) (*hardware.Hardware, error)
}

// DeviceFound is emitted by a CommunicationManager for each newly
// discovered device.
type DeviceFound struct {
	Name      string
	Address   string
	Connector HardwareConnector
}

// EventKind tags a CommunicationManager event.
type EventKind int

const (
	EventDeviceFound EventKind = iota
	EventScanningFinished
)

// Event is published on the channel supplied to a Manager at build time.
type Event struct {
	Kind  EventKind
	Found DeviceFound
}

// Manager is the CommunicationManager contract of §6.
type Manager interface {
	Name() string
	StartScanning(ctx context.Context) error
	StopScanning(ctx context.Context) error
	CanScan() bool
	ScanningStatus() bool
	Events() <-chan Event
}

// FeatureTemplate is what a Manager-adjacent protocol match contributes
// toward a newly discovered device's initial feature list, before
// deviceconfig overlays user customization. Kept here (rather than in
// deviceconfig) since comm managers construct HardwareConnectors that
// already know their endpoint layout.
type FeatureTemplate struct {
	Endpoints hardware.EndpointMap
	Features  []message.DeviceFeature
}
