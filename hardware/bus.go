// Package hardware presents the uniform async API of §4.7 over whatever
// bus library a CommunicationManager attaches (BlueZ D-Bus, HID, serial,
// a websocket device, an HTTP polling service). Concrete bus adapters are
// out of scope per spec §1 beyond this contract; comm/* packages supply
// thin Bus implementations.
package hardware

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by a Bus method a concrete adapter cannot
// implement, e.g. Subscribe on a bus with no server push.
var ErrUnsupported = errors.New("hardware: operation unsupported by this bus")

// Bus is the minimal surface a concrete adapter must provide; Hardware
// wraps one Bus instance and is the only thing that ever touches it,
// per the single-owning-I/O-task invariant of §4.7.
type Bus interface {
	// Write sends data to the bus identifier busID (e.g. a GATT
	// characteristic UUID, a HID report id, a serial port).
	Write(ctx context.Context, busID string, data []byte, withResponse bool) error

	// Read reads up to length bytes from busID, honoring ctx's deadline.
	Read(ctx context.Context, busID string, length int) ([]byte, error)

	// Subscribe begins delivering notifications for busID on the returned
	// channel. Subscribing twice on the same busID is idempotent: the same
	// channel is returned.
	Subscribe(ctx context.Context, busID string) (<-chan []byte, error)

	// Unsubscribe stops notification delivery for busID.
	Unsubscribe(ctx context.Context, busID string) error

	// Close tears down the bus connection entirely.
	Close() error
}

// EndpointMap resolves a device's abstract endpoint names (Tx, Rx, TxMode,
// Whitelist, Command, ...) to the concrete Bus identifiers a device
// configuration assigns them.
type EndpointMap map[Endpoint]string

// Endpoint is a named I/O channel on a hardware device.
type Endpoint string

const (
	EndpointTx        Endpoint = "tx"
	EndpointRx        Endpoint = "rx"
	EndpointTxMode    Endpoint = "txmode"
	EndpointWhitelist Endpoint = "whitelist"
	EndpointCommand   Endpoint = "command"
	EndpointFirmware  Endpoint = "firmware"
	EndpointBattery   Endpoint = "battery"
	EndpointRSSI      Endpoint = "rssi"
)

// DefaultReadTimeout is used by ReadValue callers that don't supply one.
const DefaultReadTimeout = 500 * time.Millisecond
