// Package teleoperr implements the five-kind error taxonomy of the message
// protocol (Handshake, Message, Ping, Device, Unknown). Every error that can
// legally become a client-visible Error message is a *Err; anything else is
// an internal bug and is never shown to a client.
package teleoperr

import "fmt"

// Kind is the top-level error category carried on the wire ErrorCode.
type Kind int

const (
	Unknown Kind = iota
	Handshake
	Message
	Ping
	Device
)

func (k Kind) String() string {
	switch k {
	case Handshake:
		return "Handshake"
	case Message:
		return "Message"
	case Ping:
		return "Ping"
	case Device:
		return "Device"
	default:
		return "Unknown"
	}
}

// SubKind is the structured detail under a Kind. The zero value means "no
// sub-kind", which is valid for Unknown-kind errors that only carry a
// message.
type SubKind string

const (
	// Handshake sub-kinds.
	RequestServerInfoExpected SubKind = "RequestServerInfoExpected"
	HandshakeAlreadyHappened SubKind = "HandshakeAlreadyHappened"
	MessageSpecVersionMismatch SubKind = "MessageSpecVersionMismatch"

	// Message sub-kinds.
	UnexpectedMessageType   SubKind = "UnexpectedMessageType"
	ValidationError         SubKind = "ValidationError"
	MessageConversionError  SubKind = "MessageConversionError"
	MessageSerializationErr SubKind = "MessageSerializationError"

	// Ping sub-kinds.
	PingTimeout         SubKind = "PingTimeout"
	PingTimerNotRunning SubKind = "PingTimerNotRunning"
	InvalidPingTimeout  SubKind = "InvalidPingTimeout"

	// Device sub-kinds.
	DeviceNotConnected       SubKind = "DeviceNotConnected"
	DeviceNotAvailable       SubKind = "DeviceNotAvailable"
	MessageNotSupported      SubKind = "MessageNotSupported"
	DeviceFeatureCountMismatch SubKind = "DeviceFeatureCountMismatch"
	DeviceFeatureIndexError  SubKind = "DeviceFeatureIndexError"
	DeviceCommunicationError SubKind = "DeviceCommunicationError"
	InvalidEndpoint          SubKind = "InvalidEndpoint"
	DeviceStepRangeError     SubKind = "DeviceStepRangeError"
	ProtocolRequirementError SubKind = "ProtocolRequirementError"
	DeviceConfigurationError SubKind = "DeviceConfigurationError"
	DeviceFeatureMismatch    SubKind = "DeviceFeatureMismatch"
	DeviceConnectionError    SubKind = "DeviceConnectionError"

	// Unknown sub-kinds.
	NoDeviceCommManagers    SubKind = "NoDeviceCommManagers"
	DeviceManagerNotRunning SubKind = "DeviceManagerNotRunning"
)

// Err is the structured error shared by every subsystem. It is deliberately
// small: a kind, an optional sub-kind, a free-form message, and an optional
// pair of ints used by DeviceFeatureIndexError (have, want).
type Err struct {
	Kind    Kind
	Sub     SubKind
	Message string
	Have    int
	Want    int
}

func (e *Err) Error() string {
	if e.Sub == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s(%s): %s", e.Kind, e.Sub, e.Message)
}

// New builds a plain Err of the given kind and sub-kind.
func New(kind Kind, sub SubKind, msg string) *Err {
	return &Err{Kind: kind, Sub: sub, Message: msg}
}

// NewFeatureIndexError builds the DeviceFeatureIndexError variant, which
// carries the device's feature count and the offending index.
func NewFeatureIndexError(have, want int) *Err {
	return &Err{
		Kind:    Device,
		Sub:     DeviceFeatureIndexError,
		Message: fmt.Sprintf("feature index %d out of range (device has %d features)", want, have),
		Have:    have,
		Want:    want,
	}
}

// Is allows errors.Is to compare by Kind+Sub, ignoring Message/Have/Want.
func (e *Err) Is(target error) bool {
	t, ok := target.(*Err)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Sub == t.Sub
}
