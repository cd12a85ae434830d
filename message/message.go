// Package message defines the tagged-variant message set exchanged with
// clients, and the total upgrade/downgrade functions that translate between
// a client's negotiated SpecVersion and Current (see translate.go).
//
// Every message is a Go struct implementing Message. Wire encoding wraps each
// struct in a single-key JSON object named by the message's wire name
// (messageName, so V2VibrateCmd encodes as "VibrateCmd"), following the
// "one top-level key equal to the message name" rule of spec §6; see
// json.go for the codec.
package message

// Message is implemented by every protocol message. Id is mutable only
// during construction; once sent, it is treated as immutable.
type Message interface {
	MsgID() uint32
	SetMsgID(uint32)
	messageName() string
}

// base is embedded by every concrete message type to supply the Id field
// and the Message plumbing.
type base struct {
	Id uint32
}

func (b *base) MsgID() uint32     { return b.Id }
func (b *base) SetMsgID(id uint32) { b.Id = id }

// EventID is the fixed id carried on every server-originated event message
// (DeviceAdded, DeviceRemoved, InputReading not tied to a request, the
// watchdog Error, ScanningFinished...).
const EventID uint32 = 0
