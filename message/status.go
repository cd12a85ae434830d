package message

import "github.com/xmidt-org/teleop/internal/teleoperr"

// ErrorCode is the wire-level numeric encoding of teleoperr.Kind. Clients
// that predate the structured Kind/SubKind split only ever see this code
// plus ErrorMessage, so the mapping here must stay append-only.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota
	ErrorHandshake
	ErrorPing
	ErrorMessageKind
	ErrorDevice
)

func errorCodeFor(k teleoperr.Kind) ErrorCode {
	switch k {
	case teleoperr.Handshake:
		return ErrorHandshake
	case teleoperr.Ping:
		return ErrorPing
	case teleoperr.Message:
		return ErrorMessageKind
	case teleoperr.Device:
		return ErrorDevice
	default:
		return ErrorUnknown
	}
}

// Ok is the generic success acknowledgement.
type Ok struct {
	base
}

func (*Ok) messageName() string { return "Ok" }

// NewOk builds an Ok response echoing the given request id.
func NewOk(id uint32) *Ok {
	return &Ok{base: base{Id: id}}
}

// Error is the generic failure response. ErrorCode/ErrorMessage is all a
// v0-v3 client ever decodes; Kind/SubKind ride along for Current clients and
// for server-internal matching.
type Error struct {
	base
	ErrorCode    ErrorCode
	ErrorMessage string
	Kind         teleoperr.Kind  `json:",omitempty"`
	Sub          teleoperr.SubKind `json:",omitempty"`
}

func (*Error) messageName() string { return "Error" }

// NewError builds an Error message with id, from a teleoperr.Err (or any
// error, which is reported under ErrorUnknown).
func NewError(id uint32, err error) *Error {
	e := &Error{base: base{Id: id}, ErrorMessage: err.Error()}
	if te, ok := err.(*teleoperr.Err); ok {
		e.ErrorCode = errorCodeFor(te.Kind)
		e.Kind = te.Kind
		e.Sub = te.Sub
	} else {
		e.ErrorCode = ErrorUnknown
	}
	return e
}
