package serializer

import (
	"github.com/xmidt-org/teleop/internal/teleoperr"
	"github.com/xmidt-org/teleop/message"
)

// Serializer is a per-session codec: binary frames are rejected, text
// frames are schema-validated, decoded at the negotiated SpecVersion, and
// (for outbound) encoded back at that version. It is not safe for
// concurrent use — one Serializer belongs to exactly one transport task,
// matching the ownership rule of §4.3's message sorter.
type Serializer struct {
	validator SchemaValidator
	version   *message.SpecVersion
}

// New builds a Serializer with no negotiated version yet.
func New(validator SchemaValidator) *Serializer {
	return &Serializer{validator: validator}
}

// Version reports the negotiated version, if the first Deserialize call has
// already happened.
func (s *Serializer) Version() (message.SpecVersion, bool) {
	if s.version == nil {
		return 0, false
	}
	return *s.version, true
}

// Deserialize validates payload against the schema, then decodes it into a
// non-empty slice of messages. The very first successful call records the
// session's negotiated version from the embedded RequestServerInfo; any
// other message type as the first payload is a HandshakeError.
func (s *Serializer) Deserialize(payload []byte) ([]message.Message, error) {
	if err := s.validator.Validate(payload); err != nil {
		return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageSerializationErr, err.Error())
	}

	if s.version == nil {
		msgs, err := message.DecodeEnvelope(payload, message.RegistryFor(message.Current))
		if err != nil {
			return nil, err
		}
		rsi, ok := msgs[0].(*message.RequestServerInfo)
		if !ok {
			return nil, teleoperr.New(teleoperr.Handshake, teleoperr.RequestServerInfoExpected,
				"first client message must be RequestServerInfo")
		}
		if !message.Supported(rsi.MessageVersion) {
			return nil, teleoperr.New(teleoperr.Handshake, teleoperr.MessageSpecVersionMismatch,
				"client requested a spec version newer than this server supports")
		}
		v := rsi.MessageVersion
		s.version = &v
		return msgs, nil
	}

	return message.DecodeEnvelope(payload, message.RegistryFor(*s.version))
}

// Serialize encodes msgs at the negotiated version. Before a version is
// negotiated, only all-Error payloads may be serialized (the watchdog/
// handshake-failure path); anything else at that point is an internal bug,
// and is itself reported back as a HandshakeError payload rather than
// panicking the caller.
func (s *Serializer) Serialize(msgs []message.Message) ([]byte, error) {
	if s.version == nil {
		for _, m := range msgs {
			if _, ok := m.(*message.Error); !ok {
				return message.EncodeEnvelope([]message.Message{
					message.NewError(0, teleoperr.New(teleoperr.Handshake, teleoperr.RequestServerInfoExpected,
						"internal error: attempted to serialize a non-Error message before handshake")),
				})
			}
		}
	}
	return message.EncodeEnvelope(msgs)
}
