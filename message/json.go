package message

import (
	"encoding/json"
	"fmt"

	"github.com/xmidt-org/teleop/internal/teleoperr"
)

// EncodeEnvelope marshals a slice of messages into the wire array-of-single-key-objects
// form: [{"Ok":{"Id":1}}, {"ServerInfo":{...}}].
func EncodeEnvelope(msgs []Message) ([]byte, error) {
	out := make([]map[string]Message, len(msgs))
	for i, m := range msgs {
		out[i] = map[string]Message{m.messageName(): m}
	}
	return json.Marshal(out)
}

// DecodeEnvelope unmarshals a wire array using reg to resolve each object's
// single key to a concrete Go type. It fails closed: any object that isn't
// exactly one key, or whose key isn't in reg, is a MessageSerializationError.
func DecodeEnvelope(data []byte, reg Registry) ([]Message, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageSerializationErr, err.Error())
	}
	if len(raw) == 0 {
		return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageSerializationErr, "empty message array")
	}

	msgs := make([]Message, 0, len(raw))
	for _, obj := range raw {
		if len(obj) != 1 {
			return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageSerializationErr,
				fmt.Sprintf("expected exactly one key per message object, got %d", len(obj)))
		}
		for name, body := range obj {
			ctor, ok := reg[name]
			if !ok {
				return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageSerializationErr,
					fmt.Sprintf("unknown message type %q", name))
			}
			m := ctor()
			if err := json.Unmarshal(body, m); err != nil {
				return nil, teleoperr.New(teleoperr.Message, teleoperr.MessageSerializationErr, err.Error())
			}
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}
