package peer

import "github.com/vmihailenco/msgpack/v5"

// ControlLabel is the label of the data channel carrying control messages.
const ControlLabel = "control"

// Control message types.
const (
	ControlStreamInfo = "stream_info"
	ControlHandRaise  = "hand_raise"
)

// ControlMessage is one frame on the control data channel.
type ControlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// StreamInfo is sent by the teacher when the control channel opens.
type StreamInfo struct {
	ClassID string `msgpack:"classId"`
	Teacher string `msgpack:"teacher"`
	Video   bool   `msgpack:"video"`
	Audio   bool   `msgpack:"audio"`
}

// HandRaise is sent by a student to get the teacher's attention.
type HandRaise struct {
	Name string `msgpack:"name"`
	At   int64  `msgpack:"at"`
}

// NewControl creates a ControlMessage with the given type and payload
func NewControl(t string, payload any) (ControlMessage, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return ControlMessage{}, err
	}
	return ControlMessage{Type: t, Payload: b}, nil
}

// DecodePayload decodes the message payload into the provided struct
func (m ControlMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

func encodeControl(m ControlMessage) ([]byte, error) {
	return msgpack.Marshal(m)
}

func decodeControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	err := msgpack.Unmarshal(data, &m)
	return m, err
}
