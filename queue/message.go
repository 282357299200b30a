package queue

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/enverbisevac/coord/errors"
	"github.com/google/uuid"
)

// Message is a unit of work travelling through a queue.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	// Payload is any JSON document, empty when the message carries none.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Timestamp is the creation time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	// RetryCount is the number of failed deliveries so far.
	RetryCount int `json:"retryCount"`
}

// NewMessage creates a message of the given type with a fresh id. payload is
// encoded as JSON; a nil payload leaves the message without one.
func NewMessage(typ string, payload any) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errors.InvalidArgument("queue: invalid %s payload", typ).Source(err)
	}
	msg.Payload = data
	return msg, nil
}

// Time returns the creation time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Bind decodes the payload into v.
func (m Message) Bind(v any) error {
	if len(m.Payload) == 0 {
		return errors.InvalidArgument("queue: message %s has no payload", m.ID)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return errors.InvalidArgument("queue: message %s payload", m.ID).Source(err)
	}
	return nil
}

// Encode serializes the message into its wire format.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.InvalidArgument("queue: encode message %s", m.ID).Source(err)
	}
	return data, nil
}

// Decode parses a message from its wire format. The payload is compacted,
// so decoding an encoded message yields the same bytes again.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, errors.InvalidArgument("queue: invalid message format").Source(err)
	}
	if len(m.Payload) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, m.Payload); err != nil {
			return Message{}, errors.InvalidArgument("queue: invalid message payload").Source(err)
		}
		m.Payload = buf.Bytes()
	}
	return m, nil
}
