package message

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hadronized/demo-05/system"
)

// BaseMessage provides the standard implementation of the Message interface.
// It is immutable after creation, which keeps envelopes safe to fan out to
// every subscriber without copying.
type BaseMessage struct {
	id      string
	topic   Topic
	payload Payload
	sender  system.ID
	created time.Time
}

// Option is a functional option for configuring BaseMessage construction.
type Option func(*BaseMessage)

// WithTime sets a specific creation timestamp instead of time.Now().
// Useful for deterministic tests.
func WithTime(createdAt time.Time) Option {
	return func(m *BaseMessage) {
		m.created = createdAt
	}
}

// New creates a new envelope around payload. The topic is taken from the
// payload itself so an envelope can never disagree with its payload's schema.
func New(payload Payload, sender system.ID, opts ...Option) *BaseMessage {
	m := &BaseMessage{
		id:      uuid.New().String(),
		topic:   payload.PayloadTopic(),
		payload: payload,
		sender:  sender,
		created: time.Now(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ID returns the unique message identifier.
func (m *BaseMessage) ID() string { return m.id }

// Topic returns the routing topic.
func (m *BaseMessage) Topic() Topic { return m.topic }

// Payload returns the typed payload.
func (m *BaseMessage) Payload() Payload { return m.payload }

// Sender returns the publishing system id.
func (m *BaseMessage) Sender() system.ID { return m.sender }

// Time returns the envelope creation time.
func (m *BaseMessage) Time() time.Time { return m.created }

// Hash returns a sha256 over topic and payload JSON. Two envelopes carrying
// the same payload on the same topic hash identically regardless of ID.
func (m *BaseMessage) Hash() string {
	data, err := m.payload.MarshalJSON()
	if err != nil {
		return ""
	}

	h := sha256.New()
	h.Write([]byte(m.topic))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks the envelope and delegates to the payload.
func (m *BaseMessage) Validate() error {
	if m.topic == "" {
		return errors.New("message: empty topic")
	}
	if m.payload == nil {
		return errors.New("message: nil payload")
	}
	if m.sender == "" {
		return errors.New("message: empty sender")
	}
	if m.topic != m.payload.PayloadTopic() {
		return errors.New("message: topic does not match payload")
	}
	return m.payload.Validate()
}
