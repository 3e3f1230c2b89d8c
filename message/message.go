// Package message defines the typed envelope and the topic catalog routed by
// the message bus. The catalog is the wire contract between systems: payload
// shapes are declared once and never change at runtime.
package message

import (
	"time"

	"github.com/hadronized/demo-05/system"
)

// Message represents the typed envelope routed between systems.
//
// Design principles:
//   - Infrastructure-agnostic: messages carry data, no routing or storage logic
//   - Closed catalog: topics and payload schemas are fixed at registration time
//   - Content-addressable: Hash enables cheap change comparison
type Message interface {
	// ID returns a unique identifier for this message instance.
	ID() string

	// Topic returns the routing topic of this message.
	Topic() Topic

	// Payload returns the typed payload.
	Payload() Payload

	// Sender returns the id of the publishing system.
	Sender() system.ID

	// Time returns the creation time of the envelope.
	Time() time.Time

	// Hash returns a content-based hash of topic and payload.
	Hash() string

	// Validate performs validation of the envelope and its payload.
	Validate() error
}
