package message

import "encoding/json"

// Topic identifies a typed message category routed by the bus.
type Topic string

// The topic catalog. This is the wire contract between systems and must stay
// stable for external collaborators to integrate against.
const (
	// TopicEntityLoaded announces a newly installed entity.
	TopicEntityLoaded Topic = "entity.loaded"
	// TopicEntityReloaded announces a generation bump for an installed entity.
	TopicEntityReloaded Topic = "entity.reloaded"
	// TopicEntityReplaced announces that a name collision retired an entity.
	TopicEntityReplaced Topic = "entity.replaced"
	// TopicLoadFailed announces a recoverable load failure.
	TopicLoadFailed Topic = "entity.load-failed"
	// TopicStepAdvanced announces synchronizer playback advancement.
	TopicStepAdvanced Topic = "step.advanced"
)

// String returns the raw topic name.
func (t Topic) String() string {
	return string(t)
}

// Payload represents the data carried by a message. All payloads in the
// catalog provide their topic, validate themselves, and serialize
// deterministically.
type Payload interface {
	// PayloadTopic returns the Topic this payload belongs to.
	PayloadTopic() Topic

	// Validate checks the payload data for correctness.
	Validate() error

	json.Marshaler
}
