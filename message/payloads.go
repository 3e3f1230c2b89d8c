package message

import (
	"encoding/json"
	"errors"
	"time"
)

// EntityLoaded is published when an entity is installed for the first time
// under its canonical name.
type EntityLoaded struct {
	Name       string `json:"name"`
	Variant    string `json:"variant"`
	Generation uint64 `json:"generation"`
}

// PayloadTopic implements Payload.
func (p *EntityLoaded) PayloadTopic() Topic { return TopicEntityLoaded }

// Validate implements Payload.
func (p *EntityLoaded) Validate() error {
	if p.Name == "" {
		return errors.New("entity loaded: empty name")
	}
	if p.Variant == "" {
		return errors.New("entity loaded: empty variant")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *EntityLoaded) MarshalJSON() ([]byte, error) {
	type alias EntityLoaded
	return json.Marshal((*alias)(p))
}

// EntityReloaded is published when a watched source changed and the entity was
// re-installed under the same canonical name with a bumped generation.
// Consumers must treat the generation bump as cache invalidation for the name,
// never as a new identity.
type EntityReloaded struct {
	Name       string `json:"name"`
	Generation uint64 `json:"generation"`
}

// PayloadTopic implements Payload.
func (p *EntityReloaded) PayloadTopic() Topic { return TopicEntityReloaded }

// Validate implements Payload.
func (p *EntityReloaded) Validate() error {
	if p.Name == "" {
		return errors.New("entity reloaded: empty name")
	}
	if p.Generation == 0 {
		return errors.New("entity reloaded: generation must be positive")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *EntityReloaded) MarshalJSON() ([]byte, error) {
	type alias EntityReloaded
	return json.Marshal((*alias)(p))
}

// EntityReplaced is published before an entity is retired because another load
// resolved to the same canonical name (last successful load wins).
type EntityReplaced struct {
	Name          string `json:"name"`
	OldGeneration uint64 `json:"old_generation"`
	NewGeneration uint64 `json:"new_generation"`
}

// PayloadTopic implements Payload.
func (p *EntityReplaced) PayloadTopic() Topic { return TopicEntityReplaced }

// Validate implements Payload.
func (p *EntityReplaced) Validate() error {
	if p.Name == "" {
		return errors.New("entity replaced: empty name")
	}
	if p.NewGeneration < p.OldGeneration {
		return errors.New("entity replaced: generation went backwards")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *EntityReplaced) MarshalJSON() ([]byte, error) {
	type alias EntityReplaced
	return json.Marshal((*alias)(p))
}

// LoadFailed is published for every recoverable load failure (dispatch, parse,
// exhausted watcher retries). Runtime failures never crash the process.
type LoadFailed struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// PayloadTopic implements Payload.
func (p *LoadFailed) PayloadTopic() Topic { return TopicLoadFailed }

// Validate implements Payload.
func (p *LoadFailed) Validate() error {
	if p.Source == "" {
		return errors.New("load failed: empty source")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *LoadFailed) MarshalJSON() ([]byte, error) {
	type alias LoadFailed
	return json.Marshal((*alias)(p))
}

// StepAdvanced is published by the synchronizer whenever playback advanced to
// a new tick.
type StepAdvanced struct {
	Tick      int64         `json:"tick"`
	AudioTime time.Duration `json:"audio_time"`
}

// PayloadTopic implements Payload.
func (p *StepAdvanced) PayloadTopic() Topic { return TopicStepAdvanced }

// Validate implements Payload.
func (p *StepAdvanced) Validate() error {
	if p.Tick < 0 {
		return errors.New("step advanced: negative tick")
	}
	if p.AudioTime < 0 {
		return errors.New("step advanced: negative audio time")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *StepAdvanced) MarshalJSON() ([]byte, error) {
	type alias StepAdvanced
	return json.Marshal((*alias)(p))
}
