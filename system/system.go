// Package system defines the identity and lifecycle contract shared by every
// registered demo system (entity, synchronizer, graphics, audio).
package system

import (
	"fmt"

	"github.com/hadronized/demo-05/errors"
)

// ID uniquely identifies a registered system on the message bus.
type ID string

// String returns the raw identifier.
func (id ID) String() string {
	return string(id)
}

// Validate checks an ID for emptiness and unsafe characters.
func Validate(id ID) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "system", "Validate", "empty id")
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(
				fmt.Errorf("id %q contains invalid characters", id),
				"system", "Validate", "character check")
		}
	}
	return nil
}

// Metadata describes a system for discovery and logging.
type Metadata struct {
	ID          ID     `json:"id"`
	Description string `json:"description"`
	Version     string `json:"version"`
}
