package entity

import (
	"sync"
)

// InstallOutcome describes what Install did with an entity.
type InstallOutcome int

const (
	// OutcomeUnchanged means the content hash matched the installed entity;
	// nothing was published.
	OutcomeUnchanged InstallOutcome = iota
	// OutcomeLoaded means the name was previously unbound.
	OutcomeLoaded
	// OutcomeReloaded means the same source produced new content.
	OutcomeReloaded
	// OutcomeReplaced means a different source claimed an occupied name.
	OutcomeReplaced
)

// InstallResult reports the outcome of one Install call together with the
// generation bookkeeping needed to publish the right messages.
type InstallResult struct {
	Outcome       InstallOutcome
	Generation    uint64
	OldGeneration uint64
}

// Store is the installed-entity table. Lookups take a read lock; Install
// swaps entries atomically so readers always see either the old or the new
// entity, never a partial state. Generations per name start at zero and only
// grow.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entity
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Entity),
	}
}

// Get returns the installed entity for name, or false if the name is
// unbound.
func (s *Store) Get(name string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// GetVariant returns the installed entity for name only if it carries the
// requested variant.
func (s *Store) GetVariant(name string, v Variant) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok || e.Variant != v {
		return nil, false
	}
	return e, true
}

// Install binds name to the decoded payload and reports what happened.
//
// Identical content from the same source is a no-op. New content from the
// same source bumps the generation. A different source claiming an occupied
// name replaces the previous binding (last writer wins) and also bumps the
// generation, so consumers holding the old entity can detect staleness.
func (s *Store) Install(name string, src Source, v Variant, payload Decoded, contentHash string) InstallResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, occupied := s.entries[name]
	if occupied {
		if prev.contentHash == contentHash && prev.Source.Key() == src.Key() {
			return InstallResult{Outcome: OutcomeUnchanged, Generation: prev.Generation}
		}

		next := &Entity{
			Name:        name,
			Variant:     v,
			Payload:     payload,
			Source:      src,
			Generation:  prev.Generation + 1,
			contentHash: contentHash,
		}
		s.entries[name] = next

		outcome := OutcomeReloaded
		if prev.Source.Key() != src.Key() {
			outcome = OutcomeReplaced
		}
		return InstallResult{
			Outcome:       outcome,
			Generation:    next.Generation,
			OldGeneration: prev.Generation,
		}
	}

	next := &Entity{
		Name:        name,
		Variant:     v,
		Payload:     payload,
		Source:      src,
		Generation:  0,
		contentHash: contentHash,
	}
	s.entries[name] = next
	return InstallResult{Outcome: OutcomeLoaded, Generation: 0}
}

// Names returns the currently bound canonical names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	return out
}

// Len returns the number of bound names.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
