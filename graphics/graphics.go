// Package graphics hosts the render-side collaborator of the demo core. The
// core never renders; this system tracks which installed entities changed so
// the embedder's render loop can rebuild GPU state between frames.
package graphics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hadronized/demo-05/bus"
	"github.com/hadronized/demo-05/entity"
	"github.com/hadronized/demo-05/errors"
	"github.com/hadronized/demo-05/message"
	"github.com/hadronized/demo-05/system"
)

// SystemID is the bus identity of the graphics system.
const SystemID system.ID = "graphics"

// System consumes entity lifecycle messages and exposes a per-frame Tick
// entry point. The frame path only reads installed snapshots; parsing and
// I/O happened on the entity workers long before.
type System struct {
	logger *slog.Logger
	bus    *bus.Bus
	store  *entity.Store

	mu          sync.Mutex
	generations map[string]uint64
	dirty       map[string]bool
	frame       int64
	lastStep    int64

	state system.State
}

// NewSystem creates the graphics system reading snapshots from store.
func NewSystem(logger *slog.Logger, b *bus.Bus, store *entity.Store) *System {
	return &System{
		logger:      logger.With("system", string(SystemID)),
		bus:         b,
		store:       store,
		generations: make(map[string]uint64),
		dirty:       make(map[string]bool),
		lastStep:    -1,
		state:       system.StateCreated,
	}
}

// Initialize subscribes to entity lifecycle and step advancement.
func (s *System) Initialize() error {
	if s.state != system.StateCreated {
		return errors.Wrap(errors.ErrAlreadyStarted, "Graphics", "Initialize", "state check")
	}
	_, err := s.bus.Register(SystemID, []message.Topic{
		message.TopicEntityLoaded,
		message.TopicEntityReloaded,
		message.TopicEntityReplaced,
		message.TopicStepAdvanced,
	}, s.handle)
	if err != nil {
		return errors.Wrap(err, "Graphics", "Initialize", "bus registration")
	}
	s.state = system.StateInitialized
	return nil
}

// Start marks the system running; the render loop itself belongs to the
// embedder.
func (s *System) Start(ctx context.Context) error {
	if s.state != system.StateInitialized {
		return errors.Wrap(errors.ErrNotStarted, "Graphics", "Start", "state check")
	}
	s.state = system.StateStarted
	return nil
}

// Stop marks the system stopped.
func (s *System) Stop(timeout time.Duration) error {
	if s.state != system.StateStarted {
		return errors.Wrap(errors.ErrNotStarted, "Graphics", "Stop", "state check")
	}
	s.state = system.StateStopped
	return nil
}

// Metadata implements system identification for the runtime.
func (s *System) Metadata() system.Metadata {
	return system.Metadata{ID: SystemID, Description: "render-side entity cache"}
}

// handle runs on a bus delivery goroutine. It only updates the generation
// cache; snapshot reads happen on the frame path.
func (s *System) handle(msg message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch payload := msg.Payload().(type) {
	case *message.EntityLoaded:
		s.markLocked(payload.Name, payload.Generation)
	case *message.EntityReloaded:
		s.markLocked(payload.Name, payload.Generation)
	case *message.EntityReplaced:
		// The follow-up EntityLoaded carries the new generation; the
		// replacement itself just invalidates derived state.
		s.dirty[payload.Name] = true
	case *message.StepAdvanced:
		s.lastStep = payload.Tick
	}
}

// markLocked records a generation bump. Generations never go backwards, so a
// stale delivery is ignored.
func (s *System) markLocked(name string, generation uint64) {
	if cached, ok := s.generations[name]; ok && generation < cached {
		return
	}
	s.generations[name] = generation
	s.dirty[name] = true
}

// Tick is the per-frame entry point invoked by the embedder's render loop.
// It re-reads the snapshot of every invalidated entity and returns the names
// refreshed this frame.
func (s *System) Tick() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.dirty))
	for name := range s.dirty {
		names = append(names, name)
	}
	s.dirty = make(map[string]bool)
	s.frame++
	s.mu.Unlock()

	refreshed := names[:0]
	for _, name := range names {
		e, ok := s.store.Get(name)
		if !ok {
			// Marked dirty but never installed; nothing to rebuild.
			continue
		}
		s.logger.Debug("rebuilding derived state",
			"name", name, "variant", e.Variant.String(), "generation", e.Generation)
		refreshed = append(refreshed, name)
	}
	return refreshed
}

// Generation returns the cached generation for name.
func (s *System) Generation(name string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.generations[name]
	return g, ok
}

// LastStep returns the most recent step observed on the bus, or -1.
func (s *System) LastStep() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStep
}

// Frame returns the frame counter.
func (s *System) Frame() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}
