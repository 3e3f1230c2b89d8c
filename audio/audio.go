// Package audio hosts the playback-side collaborator of the demo core. The
// core never runs DSP; this system owns the playback position and exposes the
// monotonic clock the synchronizer advances against.
package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hadronized/demo-05/bus"
	"github.com/hadronized/demo-05/errors"
	"github.com/hadronized/demo-05/message"
	"github.com/hadronized/demo-05/system"
)

// SystemID is the bus identity of the audio system.
const SystemID system.ID = "audio"

// Clock is a monotonic playback position. Implementations must never go
// backwards except through SetPosition.
type Clock interface {
	Position() time.Duration
}

// System tracks playback position from a start instant plus pause
// accounting. Its Tick entry point is driven by the embedder's audio
// callback loop, never by the core.
type System struct {
	logger *slog.Logger
	bus    *bus.Bus

	mu       sync.Mutex
	playing  bool
	base     time.Duration
	resumed  time.Time
	lastStep int64

	state system.State
}

// NewSystem creates the audio system on top of b.
func NewSystem(logger *slog.Logger, b *bus.Bus) *System {
	return &System{
		logger:   logger.With("system", string(SystemID)),
		bus:      b,
		lastStep: -1,
		state:    system.StateCreated,
	}
}

// Initialize subscribes to step advancement so the callback side can align
// buffers with the timeline.
func (s *System) Initialize() error {
	if s.state != system.StateCreated {
		return errors.Wrap(errors.ErrAlreadyStarted, "Audio", "Initialize", "state check")
	}
	_, err := s.bus.Register(SystemID, []message.Topic{message.TopicStepAdvanced}, s.handle)
	if err != nil {
		return errors.Wrap(err, "Audio", "Initialize", "bus registration")
	}
	s.state = system.StateInitialized
	return nil
}

// Start begins playback at the current position.
func (s *System) Start(ctx context.Context) error {
	if s.state != system.StateInitialized {
		return errors.Wrap(errors.ErrNotStarted, "Audio", "Start", "state check")
	}
	s.Play()
	s.state = system.StateStarted
	return nil
}

// Stop pauses playback and freezes the clock.
func (s *System) Stop(timeout time.Duration) error {
	if s.state != system.StateStarted {
		return errors.Wrap(errors.ErrNotStarted, "Audio", "Stop", "state check")
	}
	s.Pause()
	s.state = system.StateStopped
	return nil
}

// Metadata implements system identification for the runtime.
func (s *System) Metadata() system.Metadata {
	return system.Metadata{ID: SystemID, Description: "playback clock and position"}
}

// handle runs on a bus delivery goroutine; it only records the step, the
// audio callback path never blocks here.
func (s *System) handle(msg message.Message) {
	step, ok := msg.Payload().(*message.StepAdvanced)
	if !ok {
		return
	}
	s.mu.Lock()
	s.lastStep = step.Tick
	s.mu.Unlock()
}

// Play resumes the clock. Playing twice is a no-op.
func (s *System) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		return
	}
	s.playing = true
	s.resumed = time.Now()
}

// Pause freezes the clock, accumulating the elapsed position.
func (s *System) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.base += time.Since(s.resumed)
	s.playing = false
}

// Position implements Clock.
func (s *System) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return s.base
	}
	return s.base + time.Since(s.resumed)
}

// SetPosition repositions playback, used by seeks. The clock keeps running
// if it was running.
func (s *System) SetPosition(pos time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = pos
	if s.playing {
		s.resumed = time.Now()
	}
}

// LastStep returns the most recent step observed on the bus, or -1 before
// the first advancement.
func (s *System) LastStep() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStep
}

// Tick is the per-callback entry point invoked by the embedder's audio loop.
// It returns the position the callback should mix for.
func (s *System) Tick() time.Duration {
	return s.Position()
}
