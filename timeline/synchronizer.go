// Package timeline advances demo playback. The synchronizer derives discrete
// ticks from the audio clock and broadcasts every advancement, so graphics
// and audio stay locked to the same position without polling each other.
package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hadronized/demo-05/audio"
	"github.com/hadronized/demo-05/bus"
	"github.com/hadronized/demo-05/errors"
	"github.com/hadronized/demo-05/message"
	"github.com/hadronized/demo-05/metric"
	"github.com/hadronized/demo-05/system"
)

// SystemID is the bus identity of the synchronizer.
const SystemID system.ID = "sync"

// State is the synchronizer state machine position.
type State int

// Synchronizer states. The numeric values feed the state gauge.
const (
	StateStopped State = iota
	StatePlaying
	StatePaused
	StateSeeking
	StateFinished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateSeeking:
		return "seeking"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Positioner repositions audio playback during seeks.
type Positioner interface {
	SetPosition(time.Duration)
}

// LoadCanceller cancels pending step-tagged entity loads outside a tick
// range.
type LoadCanceller interface {
	CancelOutside(lo, hi int64) int
}

// Config sizes the timeline.
type Config struct {
	// BPM is the soundtrack tempo.
	BPM float64
	// RowsPerBeat is the tick subdivision per beat.
	RowsPerBeat int
	// Length is the total tick count; reaching it finishes playback.
	Length int64
	// Poll is the clock sampling cadence.
	Poll time.Duration
}

// Validate checks the timeline sizing.
func (c Config) Validate() error {
	if c.BPM <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: bpm must be positive", errors.ErrInvalidConfig), "Config", "Validate", "bpm check")
	}
	if c.RowsPerBeat <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: rows per beat must be positive", errors.ErrInvalidConfig), "Config", "Validate", "rows check")
	}
	if c.Length <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: length must be positive", errors.ErrInvalidConfig), "Config", "Validate", "length check")
	}
	return nil
}

// TicksPerSecond returns the tick rate implied by tempo and subdivision.
func (c Config) TicksPerSecond() float64 {
	return c.BPM * float64(c.RowsPerBeat) / 60.0
}

// Synchronizer is the playback state machine. All transitions and tick
// advancement happen under one mutex; the poll loop only samples the clock
// and publishes, it never blocks on I/O.
type Synchronizer struct {
	logger  *slog.Logger
	bus     *bus.Bus
	clock   audio.Clock
	audio   Positioner
	loads   LoadCanceller
	metrics *metric.Metrics
	cfg     Config

	mu    sync.Mutex
	state State
	tick  int64

	cancel context.CancelFunc
	done   chan struct{}

	lifecycle system.State
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithMetrics attaches synchronizer gauges.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// WithLoadCanceller wires seek cancellation of pending entity loads.
func WithLoadCanceller(lc LoadCanceller) Option {
	return func(s *Synchronizer) { s.loads = lc }
}

// New creates a synchronizer reading clock and repositioning pos on seeks.
func New(logger *slog.Logger, b *bus.Bus, cfg Config, clock audio.Clock, pos Positioner, opts ...Option) *Synchronizer {
	if cfg.Poll <= 0 {
		cfg.Poll = 5 * time.Millisecond
	}
	s := &Synchronizer{
		logger:    logger.With("system", string(SystemID)),
		bus:       b,
		clock:     clock,
		audio:     pos,
		cfg:       cfg,
		state:     StateStopped,
		tick:      -1,
		lifecycle: system.StateCreated,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize validates the configuration and registers the synchronizer as a
// bus publisher.
func (s *Synchronizer) Initialize() error {
	if s.lifecycle != system.StateCreated {
		return errors.Wrap(errors.ErrAlreadyStarted, "Synchronizer", "Initialize", "state check")
	}
	if err := s.cfg.Validate(); err != nil {
		return errors.Wrap(err, "Synchronizer", "Initialize", "config validation")
	}
	if _, err := s.bus.Register(SystemID, nil, nil); err != nil {
		return errors.Wrap(err, "Synchronizer", "Initialize", "bus registration")
	}
	s.lifecycle = system.StateInitialized
	return nil
}

// Start launches the poll loop. A missing audio clock is the one fatal
// condition; transient desync later is corrected by re-reading the clock.
func (s *Synchronizer) Start(ctx context.Context) error {
	if s.lifecycle != system.StateInitialized {
		return errors.Wrap(errors.ErrNotStarted, "Synchronizer", "Start", "state check")
	}
	if s.clock == nil {
		return errors.WrapFatal(errors.ErrNoAudioClock, "Synchronizer", "Start", "clock check")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)

	s.lifecycle = system.StateStarted
	s.logger.Info("synchronizer started",
		"ticks_per_second", s.cfg.TicksPerSecond(), "length", s.cfg.Length)
	return nil
}

// Stop ends the poll loop.
func (s *Synchronizer) Stop(timeout time.Duration) error {
	if s.lifecycle != system.StateStarted {
		return errors.Wrap(errors.ErrNotStarted, "Synchronizer", "Stop", "state check")
	}
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(timeout):
		return errors.Wrap(errors.ErrStopTimeout, "Synchronizer", "Stop", "loop drain")
	}
	s.lifecycle = system.StateStopped
	return nil
}

// Metadata implements system identification for the runtime.
func (s *Synchronizer) Metadata() system.Metadata {
	return system.Metadata{ID: SystemID, Description: "playback step state machine"}
}

func (s *Synchronizer) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Advance()
		}
	}
}

// State returns the current state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tick returns the last published tick, or -1 before playback.
func (s *Synchronizer) Tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Play starts playback from Stopped or resumes from Paused.
func (s *Synchronizer) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStopped, StatePaused:
		s.setStateLocked(StatePlaying)
		return nil
	default:
		return s.badTransitionLocked("Play")
	}
}

// Pause suspends playback.
func (s *Synchronizer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return s.badTransitionLocked("Pause")
	}
	s.setStateLocked(StatePaused)
	return nil
}

// Seek repositions playback at target. Pending entity loads tagged with
// steps outside [target, length] are cancelled best effort, audio is
// repositioned, and playback resumes with the next published tick equal to
// target. This is the one sanctioned break in tick monotonicity.
func (s *Synchronizer) Seek(target int64) error {
	s.mu.Lock()

	if s.state != StatePlaying && s.state != StatePaused {
		defer s.mu.Unlock()
		return s.badTransitionLocked("Seek")
	}
	if target < 0 || target >= s.cfg.Length {
		s.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: tick %d not in [0, %d)", errors.ErrTickOutOfRange, target, s.cfg.Length),
			"Synchronizer", "Seek", "target check")
	}

	s.setStateLocked(StateSeeking)
	s.mu.Unlock()

	if s.loads != nil {
		// Valid ticks end at Length-1; a load tagged Length is unreachable.
		n := s.loads.CancelOutside(target, s.cfg.Length-1)
		if n > 0 {
			s.logger.Debug("cancelled unreachable loads", "count", n, "target", target)
		}
	}
	if s.audio != nil {
		s.audio.SetPosition(s.tickToTime(target))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = target
	s.publishLocked(target)
	s.setStateLocked(StatePlaying)
	s.logger.Info("seek complete", "tick", target)
	return nil
}

// Advance samples the audio clock once and publishes if the tick moved. The
// poll loop calls this; tests may call it directly.
func (s *Synchronizer) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return
	}

	next := s.timeToTick(s.clock.Position())
	if next >= s.cfg.Length {
		s.setStateLocked(StateFinished)
		s.logger.Info("timeline finished", "tick", s.tick)
		return
	}
	if next <= s.tick {
		return
	}

	s.tick = next
	s.publishLocked(next)
}

func (s *Synchronizer) publishLocked(tick int64) {
	payload := &message.StepAdvanced{Tick: tick, AudioTime: s.tickToTime(tick)}
	if err := s.bus.Publish(SystemID, payload); err != nil {
		s.logger.Warn("step publish failed", "tick", tick, "error", err)
	}
	if s.metrics != nil {
		s.metrics.SyncTick.Set(float64(tick))
	}
}

func (s *Synchronizer) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("state transition", "from", s.state.String(), "to", next.String())
	s.state = next
	if s.metrics != nil {
		s.metrics.SyncState.Set(float64(next))
	}
}

func (s *Synchronizer) badTransitionLocked(op string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s in state %s", errors.ErrBadTransition, op, s.state),
		"Synchronizer", op, "transition check")
}

func (s *Synchronizer) timeToTick(pos time.Duration) int64 {
	return int64(pos.Seconds() * s.cfg.TicksPerSecond())
}

func (s *Synchronizer) tickToTime(tick int64) time.Duration {
	return time.Duration(float64(tick) / s.cfg.TicksPerSecond() * float64(time.Second))
}
