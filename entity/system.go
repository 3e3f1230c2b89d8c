package entity

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hadronized/demo-05/bus"
	"github.com/hadronized/demo-05/errors"
	"github.com/hadronized/demo-05/message"
	"github.com/hadronized/demo-05/metric"
	"github.com/hadronized/demo-05/pkg/retry"
	"github.com/hadronized/demo-05/pkg/worker"
	"github.com/hadronized/demo-05/system"
)

// SystemID is the bus identity of the entity system.
const SystemID system.ID = "entity"

const (
	// UntaggedStep marks loads not tied to a timeline step; seeks never
	// cancel them.
	UntaggedStep int64 = -1

	defaultWorkers   = 4
	defaultQueueSize = 64
)

// loadTask is one unit of work for the pool. The cancelled flag is a
// best-effort seek optimization checked once when the task starts.
type loadTask struct {
	state     *sourceState
	step      int64
	cancelled atomic.Bool
}

// sourceState serializes loads per source. While a load is in flight, newer
// requests only mark the state dirty; the completing load resubmits once, so
// a burst of change events collapses into a single trailing reload.
type sourceState struct {
	src       Source
	inflight  *loadTask
	dirty     bool
	dirtyStep int64
}

// System is the entity facade: it accepts load requests, runs format
// dispatch and parsing on a worker pool, installs results in the store and
// publishes lifecycle messages. Load failures are reported, never fatal.
type System struct {
	logger   *slog.Logger
	bus      *bus.Bus
	registry *Registry
	store    *Store
	watcher  *Watcher
	metrics  *metric.Metrics
	pool     *worker.Pool[*loadTask]

	mu      sync.Mutex
	sources map[string]*sourceState

	poolWorkers int
	poolQueue   int
	state       system.State
}

// SystemOption configures a System.
type SystemOption func(*System)

// WithMetrics attaches entity and watcher metrics.
func WithMetrics(m *metric.Metrics) SystemOption {
	return func(s *System) { s.metrics = m }
}

// WithWatchInterval overrides the watcher poll interval.
func WithWatchInterval(d time.Duration) SystemOption {
	return func(s *System) { s.watcher.interval = d }
}

// WithWatchRetry overrides the backoff policy for watch read retries.
func WithWatchRetry(cfg retry.Config) SystemOption {
	return func(s *System) { s.watcher.retry = cfg }
}

// WithPoolSize overrides worker count and queue size.
func WithPoolSize(workers, queue int) SystemOption {
	return func(s *System) {
		s.poolWorkers = workers
		s.poolQueue = queue
	}
}

// NewSystem creates the entity system on top of b and reg.
func NewSystem(logger *slog.Logger, b *bus.Bus, reg *Registry, opts ...SystemOption) *System {
	s := &System{
		logger:      logger.With("system", string(SystemID)),
		bus:         b,
		registry:    reg,
		store:       NewStore(),
		sources:     make(map[string]*sourceState),
		state:       system.StateCreated,
		poolWorkers: defaultWorkers,
		poolQueue:   defaultQueueSize,
	}
	s.watcher = NewWatcher(s.logger, s.requestLoad, s.reportWatchFailure)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize validates the registry, registers the system as a bus publisher
// and builds the worker pool.
func (s *System) Initialize() error {
	if s.state != system.StateCreated {
		return errors.Wrap(errors.ErrAlreadyStarted, "System", "Initialize", "state check")
	}

	if err := s.registry.Validate(); err != nil {
		return errors.Wrap(err, "System", "Initialize", "registry validation")
	}

	if _, err := s.bus.Register(SystemID, nil, nil); err != nil {
		return errors.Wrap(err, "System", "Initialize", "bus registration")
	}

	s.pool = worker.NewPool(s.poolWorkers, s.poolQueue, s.process)

	s.state = system.StateInitialized
	return nil
}

// Start launches the worker pool and the source watcher.
func (s *System) Start(ctx context.Context) error {
	if s.state != system.StateInitialized {
		return errors.Wrap(errors.ErrNotStarted, "System", "Start", "state check")
	}
	if err := s.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "System", "Start", "pool start")
	}
	s.watcher.Start(ctx)
	s.state = system.StateStarted
	s.logger.Info("entity system started", "workers", s.poolWorkers, "queue", s.poolQueue)
	return nil
}

// Stop halts the watcher first so no new loads arrive, then drains the pool.
func (s *System) Stop(timeout time.Duration) error {
	if s.state != system.StateStarted {
		return errors.Wrap(errors.ErrNotStarted, "System", "Stop", "state check")
	}
	s.watcher.Stop()
	err := s.pool.Stop(timeout)
	s.state = system.StateStopped
	if err != nil {
		return errors.Wrap(err, "System", "Stop", "pool drain")
	}
	return nil
}

// Metadata implements system identification for the runtime.
func (s *System) Metadata() system.Metadata {
	return system.Metadata{ID: SystemID, Description: "entity loading and hot reload"}
}

// Load requests an asynchronous load of src, untied to any timeline step.
func (s *System) Load(src Source) error {
	return s.load(src, UntaggedStep)
}

// LoadForStep requests a load tagged with a timeline step so a later seek
// outside [lo, hi] can cancel it before it runs.
func (s *System) LoadForStep(src Source, step int64) error {
	if step < 0 {
		return errors.WrapInvalid(errors.ErrTickOutOfRange, "System", "LoadForStep", "step check")
	}
	return s.load(src, step)
}

// LoadDir walks root and requests a load for every file with a known
// extension. Unknown extensions are skipped with a warning; they are content,
// not errors.
func (s *System) LoadDir(root string) error {
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if len(d.Name()) > 1 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}

		src := FileSource(path)
		if !s.registry.KnowsExt(src.Ext()) {
			s.logger.Warn("skipping file with unknown extension", "path", path, "ext", src.Ext())
			return nil
		}
		return s.Load(src)
	})
	if walkErr != nil {
		return errors.Wrap(walkErr, "System", "LoadDir", "directory walk")
	}
	return nil
}

// CancelOutside cancels pending step-tagged loads whose step falls outside
// [lo, hi]. Cancellation is best effort: tasks already running finish
// normally, and cancelling an already-finished task is a no-op.
func (s *System) CancelOutside(lo, hi int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for _, st := range s.sources {
		task := st.inflight
		if task == nil || task.step == UntaggedStep {
			continue
		}
		if task.step < lo || task.step > hi {
			if !task.cancelled.Swap(true) {
				cancelled++
			}
		}
	}
	return cancelled
}

// Get returns the installed entity for name.
func (s *System) Get(name string) (*Entity, bool) {
	return s.store.Get(name)
}

// GetVariant returns the installed entity for name if it has variant v.
func (s *System) GetVariant(name string, v Variant) (*Entity, bool) {
	return s.store.GetVariant(name, v)
}

// Store exposes the installed-entity table for read-side consumers.
func (s *System) Store() *Store {
	return s.store
}

// requestLoad is the watcher change callback.
func (s *System) requestLoad(src Source) {
	if err := s.load(src, UntaggedStep); err != nil {
		s.logger.Warn("reload request dropped", "source", src.Key(), "error", err)
	}
}

func (s *System) load(src Source, step int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := src.Key()
	st, ok := s.sources[key]
	if !ok {
		st = &sourceState{src: src}
		s.sources[key] = st
	}
	st.src = src

	if st.inflight != nil {
		st.dirty = true
		st.dirtyStep = step
		return nil
	}
	return s.submitLocked(st, step)
}

// submitLocked hands a task to the pool. Callers hold s.mu.
func (s *System) submitLocked(st *sourceState, step int64) error {
	task := &loadTask{state: st, step: step}
	if err := s.pool.Submit(task); err != nil {
		return errors.WrapTransient(err, "System", "load", "task submit")
	}
	st.inflight = task
	return nil
}

// process is the pool worker entry point. It never returns an error for load
// failures; those are published as messages so the demo keeps running.
func (s *System) process(ctx context.Context, task *loadTask) error {
	if !task.cancelled.Load() {
		s.loadOne(task.state.src)
	} else {
		s.logger.Debug("load cancelled before start",
			"source", task.state.src.Key(), "step", task.step)
	}
	s.finish(task.state)
	return nil
}

// finish clears the in-flight slot and resubmits once if changes arrived
// while the load ran.
func (s *System) finish(st *sourceState) {
	s.mu.Lock()
	st.inflight = nil
	var submitErr error
	if st.dirty {
		st.dirty = false
		submitErr = s.submitLocked(st, st.dirtyStep)
	}
	src := st.src
	s.mu.Unlock()

	if submitErr != nil {
		s.reportFailure(src, "queue", submitErr)
	}
}

// loadOne runs the full pipeline for one source: read, dispatch, parse,
// install, publish.
func (s *System) loadOne(src Source) {
	content, err := src.Read()
	if err != nil {
		s.reportFailure(src, "read", err)
		return
	}

	rep, err := s.registry.Dispatch(src, content)
	if err != nil {
		s.reportFailure(src, "dispatch", err)
		return
	}

	pc := &ParseContext{Source: src, Content: content}
	decoded, err := rep.Parse(pc)
	if err != nil {
		s.reportFailure(src, "parse", err)
		return
	}
	if len(decoded) == 0 {
		s.reportFailure(src, "parse",
			errors.WrapInvalid(errors.ErrParseFailed, "System", "loadOne", "empty parse result"))
		return
	}

	hash := HashContent(pc.HashInput())
	for _, payload := range decoded {
		if payload.DecodedVariant() != rep.Variant {
			s.reportFailure(src, "parse", errors.WrapInvalid(
				fmt.Errorf("%w: parser produced %s, rule declares %s",
					errors.ErrParseFailed, payload.DecodedVariant(), rep.Variant),
				"System", "loadOne", "variant check"))
			return
		}

		name, err := DeriveName(src, payload)
		if err != nil {
			s.reportFailure(src, "naming", err)
			return
		}

		// Bundles producing several entities share the bundle hash;
		// the name disambiguates the store slot.
		entityHash := hash
		if len(decoded) > 1 {
			entityHash = hash + ":" + name
		}

		result := s.store.Install(name, src, rep.Variant, payload, entityHash)
		s.announce(src, rep.Variant, name, result)
	}

	if src.Watchable() {
		s.watcher.Track(src, pc.Deps(), hash)
	}
}

// announce publishes the message matching an install outcome and updates
// metrics.
func (s *System) announce(src Source, v Variant, name string, result InstallResult) {
	switch result.Outcome {
	case OutcomeUnchanged:
		s.logger.Debug("entity unchanged", "name", name, "source", src.Key())
		return

	case OutcomeLoaded:
		s.publish(&message.EntityLoaded{
			Name: name, Variant: v.String(), Generation: result.Generation,
		})
		if s.metrics != nil {
			s.metrics.EntitiesLoaded.WithLabelValues(v.String()).Inc()
		}
		s.logger.Info("entity loaded", "name", name, "variant", v.String(), "source", src.Key())

	case OutcomeReloaded:
		s.publish(&message.EntityReloaded{Name: name, Generation: result.Generation})
		if s.metrics != nil {
			s.metrics.EntitiesReloaded.WithLabelValues(v.String()).Inc()
		}
		s.logger.Info("entity reloaded",
			"name", name, "generation", result.Generation, "source", src.Key())

	case OutcomeReplaced:
		s.publish(&message.EntityReplaced{
			Name:          name,
			OldGeneration: result.OldGeneration,
			NewGeneration: result.Generation,
		})
		s.publish(&message.EntityLoaded{
			Name: name, Variant: v.String(), Generation: result.Generation,
		})
		if s.metrics != nil {
			s.metrics.EntitiesLoaded.WithLabelValues(v.String()).Inc()
		}
		s.logger.Info("entity replaced",
			"name", name, "generation", result.Generation, "source", src.Key())
	}

	if s.metrics != nil {
		s.metrics.EntityGeneration.WithLabelValues(name).Set(float64(result.Generation))
	}
}

// reportFailure publishes a load failure and counts it. Failures never stop
// the system.
func (s *System) reportFailure(src Source, kind string, err error) {
	s.logger.Error("entity load failed", "source", src.Key(), "kind", kind, "error", err)
	if s.metrics != nil {
		s.metrics.EntityLoadFailures.WithLabelValues(kind).Inc()
	}
	s.publish(&message.LoadFailed{Source: src.Key(), Reason: err.Error()})
}

// reportWatchFailure handles exhausted watcher retries: the failure is
// published like any other load failure and the source stays tracked, so a
// later fix on disk still triggers a reload.
func (s *System) reportWatchFailure(src Source, err error) {
	s.logger.Error("watch poll failed", "source", src.Key(), "error", err)
	if s.metrics != nil {
		s.metrics.WatcherErrors.Inc()
	}
	s.publish(&message.LoadFailed{Source: src.Key(), Reason: err.Error()})
}

func (s *System) publish(payload message.Payload) {
	if err := s.bus.Publish(SystemID, payload); err != nil {
		s.logger.Warn("publish failed", "topic", string(payload.PayloadTopic()), "error", err)
	}
}
