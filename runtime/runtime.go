// Package runtime assembles the demo core: it builds the message bus,
// constructs every system, runs the init phase that freezes the bus
// topology, and drives ordered startup and shutdown.
package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hadronized/demo-05/audio"
	"github.com/hadronized/demo-05/bus"
	"github.com/hadronized/demo-05/config"
	"github.com/hadronized/demo-05/entity"
	"github.com/hadronized/demo-05/errors"
	"github.com/hadronized/demo-05/graphics"
	"github.com/hadronized/demo-05/health"
	"github.com/hadronized/demo-05/metric"
	"github.com/hadronized/demo-05/system"
	"github.com/hadronized/demo-05/timeline"
)

// System is what the runtime manages: lifecycle plus identification.
type System interface {
	system.Lifecycle
	Metadata() system.Metadata
}

// Runtime owns the core object graph. Construction wires, Initialize
// freezes, Start runs, Stop unwinds in reverse.
type Runtime struct {
	logger   *slog.Logger
	cfg      *config.SafeConfig
	bus      *bus.Bus
	registry *metric.MetricsRegistry
	health   *health.Monitor

	entities *entity.System
	audio    *audio.System
	graphics *graphics.System
	sync     *timeline.Synchronizer

	systems []System
	started []System

	metricsSrv *http.Server
	state      system.State
}

// New builds the full system graph from cfg. Nothing runs yet.
func New(logger *slog.Logger, cfg *config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Runtime", "New", "config validation")
	}

	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()

	b := bus.New(logger,
		bus.WithQueueSize(cfg.Bus.QueueSize),
		bus.WithMetrics(registry),
	)

	reg := entity.NewRegistry()
	if err := entity.RegisterDefaults(reg); err != nil {
		return nil, errors.Wrap(err, "Runtime", "New", "representation registration")
	}

	watchRetry := errors.DefaultRetryConfig()
	watchRetry.MaxRetries = cfg.Loader.RetryAttempts
	watchRetry.InitialDelay = cfg.Loader.RetryDelay.Std()

	entities := entity.NewSystem(logger, b, reg,
		entity.WithMetrics(core),
		entity.WithWatchInterval(cfg.Loader.WatchInterval.Std()),
		entity.WithWatchRetry(watchRetry.ToRetryConfig()),
		entity.WithPoolSize(cfg.Loader.Workers, cfg.Loader.QueueSize),
	)
	aud := audio.NewSystem(logger, b)
	gfx := graphics.NewSystem(logger, b, entities.Store())
	syn := timeline.New(logger, b, timeline.Config{
		BPM:         cfg.Timeline.BPM,
		RowsPerBeat: cfg.Timeline.RowsPerBeat,
		Length:      cfg.Timeline.Length,
	}, aud, aud,
		timeline.WithMetrics(core),
		timeline.WithLoadCanceller(entities),
	)

	return &Runtime{
		logger:   logger,
		cfg:      config.NewSafeConfig(cfg.Clone()),
		bus:      b,
		registry: registry,
		health:   health.NewMonitor(),
		entities: entities,
		audio:    aud,
		graphics: gfx,
		sync:     syn,
		// Start order; Stop unwinds it back to front.
		systems: []System{entities, aud, gfx, syn},
		state:   system.StateCreated,
	}, nil
}

// Initialize runs the init phase: every system registers its topics, then
// the topology is sealed. Any failure here aborts startup; this is the only
// fatal path.
func (r *Runtime) Initialize() error {
	if r.state != system.StateCreated {
		return errors.Wrap(errors.ErrAlreadyStarted, "Runtime", "Initialize", "state check")
	}

	for _, sys := range r.systems {
		if err := sys.Initialize(); err != nil {
			return errors.WrapFatal(err, "Runtime", "Initialize",
				"system init ("+string(sys.Metadata().ID)+")")
		}
		r.logger.Debug("system initialized", "system", string(sys.Metadata().ID))
	}

	r.bus.Seal()
	r.state = system.StateInitialized
	r.logger.Info("init phase complete", "systems", len(r.systems))
	return nil
}

// Start launches every system in registration order. On failure the systems
// already running are stopped in reverse before the error returns.
func (r *Runtime) Start(ctx context.Context) error {
	if r.state != system.StateInitialized {
		return errors.Wrap(errors.ErrNotStarted, "Runtime", "Start", "state check")
	}

	for _, sys := range r.systems {
		id := string(sys.Metadata().ID)
		if err := sys.Start(ctx); err != nil {
			r.health.UpdateUnhealthy(id, err.Error())
			r.stopStarted(5 * time.Second)
			return errors.Wrap(err, "Runtime", "Start", "system start ("+id+")")
		}
		r.health.UpdateHealthy(id, "running")
		r.started = append(r.started, sys)
	}

	if mc := r.cfg.Get().Metrics; mc.Enabled {
		r.serveMetrics(mc.Addr)
	}

	r.state = system.StateStarted
	return nil
}

// LoadAssets requests the initial load of the configured asset tree and any
// extra declared sources.
func (r *Runtime) LoadAssets() error {
	cfg := r.cfg.Get()
	if cfg.AssetsDir != "" {
		if err := r.entities.LoadDir(cfg.AssetsDir); err != nil {
			return errors.Wrap(err, "Runtime", "LoadAssets", "asset tree load")
		}
	}
	for _, src := range cfg.Sources {
		if err := r.entities.Load(entity.FileSource(src)); err != nil {
			return errors.Wrap(err, "Runtime", "LoadAssets", "declared source load")
		}
	}
	return nil
}

// Stop unwinds the runtime: systems in reverse start order, then the bus.
func (r *Runtime) Stop(timeout time.Duration) error {
	if r.state != system.StateStarted {
		return errors.Wrap(errors.ErrNotStarted, "Runtime", "Stop", "state check")
	}

	if r.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = r.metricsSrv.Shutdown(shutdownCtx)
	}

	firstErr := r.stopStarted(timeout)
	if err := r.bus.Shutdown(timeout); err != nil && firstErr == nil {
		firstErr = err
	}

	r.state = system.StateStopped
	if firstErr != nil {
		return errors.Wrap(firstErr, "Runtime", "Stop", "shutdown")
	}
	return nil
}

func (r *Runtime) stopStarted(timeout time.Duration) error {
	var firstErr error
	for i := len(r.started) - 1; i >= 0; i-- {
		sys := r.started[i]
		id := string(sys.Metadata().ID)
		if err := sys.Stop(timeout); err != nil {
			r.logger.Error("system stop failed", "system", id, "error", err)
			r.health.UpdateUnhealthy(id, err.Error())
			if firstErr == nil {
				firstErr = err
			}
		} else {
			r.health.Remove(id)
		}
	}
	r.started = nil
	return firstErr
}

func (r *Runtime) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		r.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := r.health.AggregateHealth("demo")
		w.Header().Set("Content-Type", "application/json")
		if !status.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	r.metricsSrv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("metrics endpoint failed", "addr", addr, "error", err)
		}
	}()
	r.logger.Info("metrics endpoint listening", "addr", addr)
}

// Config returns a copy of the active configuration.
func (r *Runtime) Config() *config.Config { return r.cfg.Get() }

// Entities returns the entity system.
func (r *Runtime) Entities() *entity.System { return r.entities }

// Synchronizer returns the playback state machine.
func (r *Runtime) Synchronizer() *timeline.Synchronizer { return r.sync }

// Audio returns the audio collaborator.
func (r *Runtime) Audio() *audio.System { return r.audio }

// Graphics returns the graphics collaborator.
func (r *Runtime) Graphics() *graphics.System { return r.graphics }

// Bus returns the message bus.
func (r *Runtime) Bus() *bus.Bus { return r.bus }

// Health returns the per-system health monitor.
func (r *Runtime) Health() *health.Monitor { return r.health }
