// Package config holds the demo configuration: asset location, worker
// sizing, timeline shape and logging. Configuration is loaded once at
// startup and treated as immutable afterwards; SafeConfig guards the few
// places that hold it across goroutines.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hadronized/demo-05/errors"
)

// Config is the complete demo configuration.
type Config struct {
	// AssetsDir is the root directory scanned at startup.
	AssetsDir string `json:"assets_dir"`
	// Sources lists extra files to load outside AssetsDir.
	Sources []string `json:"sources,omitempty"`

	Logging  LoggingConfig  `json:"logging"`
	Bus      BusConfig      `json:"bus"`
	Loader   LoaderConfig   `json:"loader"`
	Timeline TimelineConfig `json:"timeline"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// LoggingConfig shapes the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
	// Format is json or text.
	Format string `json:"format"`
}

// BusConfig sizes the message bus.
type BusConfig struct {
	// QueueSize is the per-subscriber delivery queue depth.
	QueueSize int `json:"queue_size"`
}

// LoaderConfig sizes the entity load pipeline.
type LoaderConfig struct {
	// Workers is the parse worker count.
	Workers int `json:"workers"`
	// QueueSize is the pending load queue depth.
	QueueSize int `json:"queue_size"`
	// WatchInterval is the source poll cadence.
	WatchInterval Duration `json:"watch_interval"`
	// RetryAttempts is how many extra times a failed watch read is retried.
	RetryAttempts int `json:"retry_attempts"`
	// RetryDelay is the initial backoff between watch read retries.
	RetryDelay Duration `json:"retry_delay"`
}

// TimelineConfig shapes the synchronizer.
type TimelineConfig struct {
	BPM         float64 `json:"bpm"`
	RowsPerBeat int     `json:"rows_per_beat"`
	// Length is the total tick count.
	Length int64 `json:"length"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// Duration wraps time.Duration with JSON string encoding ("500ms").
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		AssetsDir: "assets",
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Bus:       BusConfig{QueueSize: 256},
		Loader: LoaderConfig{
			Workers:       4,
			QueueSize:     64,
			WatchInterval: Duration(500 * time.Millisecond),
			RetryAttempts: 3,
			RetryDelay:    Duration(100 * time.Millisecond),
		},
		Timeline: TimelineConfig{BPM: 120, RowsPerBeat: 8, Length: 4096},
		Metrics:  MetricsConfig{Enabled: false, Addr: ":9105"},
	}
}

// LoadFromFile reads and validates a JSON configuration file. Fields absent
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(
			fmt.Errorf("%w: %v", errors.ErrMissingConfig, err),
			"Config", "LoadFromFile", "file read")
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Config", "LoadFromFile", "json decode")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for startup. Violations are fatal; the
// demo never starts on a broken configuration.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...)),
			"Config", "Validate", "field check")
	}

	if c.AssetsDir == "" && len(c.Sources) == 0 {
		return fail("assets_dir or sources required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fail("logging.level %q not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fail("logging.format %q not one of json, text", c.Logging.Format)
	}

	if c.Bus.QueueSize <= 0 {
		return fail("bus.queue_size must be positive")
	}
	if c.Loader.Workers <= 0 {
		return fail("loader.workers must be positive")
	}
	if c.Loader.QueueSize <= 0 {
		return fail("loader.queue_size must be positive")
	}
	if c.Loader.WatchInterval.Std() < 10*time.Millisecond {
		return fail("loader.watch_interval below 10ms")
	}
	if c.Loader.RetryAttempts < 0 {
		return fail("loader.retry_attempts must not be negative")
	}
	if c.Loader.RetryDelay.Std() < 0 {
		return fail("loader.retry_delay must not be negative")
	}

	if c.Timeline.BPM <= 0 {
		return fail("timeline.bpm must be positive")
	}
	if c.Timeline.RowsPerBeat <= 0 {
		return fail("timeline.rows_per_beat must be positive")
	}
	if c.Timeline.Length <= 0 {
		return fail("timeline.length must be positive")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fail("metrics.addr required when metrics enabled")
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Sources = append([]string(nil), c.Sources...)
	return &clone
}

// SafeConfig provides guarded access to a configuration shared across
// goroutines.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSafeConfig wraps cfg; a nil cfg falls back to defaults.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{cfg: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cfg.Clone()
}

// Update validates and swaps the configuration.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil check")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cfg = cfg
	return nil
}
