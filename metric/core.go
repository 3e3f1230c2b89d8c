package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all core runtime metrics (not system-specific)
type Metrics struct {
	// Message bus metrics
	MessagesPublished *prometheus.CounterVec
	MessagesDelivered *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec

	// Entity system metrics
	EntitiesLoaded     *prometheus.CounterVec
	EntitiesReloaded   *prometheus.CounterVec
	EntityLoadFailures *prometheus.CounterVec
	EntityGeneration   *prometheus.GaugeVec

	// Source watcher metrics
	WatcherErrors prometheus.Counter

	// Synchronizer metrics
	SyncState prometheus.Gauge
	SyncTick  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "demo05",
				Subsystem: "bus",
				Name:      "published_total",
				Help:      "Total number of messages published per topic",
			},
			[]string{"topic"},
		),

		MessagesDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "demo05",
				Subsystem: "bus",
				Name:      "delivered_total",
				Help:      "Total number of message deliveries per topic and subscriber",
			},
			[]string{"topic", "system"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "demo05",
				Subsystem: "bus",
				Name:      "dropped_total",
				Help:      "Total number of messages dropped (no subscriber for topic)",
			},
			[]string{"topic"},
		),

		EntitiesLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "demo05",
				Subsystem: "entity",
				Name:      "loaded_total",
				Help:      "Total number of entities loaded per variant",
			},
			[]string{"variant"},
		),

		EntitiesReloaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "demo05",
				Subsystem: "entity",
				Name:      "reloaded_total",
				Help:      "Total number of entity reloads per variant",
			},
			[]string{"variant"},
		),

		EntityLoadFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "demo05",
				Subsystem: "entity",
				Name:      "load_failures_total",
				Help:      "Total number of failed loads per failure kind",
			},
			[]string{"kind"},
		),

		EntityGeneration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "demo05",
				Subsystem: "entity",
				Name:      "generation",
				Help:      "Current generation counter per canonical entity name",
			},
			[]string{"name"},
		),

		WatcherErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "demo05",
				Subsystem: "watcher",
				Name:      "errors_total",
				Help:      "Total number of watcher I/O errors after retries",
			},
		),

		SyncState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "demo05",
				Subsystem: "sync",
				Name:      "state",
				Help:      "Synchronizer state (0=stopped, 1=playing, 2=paused, 3=seeking, 4=finished)",
			},
		),

		SyncTick: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "demo05",
				Subsystem: "sync",
				Name:      "tick",
				Help:      "Current synchronizer tick index",
			},
		),
	}
}
