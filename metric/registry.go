package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hadronized/demo-05/errors"
)

// MetricsRegistrar defines the interface for registering system-specific metrics
type MetricsRegistrar interface {
	RegisterCounter(systemName, metricName string, counter prometheus.Counter) error
	RegisterGauge(systemName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(systemName, metricName string, histogram prometheus.Histogram) error
	RegisterCounterVec(systemName, metricName string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(systemName, metricName string, gaugeVec *prometheus.GaugeVec) error
	RegisterHistogramVec(systemName, metricName string, histogramVec *prometheus.HistogramVec) error
	Unregister(systemName, metricName string) bool
}

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with core runtime metrics
func NewMetricsRegistry() *MetricsRegistry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &MetricsRegistry{
		prometheusRegistry: prometheusRegistry,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}

	registry.Metrics = NewMetrics()
	registry.registerCoreMetrics()

	// Go runtime metrics
	registry.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core runtime metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// register adds a collector under "system.metric" with duplicate protection.
func (r *MetricsRegistry) register(systemName, metricName, kind string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", systemName, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for system %s", metricName, systemName),
			"MetricsRegistry", kind, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", kind,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", kind,
			"prometheus registration")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// RegisterCounter registers a counter metric for a system
func (r *MetricsRegistry) RegisterCounter(systemName, metricName string, counter prometheus.Counter) error {
	return r.register(systemName, metricName, "RegisterCounter", counter)
}

// RegisterGauge registers a gauge metric for a system
func (r *MetricsRegistry) RegisterGauge(systemName, metricName string, gauge prometheus.Gauge) error {
	return r.register(systemName, metricName, "RegisterGauge", gauge)
}

// RegisterHistogram registers a histogram metric for a system
func (r *MetricsRegistry) RegisterHistogram(systemName, metricName string, histogram prometheus.Histogram) error {
	return r.register(systemName, metricName, "RegisterHistogram", histogram)
}

// RegisterCounterVec registers a counter vector metric for a system
func (r *MetricsRegistry) RegisterCounterVec(systemName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register(systemName, metricName, "RegisterCounterVec", counterVec)
}

// RegisterGaugeVec registers a gauge vector metric for a system
func (r *MetricsRegistry) RegisterGaugeVec(systemName, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register(systemName, metricName, "RegisterGaugeVec", gaugeVec)
}

// RegisterHistogramVec registers a histogram vector metric for a system
func (r *MetricsRegistry) RegisterHistogramVec(systemName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register(systemName, metricName, "RegisterHistogramVec", histogramVec)
}

// Unregister removes a metric from the registry. Returns true if the metric
// existed and was removed.
func (r *MetricsRegistry) Unregister(systemName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", systemName, metricName)
	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	r.prometheusRegistry.Unregister(collector)
	delete(r.registeredMetrics, key)
	return true
}

// registerCoreMetrics registers all core metrics with the prometheus registry
func (r *MetricsRegistry) registerCoreMetrics() {
	m := r.Metrics
	r.prometheusRegistry.MustRegister(
		m.MessagesPublished,
		m.MessagesDelivered,
		m.MessagesDropped,
		m.EntitiesLoaded,
		m.EntitiesReloaded,
		m.EntityLoadFailures,
		m.EntityGeneration,
		m.WatcherErrors,
		m.SyncState,
		m.SyncTick,
	)
}
