// Package metrics holds the Prometheus registry for the monitored-item
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics the engine publishes.
type Registry struct {
	samplesTaken          prometheus.Counter
	notificationsEnqueued prometheus.Counter
	notificationsDrained  prometheus.Counter
	queueOverflows        prometheus.Counter
	monitoredItems        prometheus.Gauge
	tickDuration          prometheus.Histogram
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		samplesTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_engine_samples_total",
			Help: "Total number of address-space samples taken across all monitored items",
		}),
		notificationsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_engine_notifications_enqueued_total",
			Help: "Total number of notifications enqueued due to a reportable change",
		}),
		notificationsDrained: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_engine_notifications_drained_total",
			Help: "Total number of notifications drained for a publish response",
		}),
		queueOverflows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "opcua_engine_queue_overflow_total",
			Help: "Total number of times a monitored item's queue entered overflow (the first enqueue at capacity since its last drain)",
		}),
		monitoredItems: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "opcua_engine_monitored_items",
			Help: "Current number of registered monitored items",
		}),
		tickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "opcua_engine_tick_duration_seconds",
			Help:    "Duration of one driver tick across all monitored items",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// IncSamplesTaken increments the samples-taken counter.
func (r *Registry) IncSamplesTaken() { r.samplesTaken.Inc() }

// AddNotificationsEnqueued adds to the notifications-enqueued counter.
func (r *Registry) AddNotificationsEnqueued(n int) { r.notificationsEnqueued.Add(float64(n)) }

// AddNotificationsDrained adds to the notifications-drained counter.
func (r *Registry) AddNotificationsDrained(n int) { r.notificationsDrained.Add(float64(n)) }

// IncQueueOverflow increments the queue-overflow counter.
func (r *Registry) IncQueueOverflow() { r.queueOverflows.Inc() }

// SetMonitoredItems sets the current monitored-item count gauge.
func (r *Registry) SetMonitoredItems(n int) { r.monitoredItems.Set(float64(n)) }

// ObserveTickDuration records a tick's wall-clock duration in seconds.
func (r *Registry) ObserveTickDuration(seconds float64) { r.tickDuration.Observe(seconds) }
