/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector collects metrics about active uploads and inactivity detection.
type MetricsCollector interface {
	// SetActiveClients sets the number of clients with at least one in-flight request.
	SetActiveClients(int)

	// SetActiveOperations sets the total number of in-flight requests.
	SetActiveOperations(int)

	// IncInactivityEvents increments the number of emitted inactivity events.
	IncInactivityEvents()

	// IncNaturalRemovals increments the number of expired entries classified as completed uploads.
	IncNaturalRemovals()

	// IncFileStateLookupFailures increments the number of failed persisted state lookups.
	IncFileStateLookupFailures()
}

// PrometheusMetrics represents a Prometheus metrics for the upload limiter.
type PrometheusMetrics struct {
	ActiveClients                prometheus.Gauge
	ActiveOperations             prometheus.Gauge
	InactivityEventsTotal        prometheus.Counter
	NaturalRemovalsTotal         prometheus.Counter
	FileStateLookupFailuresTotal prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		ActiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_active_clients",
			Help:      "Number of clients with at least one in-flight upload.",
		}),
		ActiveOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_active_operations",
			Help:      "Number of in-flight uploads.",
		}),
		InactivityEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_inactivity_events_total",
			Help:      "Number of uploads abandoned before completion.",
		}),
		NaturalRemovalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_natural_removals_total",
			Help:      "Number of expired request configurations whose uploads were complete or already cleaned up.",
		}),
		FileStateLookupFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_file_state_lookup_failures_total",
			Help:      "Number of failed lookups of persisted file states.",
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.ActiveClients,
		pm.ActiveOperations,
		pm.InactivityEventsTotal,
		pm.NaturalRemovalsTotal,
		pm.FileStateLookupFailuresTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.ActiveClients)
	prometheus.Unregister(pm.ActiveOperations)
	prometheus.Unregister(pm.InactivityEventsTotal)
	prometheus.Unregister(pm.NaturalRemovalsTotal)
	prometheus.Unregister(pm.FileStateLookupFailuresTotal)
}

// SetActiveClients implements MetricsCollector.
func (pm *PrometheusMetrics) SetActiveClients(n int) {
	pm.ActiveClients.Set(float64(n))
}

// SetActiveOperations implements MetricsCollector.
func (pm *PrometheusMetrics) SetActiveOperations(n int) {
	pm.ActiveOperations.Set(float64(n))
}

// IncInactivityEvents implements MetricsCollector.
func (pm *PrometheusMetrics) IncInactivityEvents() {
	pm.InactivityEventsTotal.Inc()
}

// IncNaturalRemovals implements MetricsCollector.
func (pm *PrometheusMetrics) IncNaturalRemovals() {
	pm.NaturalRemovalsTotal.Inc()
}

// IncFileStateLookupFailures implements MetricsCollector.
func (pm *PrometheusMetrics) IncFileStateLookupFailures() {
	pm.FileStateLookupFailuresTotal.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) SetActiveClients(int)        {}
func (disabledMetrics) SetActiveOperations(int)     {}
func (disabledMetrics) IncInactivityEvents()        {}
func (disabledMetrics) IncNaturalRemovals()         {}
func (disabledMetrics) IncFileStateLookupFailures() {}
