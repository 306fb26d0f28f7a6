// Package metrics collects Prometheus metrics for bulb traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yeectl"

// Outcome labels for RequestsTotal.
const (
	OutcomeOK            = "ok"
	OutcomeProtocolError = "protocol_error"
	OutcomeFailed        = "failed"
)

// Collector holds the client's metrics. It implements transport.Observer.
type Collector struct {
	requests             *prometheus.CounterVec
	duration             *prometheus.HistogramVec
	notifications        prometheus.Counter
	notificationsDropped prometheus.Counter
}

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Bulb method calls by outcome",
			},
			[]string{"method", "outcome"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Round trip time of bulb method calls",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		),
		notifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Property change notifications received from the bulb",
		}),
		notificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications discarded because the subscriber fell behind",
		}),
	}
}

// ObserveRequest records one completed call.
func (c *Collector) ObserveRequest(method, outcome string, seconds float64) {
	c.requests.WithLabelValues(method, outcome).Inc()
	c.duration.WithLabelValues(method).Observe(seconds)
}

// NotificationReceived counts one notification read from the bulb.
func (c *Collector) NotificationReceived() { c.notifications.Inc() }

// NotificationDropped counts one notification discarded for a slow subscriber.
func (c *Collector) NotificationDropped() { c.notificationsDropped.Inc() }

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
