// Package metrics exposes the dashboard's operational metrics in the
// Prometheus exposition format.
//
// Each Collector owns its registry so tests and multiple servers in one
// process never collide on registration.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashboard"

// Outcome labels for simulated updates.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Collector records stream, store and writer activity.
//
// Usage:
//
//	collector := metrics.NewCollector()
//	mux.Handle("/metrics", collector.Handler())
//	collector.StreamOpened("sse")
//	defer collector.StreamClosed("sse")
type Collector struct {
	registry *prometheus.Registry
	started  time.Time

	activeStreams atomic.Int64

	streamsActive  *prometheus.GaugeVec
	streamsTotal   *prometheus.CounterVec
	eventsSent     *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	storeUp        prometheus.Gauge
	storePing      prometheus.Histogram
	simulations    *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// NewCollector creates a Collector with a private registry that also
// carries the Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
		streamsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of open live update connections.",
		}, []string{"transport"}),
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_opened_total",
			Help:      "Live update connections accepted since start.",
		}, []string{"transport"}),
		eventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Events written to live update connections.",
		}, []string{"channel", "type"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed key-value store operations.",
		}, []string{"operation"}),
		storeUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_up",
			Help:      "1 when the last store health check succeeded.",
		}),
		storePing: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_ping_seconds",
			Help:      "Latency of store health checks.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_updates_total",
			Help:      "Simulated metric updates by category and outcome.",
		}, []string{"category", "outcome"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of non-streaming HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.streamsActive,
		c.streamsTotal,
		c.eventsSent,
		c.storeErrors,
		c.storeUp,
		c.storePing,
		c.simulations,
		c.requestLatency,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StreamOpened records a new live connection on transport ("sse" or "ws").
func (c *Collector) StreamOpened(transport string) {
	c.activeStreams.Add(1)
	c.streamsActive.WithLabelValues(transport).Inc()
	c.streamsTotal.WithLabelValues(transport).Inc()
}

// StreamClosed records the end of a live connection.
func (c *Collector) StreamClosed(transport string) {
	c.activeStreams.Add(-1)
	c.streamsActive.WithLabelValues(transport).Dec()
}

// ActiveStreams returns the number of currently open live connections.
func (c *Collector) ActiveStreams() int64 {
	return c.activeStreams.Load()
}

// EventSent counts one event of eventType pushed on channel.
func (c *Collector) EventSent(channel, eventType string) {
	c.eventsSent.WithLabelValues(channel, eventType).Inc()
}

// StoreError counts one failed store operation ("get", "set", "ping").
func (c *Collector) StoreError(operation string) {
	c.storeErrors.WithLabelValues(operation).Inc()
}

// StoreChecked records the result of a store health check.
func (c *Collector) StoreChecked(up bool, latency time.Duration) {
	c.storePing.Observe(latency.Seconds())
	if up {
		c.storeUp.Set(1)
		return
	}
	c.storeUp.Set(0)
}

// SimulationRecorded counts one simulate-update request.
func (c *Collector) SimulationRecorded(category, outcome string) {
	c.simulations.WithLabelValues(category, outcome).Inc()
}

// RequestObserved records the duration of a completed HTTP request.
func (c *Collector) RequestObserved(method string, status int, d time.Duration) {
	c.requestLatency.WithLabelValues(method, statusClass(status)).Observe(d.Seconds())
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.started)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
