package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor owns the service's prometheus registry and a small set of
// counters mirrored into a JSON snapshot for the metrics endpoint.
type Monitor struct {
	registry *prometheus.Registry

	httpDuration    *prometheus.HistogramVec
	mutations       *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	wsConnections   prometheus.Gauge
	turnaround      prometheus.Histogram

	metrics      map[string]float64
	metricsMutex sync.RWMutex
	startTime    time.Time
}

// NewMonitor creates a monitor with its own registry.
func NewMonitor() *Monitor {
	m := &Monitor{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maitred_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maitred_mutations_total",
				Help: "State mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		eventsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maitred_events_delivered_total",
				Help: "Events handed to subscribers",
			},
			[]string{"event"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maitred_events_dropped_total",
				Help: "Events dropped because a queue or client buffer was full",
			},
			[]string{"stage"},
		),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "maitred_ws_connections",
			Help: "Open websocket connections",
		}),
		turnaround: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "maitred_order_turnaround_seconds",
			Help:    "Time from order placement to completion",
			Buckets: prometheus.LinearBuckets(0, 600, 19), // 10-minute buckets up to three hours
		}),
		metrics:   make(map[string]float64),
		startTime: time.Now(),
	}

	m.registry.MustRegister(
		m.httpDuration,
		m.mutations,
		m.eventsDelivered,
		m.eventsDropped,
		m.wsConnections,
		m.turnaround,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Monitor) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}

// RecordMutation counts a mutation attempt. outcome is "ok" or an error kind.
func (m *Monitor) RecordMutation(operation, outcome string) {
	m.mutations.WithLabelValues(operation, outcome).Inc()
	m.add("mutations_"+outcome, 1)
}

// ObserveOrderTurnaround records how long a completed order was open.
func (m *Monitor) ObserveOrderTurnaround(elapsed time.Duration) {
	m.turnaround.Observe(elapsed.Seconds())
	m.add("orders_completed", 1)
}

func (m *Monitor) EventDelivered(event string) {
	m.eventsDelivered.WithLabelValues(event).Inc()
	m.add("events_delivered", 1)
}

// EventDropped counts a lost event at the given stage ("queue" or "client").
func (m *Monitor) EventDropped(stage string) {
	m.eventsDropped.WithLabelValues(stage).Inc()
	m.add("events_dropped_"+stage, 1)
}

func (m *Monitor) ConnectionOpened() {
	m.wsConnections.Inc()
	m.add("ws_connections", 1)
}

func (m *Monitor) ConnectionClosed() {
	m.wsConnections.Dec()
	m.add("ws_connections", -1)
}

func (m *Monitor) add(name string, delta float64) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] += delta
}

// GetMetric returns a specific snapshot value
func (m *Monitor) GetMetric(name string) (float64, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()
	value, exists := m.metrics[name]
	return value, exists
}

// GetMetrics returns a copy of the snapshot with the process uptime.
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	metrics := make(map[string]interface{}, len(m.metrics)+1)
	for k, v := range m.metrics {
		metrics[k] = v
	}
	metrics["uptime_seconds"] = time.Since(m.startTime).Seconds()

	return metrics
}
