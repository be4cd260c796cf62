package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat_live"

// Metrics holds the prometheus collectors of the server.
// Every method is safe on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	registerer prometheus.Registerer

	eventsRouted    *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	slowConsumers   prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	processRSS      prometheus.Gauge
	processCPU      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		registerer: reg,
		eventsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_routed_total",
			Help:      "Inbound events accepted by the router",
		}, []string{"kind"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Outbound events queued on a connection",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped before reaching a connection",
		}, []string{"kind", "reason"}),
		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumers_total",
			Help:      "Connections closed because their outbox overflowed",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		processRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_rss_bytes",
			Help:      "Resident memory of the server process",
		}),
		processCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_cpu_percent",
			Help:      "CPU usage of the server process",
		}),
	}
	reg.MustRegister(
		m.eventsRouted,
		m.eventsDelivered,
		m.eventsDropped,
		m.slowConsumers,
		m.httpRequests,
		m.httpDuration,
		m.processRSS,
		m.processCPU,
	)
	return m
}

// WatchRuntime exposes the live connection and room counts.
func (m *Metrics) WatchRuntime(connections, rooms func() int) {
	if m == nil {
		return
	}
	m.registerer.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open WebSocket connections",
		}, func() float64 { return float64(connections()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one joined connection",
		}, func() float64 { return float64(rooms()) }),
	)
}

func (m *Metrics) Routed(kind string) {
	if m == nil {
		return
	}
	m.eventsRouted.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivered(kind string) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(kind).Inc()
}

func (m *Metrics) Dropped(kind, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) SlowConsumer() {
	if m == nil {
		return
	}
	m.slowConsumers.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusLabel(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) ObserveProcess(rssBytes uint64, cpuPercent float64) {
	if m == nil {
		return
	}
	m.processRSS.Set(float64(rssBytes))
	m.processCPU.Set(cpuPercent)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
