package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes counters/histograms for the scheduling flows. All methods
// are nil-safe so components can run without a registry in tests.
type Metrics struct {
	bookings         *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	availabilityOps  *prometheus.CounterVec
	slotFormatErrors prometheus.Counter
	monthCache       *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	wsConnections    prometheus.Gauge
	outboxPublished  prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawbook",
			Subsystem: "scheduling",
			Name:      "booking_attempts_total",
			Help:      "Booking attempts by outcome (ok or error kind)",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawbook",
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions by from/to/outcome",
		}, []string{"from", "to", "outcome"}),
		availabilityOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawbook",
			Subsystem: "scheduling",
			Name:      "unavailability_changes_total",
			Help:      "Dates marked or cleared unavailable",
		}, []string{"action"}),
		slotFormatErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pawbook",
			Subsystem: "scheduling",
			Name:      "slot_format_errors_total",
			Help:      "Opening-hours templates that could not be parsed during slot generation",
		}),
		monthCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawbook",
			Subsystem: "scheduling",
			Name:      "month_cache_lookups_total",
			Help:      "Reserved-slot month cache lookups by result",
		}, []string{"result"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawbook",
			Subsystem: "notify",
			Name:      "events_published_total",
			Help:      "Events accepted by the broadcaster",
		}, []string{"name"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pawbook",
			Subsystem: "notify",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the broadcast queue was full",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pawbook",
			Subsystem: "notify",
			Name:      "websocket_connections",
			Help:      "Open websocket subscriptions",
		}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pawbook",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox rows written to Kafka",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawbook",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pawbook",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookings, m.transitions, m.availabilityOps, m.slotFormatErrors, m.monthCache,
		m.eventsPublished, m.eventsDropped, m.wsConnections, m.outboxPublished,
		m.httpRequests, m.httpLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransition(from, to, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, outcome).Inc()
}

func (m *Metrics) ObserveUnavailability(action string, dates int) {
	if m == nil || dates <= 0 {
		return
	}
	m.availabilityOps.WithLabelValues(action).Add(float64(dates))
}

func (m *Metrics) ObserveSlotFormatError() {
	if m == nil {
		return
	}
	m.slotFormatErrors.Inc()
}

func (m *Metrics) ObserveMonthCache(result string) {
	if m == nil {
		return
	}
	m.monthCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEventPublished(name string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(name).Inc()
}

func (m *Metrics) ObserveEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func (m *Metrics) WebsocketConnected() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) WebsocketDisconnected() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

func (m *Metrics) ObserveOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.outboxPublished.Add(float64(n))
}

// ObserveHTTP satisfies httpx.RequestObserver.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route, method).Observe(d.Seconds())
}
