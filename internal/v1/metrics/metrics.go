package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the lobby server.
// Declared in one package so the transport, core and bus layers share a
// single registry view without coupling to each other.
//
// Naming convention: namespace_subsystem_name
// - namespace: lobbyd (application-level grouping)
// - subsystem: session, room, bus (feature-level grouping)
// - name: specific metric (connections_active, requests_total, etc.)
//
// Metric Types:
// - Gauge: Current state (sessions, open rooms, breaker state)
// - Counter: Cumulative events (requests, errors, drops)
// - Histogram: Latency distributions (request handling time)

var (
	// ActiveSessions tracks the current number of connected clients (Gauge - current state)
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lobbyd",
		Subsystem: "session",
		Name:      "connections_active",
		Help:      "Current number of connected clients",
	})

	// ConnectionsRejected counts connections refused at the capacity gate (Counter - cumulative)
	ConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lobbyd",
		Subsystem: "session",
		Name:      "connections_rejected_total",
		Help:      "Total connections refused because the server was full",
	})

	// RequestsTotal counts parsed requests by verb (CounterVec - cumulative)
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lobbyd",
		Subsystem: "session",
		Name:      "requests_total",
		Help:      "Total requests handled, by verb",
	}, []string{"verb"})

	// ProtocolErrors counts ERROR frames sent to clients by reason (CounterVec - cumulative)
	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lobbyd",
		Subsystem: "session",
		Name:      "protocol_errors_total",
		Help:      "Total protocol errors returned to clients, by reason",
	}, []string{"reason"})

	// RequestDuration tracks dispatcher handling time per verb (HistogramVec - latency distribution)
	// Handling is pure in-memory state manipulation, so the buckets sit well
	// below typical network RTTs.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lobbyd",
		Subsystem: "session",
		Name:      "request_duration_seconds",
		Help:      "Time spent handling a request inside the dispatcher",
		Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
	}, []string{"verb"})

	// OutboundDropped counts messages dropped on full client queues (Counter - cumulative)
	OutboundDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lobbyd",
		Subsystem: "session",
		Name:      "outbound_dropped_total",
		Help:      "Total outbound messages dropped because a client queue was full",
	})

	// OpenRooms tracks the current number of open rooms (Gauge - current state)
	OpenRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lobbyd",
		Subsystem: "room",
		Name:      "rooms_open",
		Help:      "Current number of open rooms",
	})

	// CircuitBreakerState reports breaker position per breaker (GaugeVec - current state)
	// 0 closed, 1 open, 2 half-open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lobbyd",
		Subsystem: "bus",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open",
	}, []string{"name"})

	// CircuitBreakerFailures counts operations rejected or failed through a breaker (CounterVec - cumulative)
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lobbyd",
		Subsystem: "bus",
		Name:      "circuit_breaker_failures_total",
		Help:      "Total operations that failed or were rejected by a circuit breaker",
	}, []string{"name"})
)

func IncConnection() {
	ActiveSessions.Inc()
}

func DecConnection() {
	ActiveSessions.Dec()
}
