package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the textroom server.
//
// Naming convention: namespace_subsystem_name
// - namespace: textroom (application-level grouping)
// - subsystem: websocket, room, webhook (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (requests dispatched, posts emitted)
// - Histogram: Latency distributions (request processing time)

var (
	// ActiveWebSocketConnections tracks the current number of live participant sockets.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "textroom",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of rooms in the registry.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "textroom",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of participants per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "textroom",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room"})

	// SocketRequests counts decoded socket requests by kind and outcome.
	SocketRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "textroom",
		Subsystem: "websocket",
		Name:      "requests_total",
		Help:      "Total socket requests processed",
	}, []string{"request", "status"})

	// RequestProcessingDuration tracks time spent handling one socket request.
	RequestProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "textroom",
		Subsystem: "websocket",
		Name:      "request_processing_seconds",
		Help:      "Time spent processing socket requests",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"request"})

	// BroadcastEvents counts events fanned out by room actors.
	BroadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "textroom",
		Subsystem: "room",
		Name:      "broadcast_events_total",
		Help:      "Total events broadcast by room actors",
	}, []string{"event"})

	// WebhookPosts counts outbound webhook posts by outcome.
	WebhookPosts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "textroom",
		Subsystem: "webhook",
		Name:      "posts_total",
		Help:      "Total webhook posts emitted",
	}, []string{"status"})

	// CircuitBreakerState exports the webhook breaker state (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "textroom",
		Subsystem: "webhook",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per target (0=closed, 1=open, 2=half-open)",
	}, []string{"target"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
