package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat server.
//
// Naming convention: namespace_subsystem_name
// - namespace: chat_server
// - subsystem: tcp, room, handler, dbpool
//
// Metric Types:
// - Gauge: current state (connections, rooms, pool occupancy)
// - Counter: cumulative events (frames, messages, errors)
// - Histogram: latency distributions (handler duration)

var (
	// ActiveConnections tracks the number of open client sockets.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "tcp",
		Name:      "connections_active",
		Help:      "Current number of open client connections",
	})

	// FramesReceived counts protocol frames extracted from client streams.
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "tcp",
		Name:      "frames_received_total",
		Help:      "Total protocol frames received",
	})

	// BytesWritten counts bytes drained to client sockets.
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "tcp",
		Name:      "bytes_written_total",
		Help:      "Total bytes written to client sockets",
	})

	// ActiveRooms tracks rooms currently joinable.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomMembers tracks members per room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of members in each room",
	}, []string{"room_id"})

	// MessagesPersisted counts chat messages written to the store.
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "room",
		Name:      "messages_persisted_total",
		Help:      "Total chat messages persisted",
	})

	// HandlerRequests counts dispatched requests by type and status.
	HandlerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "handler",
		Name:      "requests_total",
		Help:      "Total requests processed by message type",
	}, []string{"type", "status"})

	// HandlerDuration tracks request handling latency by message type.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chat_server",
		Subsystem: "handler",
		Name:      "duration_seconds",
		Help:      "Request handling duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})

	// PushesDelivered counts push frames enqueued to room members.
	PushesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "room",
		Name:      "pushes_delivered_total",
		Help:      "Total push frames delivered by type",
	}, []string{"type"})

	// SessionsActive tracks live bearer tokens.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "handler",
		Name:      "sessions_active",
		Help:      "Current number of live sessions",
	})

	// DBPoolActive tracks checked-out database connections.
	DBPoolActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "dbpool",
		Name:      "connections_active",
		Help:      "Database connections currently checked out",
	})

	// DBPoolIdle tracks idle pooled database connections.
	DBPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "dbpool",
		Name:      "connections_idle",
		Help:      "Idle database connections in the pool",
	})

	// DBPoolAcquireTimeouts counts acquires that hit the timeout.
	DBPoolAcquireTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "dbpool",
		Name:      "acquire_timeouts_total",
		Help:      "Total pool acquires that timed out",
	})
)
