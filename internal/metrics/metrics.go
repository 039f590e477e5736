package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collab_relay"

var (
	// OpenConnections counts transport connections, joined or not.
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_connections",
		Help:      "Current number of open WebSocket connections",
	})

	JoinedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "joined_sessions",
		Help:      "Current number of sessions that completed a join",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_rooms",
		Help:      "Current number of non-empty rooms",
	})

	InboundEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_events_total",
		Help:      "Inbound events received, by kind",
	}, []string{"kind"})

	DroppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_events_total",
		Help:      "Inbound events that had no effect, by reason",
	}, []string{"reason"})

	OutboundDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbound_deliveries_total",
		Help:      "Outbound events queued to a connection, by kind",
	}, []string{"kind"})

	DroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_sends_total",
		Help:      "Outbound events dropped because the target was gone or its buffer was full",
	})

	JoinRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "join_rejections_total",
		Help:      "Join requests rejected because the username was taken",
	})

	DroppedActivity = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_activity_entries_total",
		Help:      "Activity log entries dropped because the write queue was full",
	})
)

// Drop reasons
const (
	ReasonNotJoined   = "not_joined"
	ReasonMalformed   = "malformed"
	ReasonUnknown     = "unknown_event"
	ReasonRateLimited = "rate_limited"
	ReasonPanic       = "panic"
	ReasonRejected    = "rejected"
)

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
