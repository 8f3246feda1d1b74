package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rt_gateway_connections",
			Help: "Live websocket connections on this gateway",
		},
	)

	usersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rt_gateway_users",
			Help: "Users with at least one live connection",
		},
	)

	eventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rt_gateway_events_received_total",
			Help: "Bus messages received by channel",
		},
		[]string{"channel"},
	)

	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rt_gateway_events_dropped_total",
			Help: "Bus messages dropped before fan-out by channel and reason",
		},
		[]string{"channel", "reason"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rt_gateway_deliveries_total",
			Help: "Per-connection deliveries by channel and result",
		},
		[]string{"channel", "result"},
	)

	handshakeRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rt_gateway_handshake_rejected_total",
			Help: "Rejected connection attempts by reason",
		},
		[]string{"reason"},
	)

	followersLookupSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rt_gateway_followers_lookup_seconds",
			Help:    "Followers lookup latency for newPost fan-out",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		connectionsGauge,
		usersGauge,
		eventsReceived,
		eventsDropped,
		deliveries,
		handshakeRejected,
		followersLookupSeconds,
	)
}
