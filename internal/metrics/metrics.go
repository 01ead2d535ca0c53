package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broadcast metrics
	MessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatwire_messages_published_total",
			Help: "Messages handed to the broadcast dispatcher",
		},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_messages_dropped_total",
			Help: "Per-recipient message drops",
		},
		[]string{"reason"},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatwire_sessions_active",
			Help: "Live sessions in the registry",
		},
	)

	SessionsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwire_sessions_evicted_total",
			Help: "Sessions force-closed by the server",
		},
		[]string{"reason"},
	)

	HeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatwire_heartbeat_timeouts_total",
			Help: "Sessions evicted after missing pong deadlines",
		},
	)

	ReadMarkersAdvanced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatwire_read_markers_advanced_total",
			Help: "Read marker updates that moved a watermark forward",
		},
	)
)

// Drop and eviction reason labels.
const (
	ReasonQueueFull     = "queue_full"
	ReasonOverflowLimit = "overflow_limit"
	ReasonHeartbeat     = "heartbeat_timeout"
	ReasonSuperseded    = "superseded"
)
